package lighting

import (
	"testing"

	"voxelsight.ai/internal/sim/catalogs"
	"voxelsight.ai/internal/sim/chunk"
	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/light"
)

type dirtyCall struct {
	key                         lattice.Key
	priority, relight, edgeOnly bool
}

type recordDirty struct{ calls []dirtyCall }

func (r *recordDirty) MarkChunkDirty(k lattice.Key, priority, relight, edgeOnly bool) {
	r.calls = append(r.calls, dirtyCall{k, priority, relight, edgeOnly})
}

type fixture struct {
	cat   *catalogs.BlockCatalog
	store *chunk.Store
	proc  *Processor
	dirty *recordDirty
}

func newFixture(t *testing.T, coords ...lattice.Coord) *fixture {
	t.Helper()
	cat := catalogs.Default()
	s := chunk.NewStore()
	for _, c := range coords {
		if _, err := s.Load(c, nil); err != nil {
			t.Fatal(err)
		}
	}
	d := &recordDirty{}
	return &fixture{
		cat:   cat,
		store: s,
		dirty: d,
		proc: &Processor{
			Store:          s,
			Catalog:        cat,
			Engine:         NewFloodEngine(cat, 0, 0),
			Dirty:          d,
			Player:         func() lattice.BlockPos { return lattice.BlockPos{X: 16, Y: 16, Z: 16} },
			PriorityDistSq: 2304,
		},
	}
}

func (f *fixture) place(t *testing.T, p lattice.BlockPos, name string) Task {
	t.Helper()
	id := f.cat.MustID(name)
	ch := f.store.At(p.Chunk(0))
	old, err := ch.SetBlock(p.Local(), id)
	if err != nil {
		t.Fatal(err)
	}
	return Task{Kind: Replace, Pos: p, Old: old, New: id}
}

func (f *fixture) blockLevel(p lattice.BlockPos) uint8 {
	b := f.store.LightBuffer(lattice.MustKey(p.Chunk(0)))
	if b == nil {
		return 0
	}
	l, _ := b.Get(p.Local())
	return l.Block()
}

// allDark checks that no block light or tint is left anywhere.
func (f *fixture) allDark(t *testing.T) {
	t.Helper()
	f.store.ForEach(func(ch *chunk.Chunk) {
		for i := 0; i < lattice.ChunkVolume; i++ {
			if l, tn := ch.Light().Get(i); l.Block() != 0 || tn != 0 {
				t.Fatalf("%s voxel %d still lit: %d/%d", ch.Coord, i, l.Block(), tn)
			}
		}
	})
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 5; i++ {
		q.Enqueue(Task{Pos: lattice.BlockPos{X: i}})
	}
	for i := 0; i < 5; i++ {
		got, ok := q.Pop()
		if !ok || got.Pos.X != i {
			t.Fatalf("pop %d = %+v", i, got)
		}
	}
	if _, ok := q.Pop(); ok || q.Len() != 0 || q.Total() != 5 {
		t.Fatalf("queue state after drain")
	}
}

func TestLightThenRemoveIsNetZero(t *testing.T) {
	f := newFixture(t, lattice.Coord{}, lattice.Coord{X: 1})
	pos := lattice.BlockPos{X: 29, Y: 16, Z: 16}

	touched := f.proc.Process(f.place(t, pos, "TORCH"))
	if got := f.blockLevel(pos); got != 14 {
		t.Fatalf("source level = %d", got)
	}
	if got := f.blockLevel(pos.Step(lattice.East)); got != 13 {
		t.Fatalf("neighbour level = %d", got)
	}
	if got := f.blockLevel(lattice.BlockPos{X: 33, Y: 16, Z: 16}); got != 10 {
		t.Fatalf("light should cross the chunk boundary, got %d", got)
	}
	if len(touched) != 2 {
		t.Fatalf("touched = %v", touched)
	}

	f.proc.Process(f.place(t, pos, "AIR"))
	f.allDark(t)
}

func TestRemoveColorIsNetZero(t *testing.T) {
	f := newFixture(t, lattice.Coord{})
	pos := lattice.BlockPos{X: 5, Y: 5, Z: 5}
	f.proc.Process(f.place(t, pos, "LAMP_BLUE"))
	if got := f.blockLevel(pos.Step(lattice.Up)); got != 11 {
		t.Fatalf("lamp neighbour = %d", got)
	}
	f.place(t, pos, "AIR")

	q := NewQueue()
	q.Enqueue(Task{Kind: RemoveColor, Pos: pos, Color: f.cat.Emission(f.cat.MustID("LAMP_BLUE"))})
	w := &Worker{Queue: q, Processor: f.proc, Budget: 4}
	if n := w.Tick(); n != 1 {
		t.Fatalf("worker processed %d", n)
	}
	f.allDark(t)
}

func TestRemovingOneSourceKeepsTheOther(t *testing.T) {
	a := lattice.BlockPos{X: 10, Y: 16, Z: 16}
	b := lattice.BlockPos{X: 20, Y: 16, Z: 16}

	both := newFixture(t, lattice.Coord{})
	both.proc.Process(both.place(t, a, "TORCH"))
	both.proc.Process(both.place(t, b, "TORCH"))
	both.proc.Process(both.place(t, a, "AIR"))

	only := newFixture(t, lattice.Coord{})
	only.proc.Process(only.place(t, b, "TORCH"))

	lb := both.store.LightBuffer(lattice.MustKey(lattice.Coord{}))
	lo := only.store.LightBuffer(lattice.MustKey(lattice.Coord{}))
	for i := 0; i < lattice.ChunkVolume; i++ {
		x, _ := lb.Get(i)
		y, _ := lo.Get(i)
		if x.Block() != y.Block() {
			t.Fatalf("voxel %d: %d after removal, %d with one source", i, x.Block(), y.Block())
		}
	}
}

func TestOpaqueBlocksStopLight(t *testing.T) {
	f := newFixture(t, lattice.Coord{})
	wall := lattice.BlockPos{X: 11, Y: 16, Z: 16}
	f.place(t, wall, "STONE")
	f.proc.Process(f.place(t, lattice.BlockPos{X: 10, Y: 16, Z: 16}, "TORCH"))
	if got := f.blockLevel(wall); got != 0 {
		t.Fatalf("stone should stay dark, got %d", got)
	}
	// Around the stone the light arrives three steps later.
	if got := f.blockLevel(lattice.BlockPos{X: 12, Y: 16, Z: 16}); got != 10 {
		t.Fatalf("light behind the wall = %d", got)
	}
}

func TestSunlightColumn(t *testing.T) {
	f := newFixture(t, lattice.Coord{})
	col := lattice.BlockPos{X: 5, Y: 20, Z: 5}
	f.proc.Process(f.place(t, col, "STONE"))

	sun := func(y int) uint8 {
		p := lattice.BlockPos{X: col.X, Y: y, Z: col.Z}
		l, _ := f.store.LightBuffer(lattice.MustKey(lattice.Coord{})).Get(p.Local())
		return l.Sun()
	}
	if sun(31) != 15 || sun(21) != 15 || sun(20) != 0 || sun(3) != 0 {
		t.Fatalf("column after stone: %d %d %d %d", sun(31), sun(21), sun(20), sun(3))
	}

	f.proc.Process(f.place(t, col, "LEAVES"))
	if sun(20) != 13 || sun(0) != 13 {
		t.Fatalf("leaves should absorb 2: %d %d", sun(20), sun(0))
	}

	f.proc.Process(f.place(t, col, "GLASS"))
	if sun(20) != 15 || sun(0) != 15 {
		t.Fatalf("glass should not absorb: %d %d", sun(20), sun(0))
	}
}

func TestProcessMarksDirty(t *testing.T) {
	f := newFixture(t, lattice.Coord{})
	pos := lattice.BlockPos{X: 16, Y: 16, Z: 16}
	f.proc.Process(f.place(t, pos, "TORCH"))

	own := lattice.MustKey(lattice.Coord{})
	var direct, edges int
	for _, c := range f.dirty.calls {
		switch {
		case c.key == own:
			if !c.priority || !c.relight || c.edgeOnly {
				t.Fatalf("direct mark = %+v", c)
			}
			direct++
		default:
			if c.priority || c.relight || !c.edgeOnly {
				t.Fatalf("neighbour mark = %+v", c)
			}
			edges++
		}
	}
	if direct != 1 || edges != 26 {
		t.Fatalf("direct=%d edges=%d", direct, edges)
	}

	f.dirty.calls = nil
	f.proc.Player = func() lattice.BlockPos { return lattice.BlockPos{X: 500} }
	f.proc.Process(f.place(t, pos, "AIR"))
	for _, c := range f.dirty.calls {
		if c.priority {
			t.Fatalf("far change should not be priority: %+v", c)
		}
	}
}

func TestProcessEndsBuffering(t *testing.T) {
	f := newFixture(t, lattice.Coord{})
	f.proc.Process(f.place(t, lattice.BlockPos{X: 3, Y: 3, Z: 3}, "TORCH"))
	b := f.store.LightBuffer(lattice.MustKey(lattice.Coord{}))
	if b.Buffering() {
		t.Fatalf("task should commit its buffers")
	}
	if b.Snapshots() != 1 {
		t.Fatalf("expected one snapshot for the task, got %d", b.Snapshots())
	}
	if f.proc.Processed() != 1 || f.proc.TouchedChunks() != 1 {
		t.Fatalf("stats: %d %d", f.proc.Processed(), f.proc.TouchedChunks())
	}
}

func TestUnloadedPositionsAreIgnored(t *testing.T) {
	f := newFixture(t, lattice.Coord{})
	s := NewSession(f.store, 0)
	far := lattice.BlockPos{X: 1000}
	if s.Set(far, light.MakeLevel(0, 5), 0) {
		t.Fatalf("set on an unloaded chunk should report false")
	}
	if l, _, ok := s.Get(far); ok || l != 0 {
		t.Fatalf("unloaded read should be zero")
	}
	f.proc.Engine.Light(s, far, light.HSV{V: 10})
	if len(s.Touched()) != 0 {
		t.Fatalf("nothing should be touched")
	}
}
