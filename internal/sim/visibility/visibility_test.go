package visibility

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"voxelsight.ai/internal/sim/lattice"
)

type fakeRelations struct {
	mu  sync.Mutex
	rel map[lattice.Key]lattice.Relation
	gen uint64
}

func newFake() *fakeRelations {
	return &fakeRelations{rel: map[lattice.Key]lattice.Relation{}}
}

func (f *fakeRelations) set(c lattice.Coord, r lattice.Relation) {
	f.mu.Lock()
	f.rel[lattice.MustKey(c)] = r
	f.gen++
	f.mu.Unlock()
}

func (f *fakeRelations) drop(c lattice.Coord) {
	f.mu.Lock()
	delete(f.rel, lattice.MustKey(c))
	f.gen++
	f.mu.Unlock()
}

func (f *fakeRelations) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen
}

func (f *fakeRelations) Relation(k lattice.Key) (lattice.Relation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rel[k]
	return r, ok
}

func (f *fakeRelations) Keys() []lattice.Key {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]lattice.Key, 0, len(f.rel))
	for k := range f.rel {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *fakeRelations) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rel)
}

func key(x, y, z int) lattice.Key { return lattice.MustKey(lattice.Coord{X: x, Y: y, Z: z}) }

// chunkCenter is the world position of the middle of chunk (x, y, z).
func chunkCenter(x, y, z int) mgl64.Vec3 {
	return mgl64.Vec3{float64(x)*32 + 16, float64(y)*32 + 16, float64(z)*32 + 16}
}

// rowWorld loads a single row of chunks along X at y=0, z=0 with a wall at x=2.
func rowWorld() *fakeRelations {
	f := newFake()
	for x := -4; x <= 4; x++ {
		f.set(lattice.Coord{X: x}, lattice.RelationAll)
	}
	f.set(lattice.Coord{X: 2}, lattice.RelationNone)
	return f
}

func rowConfig() Config {
	return Config{ViewDistance: 4, MinChunkY: 0, MaxChunkY: 0, Occlusion: true, BacklogSlack: 10, GraceDistance: 1}
}

func TestMaskCommitFlipsOnce(t *testing.T) {
	m := NewMask()
	if m.IsVisible(key(0, 0, 0)) || m.PassNumber() != 0 {
		t.Fatalf("fresh mask should be empty")
	}
	p := m.Begin()
	p.Mark(key(1, 0, 0))
	p.Mark(key(2, 0, 0))
	if m.IsVisible(key(1, 0, 0)) {
		t.Fatalf("uncommitted marks must not be visible")
	}
	p.Commit()
	if !m.IsVisible(key(1, 0, 0)) || m.Len() != 2 || m.Flips() != 1 || m.PassNumber() != 1 {
		t.Fatalf("committed pass not visible")
	}

	p = m.Begin()
	p.Mark(key(3, 0, 0))
	p.Commit()
	if m.IsVisible(key(1, 0, 0)) || !m.IsVisible(key(3, 0, 0)) {
		t.Fatalf("second pass should replace the first")
	}
}

func TestMaskForget(t *testing.T) {
	m := NewMask()
	m.MarkAllBoth([]lattice.Key{key(0, 0, 0), key(1, 0, 0)})
	m.Forget(key(1, 0, 0))
	for i := range m.bufs {
		if _, ok := m.bufs[i].keys[key(1, 0, 0)]; ok {
			t.Fatalf("buffer %d still holds a forgotten key", i)
		}
	}
	if !m.IsVisible(key(0, 0, 0)) {
		t.Fatalf("other keys must survive")
	}
}

// Each pass marks 50 keys tagged with the pass number. A reader must always
// see every key of exactly one pass.
func TestMaskReadersNeverSeePartialPass(t *testing.T) {
	m := NewMask()
	const width = 50

	var stop atomic.Bool
	var bad atomic.Int64
	var wg sync.WaitGroup
	for r := 0; r < 6; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				pass, keys := m.Snapshot()
				if pass == 0 {
					if len(keys) != 0 {
						bad.Add(1)
					}
					continue
				}
				if len(keys) != width {
					bad.Add(1)
					continue
				}
				for _, k := range keys {
					if uint64(k.Coord().Z) != pass {
						bad.Add(1)
						break
					}
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		p := m.Begin()
		for x := 0; x < width; x++ {
			p.Mark(lattice.MustKey(lattice.Coord{X: x, Z: int(p.Number())}))
		}
		p.Commit()
	}
	stop.Store(true)
	wg.Wait()
	if bad.Load() != 0 {
		t.Fatalf("observed %d inconsistent snapshots", bad.Load())
	}
	if m.Flips() != 500 {
		t.Fatalf("flips = %d", m.Flips())
	}
}

func TestShells(t *testing.T) {
	sh := Shells(6)
	if len(sh) != 7 || len(sh[0]) != 1 || sh[0][0] != (Offset{}) {
		t.Fatalf("ring 0 should be the centre column: %v", sh[0])
	}
	if len(sh[1]) != 8 {
		t.Fatalf("ring 1 has %d offsets", len(sh[1]))
	}
	seen := map[Offset]bool{}
	for r, ring := range sh {
		for _, o := range ring {
			if octRadius(o.DX, o.DZ) != r {
				t.Fatalf("offset %v in ring %d", o, r)
			}
			if seen[o] {
				t.Fatalf("offset %v appears twice", o)
			}
			seen[o] = true
		}
	}
	if !seen[Offset{DX: 6, DZ: 0}] || seen[Offset{DX: 6, DZ: 6}] {
		t.Fatalf("octagon corners wrong")
	}
}

func TestCullerStopsAtClosedChunk(t *testing.T) {
	f := rowWorld()
	m := NewMask()
	c := NewCuller(rowConfig(), m, f)

	res := c.Tick(chunkCenter(0, 0, 0), 0)
	if res.Skipped || res.OcclusionOff || res.Rays == 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !m.IsVisible(key(1, 0, 0)) || !m.IsVisible(key(2, 0, 0)) {
		t.Fatalf("near chunks and the wall itself should be visible")
	}
	if m.IsVisible(key(3, 0, 0)) || m.IsVisible(key(4, 0, 0)) {
		t.Fatalf("chunks behind the wall should be culled")
	}
	if !m.IsVisible(key(-4, 0, 0)) {
		t.Fatalf("open side should be visible to the view distance")
	}

	f.set(lattice.Coord{X: 2}, lattice.RelationNone.Connect(lattice.West, lattice.East))
	if res := c.Tick(chunkCenter(0, 0, 0), 0); res.Skipped {
		t.Fatalf("a relation change should force a pass")
	}
	if !m.IsVisible(key(4, 0, 0)) {
		t.Fatalf("opening the wall should reveal the far chunks")
	}
}

func TestCullerRerunsAfterRelationChangeWhileStationary(t *testing.T) {
	f := rowWorld()
	m := NewMask()
	c := NewCuller(rowConfig(), m, f)
	obs := chunkCenter(0, 0, 0)

	c.Tick(obs, 0)
	if m.IsVisible(key(4, 0, 0)) {
		t.Fatalf("wall should hide the far end")
	}
	// The rebuild lands while the regen backlog goes 0, 1, 0.
	f.set(lattice.Coord{X: 2}, lattice.RelationAll)
	c.Tick(obs, 1)
	c.Tick(obs, 0)
	c.Tick(obs, 0)
	if !m.IsVisible(key(4, 0, 0)) {
		t.Fatalf("opened wall never reached the visible set")
	}
	if !c.Tick(obs, 0).Skipped {
		t.Fatalf("nothing changed, pass should skip")
	}

	f.drop(lattice.Coord{X: -4})
	m.Forget(key(-4, 0, 0))
	if c.Tick(obs, 0).Skipped || m.IsVisible(key(-4, 0, 0)) {
		t.Fatalf("an unloaded chunk should drop out")
	}
	f.set(lattice.Coord{X: -4}, lattice.RelationAll)
	if c.Tick(obs, 0).Skipped || !m.IsVisible(key(-4, 0, 0)) {
		t.Fatalf("a newly loaded chunk should be culled in")
	}
}

func TestCullerSkipsWithinSlack(t *testing.T) {
	c := NewCuller(rowConfig(), NewMask(), rowWorld())
	obs := chunkCenter(0, 0, 0)

	if c.Tick(obs, 30).Skipped {
		t.Fatalf("first pass must run")
	}
	if !c.Tick(obs, 35).Skipped {
		t.Fatalf("backlog within slack should skip")
	}
	if c.Tick(obs, 50).Skipped {
		t.Fatalf("backlog shift beyond slack should re-run")
	}
	if c.Tick(obs, 5).Skipped {
		t.Fatalf("backlog shift beyond slack should re-run")
	}
	if c.Tick(obs, 0).Skipped {
		t.Fatalf("a drained backlog should re-run even within slack")
	}
	if !c.Tick(obs.Add(mgl64.Vec3{3, 0, 0}), 0).Skipped {
		t.Fatalf("moving inside the same chunk should skip")
	}
	if c.Tick(chunkCenter(1, 0, 0), 0).Skipped {
		t.Fatalf("changing chunk should re-run")
	}
	c.Update(func(cfg *Config) { cfg.ViewDistance = 3 })
	if c.Tick(chunkCenter(1, 0, 0), 0).Skipped {
		t.Fatalf("config change should re-run")
	}
	c.Update(func(cfg *Config) { cfg.ViewDistance = 3 })
	if !c.Tick(chunkCenter(1, 0, 0), 0).Skipped {
		t.Fatalf("an update that changes nothing should not force a pass")
	}
}

func TestCullerOcclusionOffMarksEverything(t *testing.T) {
	f := rowWorld()
	m := NewMask()
	cfg := rowConfig()
	cfg.Occlusion = false
	c := NewCuller(cfg, m, f)

	res := c.Tick(chunkCenter(0, 0, 0), 0)
	if !res.OcclusionOff || res.Visible != f.Len() {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, k := range f.Keys() {
		for i := range m.bufs {
			if _, ok := m.bufs[i].keys[k]; !ok {
				t.Fatalf("buffer %d missing %s", i, k)
			}
		}
	}
	if !c.Tick(chunkCenter(0, 0, 0), 0).Skipped {
		t.Fatalf("unchanged occlusion-off state should skip")
	}

	// Swap one chunk for another: the count stays the same.
	n := f.Len()
	f.drop(lattice.Coord{X: 4})
	m.Forget(key(4, 0, 0))
	f.set(lattice.Coord{X: 9}, lattice.RelationAll)
	if f.Len() != n {
		t.Fatalf("swap changed the count")
	}
	if res := c.Tick(chunkCenter(0, 0, 0), 0); res.Skipped || !m.IsVisible(key(9, 0, 0)) {
		t.Fatalf("swapped-in chunk not marked: %+v", res)
	}
	for i := range m.bufs {
		if _, ok := m.bufs[i].keys[key(9, 0, 0)]; !ok {
			t.Fatalf("buffer %d missing the swapped-in chunk", i)
		}
	}
	f.set(lattice.Coord{X: 4}, lattice.RelationAll)

	// Below the loaded-chunk threshold occlusion is off even when enabled.
	cfg.Occlusion = true
	cfg.MinChunksForOcclusion = 100
	c.SetConfig(cfg)
	if res := c.Tick(chunkCenter(0, 0, 0), 0); !res.OcclusionOff || !m.IsVisible(key(4, 0, 0)) {
		t.Fatalf("threshold should disable occlusion: %+v", res)
	}
}

func TestCullerObserverAboveHeightLimit(t *testing.T) {
	c := NewCuller(rowConfig(), NewMask(), rowWorld())
	m := c.mask
	c.Tick(chunkCenter(0, 3, 0), 0)
	if !m.IsVisible(key(2, 0, 0)) {
		t.Fatalf("observer above the world should see down onto the row")
	}
}

func TestCullerDegenerateRays(t *testing.T) {
	c := NewCuller(rowConfig(), NewMask(), rowWorld())
	p := c.mask.Begin()
	nan := mgl64.Vec3{math.NaN(), 0, 0}
	if c.march(p, rowConfig(), nan, mgl64.Vec3{3, 0, 0}, lattice.Coord{}, lattice.Coord{X: 3}, false) {
		t.Fatalf("NaN origin should abort the ray")
	}
	o := mgl64.Vec3{0.5, 0.5, 0.5}
	if c.march(p, rowConfig(), o, o, lattice.Coord{}, lattice.Coord{}, false) {
		t.Fatalf("zero-length ray should abort")
	}
	if !c.march(p, rowConfig(), o, mgl64.Vec3{3.5, 0.5, 0.5}, lattice.Coord{}, lattice.Coord{X: 3}, false) {
		t.Fatalf("a valid ray should not abort")
	}
	p.Commit()

	res := c.Tick(mgl64.Vec3{math.Inf(1), 0, 0}, 0)
	if !res.Skipped {
		t.Fatalf("non-finite observer should skip the pass")
	}
}

func TestExitFace(t *testing.T) {
	cases := []struct {
		dir  mgl64.Vec3
		want lattice.Face
	}{
		{mgl64.Vec3{1, 0, 0}, lattice.East},
		{mgl64.Vec3{-1, 0.1, 0}, lattice.West},
		{mgl64.Vec3{0, 0, -2}, lattice.North},
		{mgl64.Vec3{0.1, 1, 0.2}, lattice.Up},
		{mgl64.Vec3{0, -1, 0.3}, lattice.Down},
	}
	pos := mgl64.Vec3{0.5, 0.5, 0.5}
	for _, tc := range cases {
		f, tt, ok := exitFace(lattice.Coord{}, pos, tc.dir, lattice.NumFaces)
		if !ok || f != tc.want || tt < 0 {
			t.Fatalf("dir %v: got %s t=%v ok=%v, want %s", tc.dir, f, tt, ok, tc.want)
		}
	}
}
