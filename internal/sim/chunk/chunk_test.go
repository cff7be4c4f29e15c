package chunk

import (
	"errors"
	"testing"

	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/light"
)

func TestChunkSetBlockTracksSolid(t *testing.T) {
	ch, err := New(lattice.Coord{X: 1, Y: -2, Z: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !ch.Empty() || ch.Relation() != lattice.RelationAll || !ch.GraphStale() {
		t.Fatalf("fresh chunk should be empty, fully connected and stale")
	}
	old, err := ch.SetBlock(7, 3)
	if err != nil || old != 0 {
		t.Fatalf("SetBlock: old=%d err=%v", old, err)
	}
	if ch.Empty() || ch.Block(7) != 3 {
		t.Fatalf("voxel not stored")
	}
	old, _ = ch.SetBlock(7, 0)
	if old != 3 || !ch.Empty() {
		t.Fatalf("chunk should be empty again, old=%d", old)
	}
	ch.Pack()
	if ch.Copy() != nil {
		t.Fatalf("packed chunk should release voxels")
	}
	if _, err := ch.SetBlock(lattice.ChunkVolume, 1); err == nil {
		t.Fatalf("expected index error")
	}
}

func TestChunkFillRejectsShortArray(t *testing.T) {
	ch, _ := New(lattice.Coord{})
	if err := ch.Fill(make([]uint16, 10)); !errors.Is(err, ErrInconsistent) {
		t.Fatalf("expected ErrInconsistent, got %v", err)
	}
}

func TestChunkCheckDetectsMissingVoxels(t *testing.T) {
	ch, _ := New(lattice.Coord{})
	ch.solid = 5
	if err := ch.Check(); !errors.Is(err, ErrInconsistent) {
		t.Fatalf("expected ErrInconsistent, got %v", err)
	}
	if _, err := ch.SetBlock(0, 1); !errors.Is(err, ErrInconsistent) {
		t.Fatalf("SetBlock should refuse an inconsistent chunk, got %v", err)
	}
}

func TestChunkDigestChangesOnWrite(t *testing.T) {
	ch, _ := New(lattice.Coord{})
	d0 := ch.Digest()
	if ch.Digest() != d0 {
		t.Fatalf("digest should be stable")
	}
	ch.SetBlock(100, 2)
	if ch.Digest() == d0 {
		t.Fatalf("digest should change after a write")
	}
}

func TestStoreLoadUnload(t *testing.T) {
	s := NewStore()
	blocks := make([]uint16, lattice.ChunkVolume)
	blocks[lattice.Index(1, 2, 3)] = 4
	c := lattice.Coord{X: -1, Y: 0, Z: 2}
	ch, err := s.Load(c, blocks)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	blocks[lattice.Index(1, 2, 3)] = 9
	if ch.Block(lattice.Index(1, 2, 3)) != 4 {
		t.Fatalf("Load must copy the voxel array")
	}

	pos := lattice.BlockAt(c, lattice.Index(1, 2, 3))
	if id, ok := s.BlockAt(0, pos); !ok || id != 4 {
		t.Fatalf("BlockAt = %d,%v", id, ok)
	}
	if id, ok := s.BlockAt(1, pos); ok || id != 0 {
		t.Fatalf("other dimension should be unloaded")
	}

	ch.Light().Set(0, light.MakeLevel(15, 0), 0)
	lb := s.LightBuffer(ch.Key)
	if lb == nil || !lb.Plane().HasData() {
		t.Fatalf("light buffer not reachable through the store")
	}

	if k, ok := s.Unload(c); !ok || k != ch.Key {
		t.Fatalf("Unload failed")
	}
	if s.Len() != 0 || s.Get(ch.Key) != nil {
		t.Fatalf("chunk still present")
	}
	if lb.Plane().HasData() || ch.Copy() != nil {
		t.Fatalf("unload should release voxel and light storage")
	}
	if _, loaded := s.Relation(ch.Key); loaded {
		t.Fatalf("relation of an unloaded chunk should report not loaded")
	}
}

func TestStoreKeysSorted(t *testing.T) {
	s := NewStore()
	for _, c := range []lattice.Coord{{X: 2}, {X: -3}, {Y: 1}, {Z: 5, Dim: 1}} {
		if _, err := s.Load(c, nil); err != nil {
			t.Fatal(err)
		}
	}
	keys := s.Keys()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
	n := 0
	s.ForEach(func(*Chunk) { n++ })
	if n != 4 {
		t.Fatalf("ForEach visited %d", n)
	}
}

func TestStoreRejectsOutOfRange(t *testing.T) {
	s := NewStore()
	_, err := s.Load(lattice.Coord{Y: 1 << 20}, nil)
	if !errors.Is(err, lattice.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}
