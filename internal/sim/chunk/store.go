package chunk

import (
	"sort"
	"sync"
	"sync/atomic"

	"voxelsight.ai/internal/sim/catalogs"
	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/light"
)

// Store is the set of loaded chunks.
//
// mu covers map structure only. Never take it while holding a chunk lock.
type Store struct {
	mu     sync.RWMutex
	chunks map[lattice.Key]*Chunk

	// changes bumps on every load, unload and relation change.
	changes atomic.Uint64
}

func NewStore() *Store {
	return &Store{chunks: map[lattice.Key]*Chunk{}}
}

// Load inserts (or replaces) the chunk at c with the given voxels.
func (s *Store) Load(c lattice.Coord, blocks []uint16) (*Chunk, error) {
	ch, err := New(c)
	if err != nil {
		return nil, err
	}
	if err := ch.Fill(blocks); err != nil {
		return nil, err
	}
	ch.changes = &s.changes
	s.mu.Lock()
	prev := s.chunks[ch.Key]
	s.chunks[ch.Key] = ch
	s.mu.Unlock()
	s.changes.Add(1)
	if prev != nil {
		prev.release()
	}
	return ch, nil
}

// Unload drops the chunk and releases its voxel and light storage.
func (s *Store) Unload(c lattice.Coord) (lattice.Key, bool) {
	k, ok := lattice.KeyOf(c)
	if !ok {
		return 0, false
	}
	s.mu.Lock()
	ch := s.chunks[k]
	delete(s.chunks, k)
	s.mu.Unlock()
	if ch == nil {
		return k, false
	}
	s.changes.Add(1)
	ch.release()
	return k, true
}

// Generation moves whenever the loaded set or any chunk relation changes.
func (s *Store) Generation() uint64 { return s.changes.Load() }

func (s *Store) Get(k lattice.Key) *Chunk {
	s.mu.RLock()
	ch := s.chunks[k]
	s.mu.RUnlock()
	return ch
}

func (s *Store) At(c lattice.Coord) *Chunk {
	k, ok := lattice.KeyOf(c)
	if !ok {
		return nil
	}
	return s.Get(k)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// ForEach visits a snapshot of the loaded chunks; fn runs without the store lock.
func (s *Store) ForEach(fn func(ch *Chunk)) {
	s.mu.RLock()
	list := make([]*Chunk, 0, len(s.chunks))
	for _, ch := range s.chunks {
		list = append(list, ch)
	}
	s.mu.RUnlock()
	for _, ch := range list {
		fn(ch)
	}
}

// Keys returns the loaded keys in ascending order.
func (s *Store) Keys() []lattice.Key {
	s.mu.RLock()
	keys := make([]lattice.Key, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Relation reports the chunk's face connectivity; loaded is false for unknown keys.
func (s *Store) Relation(k lattice.Key) (r lattice.Relation, loaded bool) {
	ch := s.Get(k)
	if ch == nil {
		return lattice.RelationNone, false
	}
	return ch.Relation(), true
}

func (s *Store) LightBuffer(k lattice.Key) *light.Buffer {
	ch := s.Get(k)
	if ch == nil {
		return nil
	}
	return ch.light
}

// BlockAt reads a world voxel; unloaded chunks read as AIR.
func (s *Store) BlockAt(dim lattice.Dimension, p lattice.BlockPos) (id uint16, loaded bool) {
	ch := s.At(p.Chunk(dim))
	if ch == nil {
		return catalogs.AirID, false
	}
	return ch.Block(p.Local()), true
}
