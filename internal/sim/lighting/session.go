package lighting

import (
	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/light"
)

// Store is what light propagation needs from the chunk store.
type Store interface {
	BlockAt(dim lattice.Dimension, p lattice.BlockPos) (id uint16, loaded bool)
	LightBuffer(k lattice.Key) *light.Buffer
}

// Session is the write scope of one task. The first write to a chunk puts
// its light buffer into buffering mode; End commits every touched buffer.
type Session struct {
	store Store
	dim   lattice.Dimension

	touched map[lattice.Key]*light.Buffer
	order   []lattice.Key

	// last lookup; propagation stays inside one chunk most of the time
	lastCoord lattice.Coord
	lastBuf   *light.Buffer
	lastKey   lattice.Key
}

func NewSession(store Store, dim lattice.Dimension) *Session {
	return &Session{store: store, dim: dim, touched: map[lattice.Key]*light.Buffer{}}
}

func (s *Session) Dim() lattice.Dimension { return s.dim }

func (s *Session) buffer(p lattice.BlockPos) (*light.Buffer, lattice.Key) {
	c := p.Chunk(s.dim)
	if s.lastBuf != nil && c == s.lastCoord {
		return s.lastBuf, s.lastKey
	}
	k, ok := lattice.KeyOf(c)
	if !ok {
		return nil, 0
	}
	b := s.touched[k]
	if b == nil {
		b = s.store.LightBuffer(k)
	}
	if b != nil {
		s.lastCoord, s.lastBuf, s.lastKey = c, b, k
	}
	return b, k
}

// Block returns the voxel id at p; unloaded reads as AIR with loaded=false.
func (s *Session) Block(p lattice.BlockPos) (uint16, bool) {
	return s.store.BlockAt(s.dim, p)
}

// Get reads the writer's view of p. Unloaded positions read as zero.
func (s *Session) Get(p lattice.BlockPos) (light.Level, light.Tint, bool) {
	b, _ := s.buffer(p)
	if b == nil {
		return 0, 0, false
	}
	l, t := b.Live(p.Local())
	return l, t, true
}

// Set writes p and reports whether p is loaded.
func (s *Session) Set(p lattice.BlockPos, l light.Level, t light.Tint) bool {
	b, k := s.buffer(p)
	if b == nil {
		return false
	}
	if _, ok := s.touched[k]; !ok {
		s.touched[k] = b
		s.order = append(s.order, k)
		b.Begin()
	}
	b.Set(p.Local(), l, t)
	return true
}

// Touched lists written chunks in first-write order.
func (s *Session) Touched() []lattice.Key { return s.order }

// End leaves buffering mode on every touched chunk.
func (s *Session) End() {
	for _, k := range s.order {
		s.touched[k].End()
	}
}
