package lighting

import (
	"github.com/gammazero/deque"

	"voxelsight.ai/internal/sim/catalogs"
	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/light"
)

// Engine computes light. It only ever reads and writes through the session.
type Engine interface {
	Light(s *Session, pos lattice.BlockPos, c light.HSV)
	Unlight(s *Session, pos lattice.BlockPos, c light.HSV)
	Sunlight(s *Session, x, z int)
}

// FloodEngine propagates block light by breadth-first decay (one level per
// step plus the entered block's absorption) and sun light straight down.
// It keeps scratch queues and must be driven by a single goroutine.
type FloodEngine struct {
	Catalog *catalogs.BlockCatalog
	// MinY and MaxY bound the sun column in world blocks (inclusive).
	MinY, MaxY int

	spread deque.Deque[lattice.BlockPos]
	remove deque.Deque[removal]
}

type removal struct {
	pos   lattice.BlockPos
	level uint8
}

func NewFloodEngine(cat *catalogs.BlockCatalog, minChunkY, maxChunkY int) *FloodEngine {
	return &FloodEngine{
		Catalog: cat,
		MinY:    minChunkY * lattice.ChunkSize,
		MaxY:    (maxChunkY+1)*lattice.ChunkSize - 1,
	}
}

func (e *FloodEngine) Light(s *Session, pos lattice.BlockPos, c light.HSV) {
	if c.V == 0 {
		return
	}
	l, _, ok := s.Get(pos)
	if !ok || l.Block() >= c.V {
		return
	}
	s.Set(pos, l.WithBlock(c.V), c.Tint())
	e.spread.PushBack(pos)
	e.flood(s)
}

func (e *FloodEngine) flood(s *Session) {
	for e.spread.Len() > 0 {
		p := e.spread.PopFront()
		l, t, ok := s.Get(p)
		if !ok || l.Block() <= 1 {
			continue
		}
		v := int(l.Block())
		for f := lattice.Face(0); f < lattice.NumFaces; f++ {
			n := p.Step(f)
			id, loaded := s.Block(n)
			if !loaded || e.Catalog.FullyOpaque(id) {
				continue
			}
			nv := v - 1 - int(e.Catalog.Absorption(id))
			if nv <= 0 {
				continue
			}
			nl, _, ok := s.Get(n)
			if !ok || int(nl.Block()) >= nv {
				continue
			}
			s.Set(n, nl.WithBlock(uint8(nv)), t)
			e.spread.PushBack(n)
		}
	}
}

// Unlight clears the block light that a source at pos contributed, then
// refills the cleared region from the surviving neighbours and any other
// emitters it swallowed.
func (e *FloodEngine) Unlight(s *Session, pos lattice.BlockPos, c light.HSV) {
	l, _, ok := s.Get(pos)
	if !ok || l.Block() == 0 {
		return
	}
	s.Set(pos, l.WithBlock(0), 0)
	e.remove.PushBack(removal{pos: pos, level: l.Block()})

	var reseed []lattice.BlockPos
	for e.remove.Len() > 0 {
		r := e.remove.PopFront()
		for f := lattice.Face(0); f < lattice.NumFaces; f++ {
			n := r.pos.Step(f)
			nl, _, ok := s.Get(n)
			if !ok || nl.Block() == 0 {
				continue
			}
			if nl.Block() < r.level {
				s.Set(n, nl.WithBlock(0), 0)
				e.remove.PushBack(removal{pos: n, level: nl.Block()})
				if id, _ := s.Block(n); e.Catalog.Emission(id).V > 0 {
					reseed = append(reseed, n)
				}
				continue
			}
			e.spread.PushBack(n)
		}
	}

	for _, p := range reseed {
		id, _ := s.Block(p)
		em := e.Catalog.Emission(id)
		if l, _, ok := s.Get(p); ok && l.Block() < em.V {
			s.Set(p, l.WithBlock(em.V), em.Tint())
			e.spread.PushBack(p)
		}
	}
	e.flood(s)
}

// Sunlight recomputes the sun nibble of one column from the top of the
// vertical range down. Unloaded chunks pass the current value through.
func (e *FloodEngine) Sunlight(s *Session, x, z int) {
	sun := light.MaxLevel
	for y := e.MaxY; y >= e.MinY; y-- {
		p := lattice.BlockPos{X: x, Y: y, Z: z}
		id, loaded := s.Block(p)
		if !loaded {
			continue
		}
		switch {
		case e.Catalog.FullyOpaque(id):
			sun = 0
		default:
			sun -= int(e.Catalog.Absorption(id))
			if sun < 0 {
				sun = 0
			}
		}
		l, t, ok := s.Get(p)
		if !ok || int(l.Sun()) == sun {
			continue
		}
		s.Set(p, l.WithSun(uint8(sun)), t)
	}
}
