package lighting

import (
	"sync/atomic"

	"voxelsight.ai/internal/sim/catalogs"
	"voxelsight.ai/internal/sim/lattice"
)

// DirtyMarker receives re-tesselation requests.
type DirtyMarker interface {
	MarkChunkDirty(k lattice.Key, priority, relight, edgeOnly bool)
}

// Processor applies one task at a time through an Engine.
type Processor struct {
	Store   Store
	Catalog *catalogs.BlockCatalog
	Engine  Engine
	Dirty   DirtyMarker

	// Player is the position used for the priority test.
	Player         func() lattice.BlockPos
	PriorityDistSq int

	processed atomic.Uint64
	touched   atomic.Uint64
}

// Process runs t to completion and returns the chunks whose light changed.
func (p *Processor) Process(t Task) []lattice.Key {
	s := NewSession(p.Store, t.Dim)
	switch t.Kind {
	case Replace:
		from, to := p.Catalog.Emission(t.Old), p.Catalog.Emission(t.New)
		if from != to {
			if !from.IsZero() {
				p.Engine.Unlight(s, t.Pos, from)
			}
			if !to.IsZero() {
				p.Engine.Light(s, t.Pos, to)
			}
		}
		if p.Catalog.Absorption(t.Old) != p.Catalog.Absorption(t.New) ||
			p.Catalog.FullyOpaque(t.Old) != p.Catalog.FullyOpaque(t.New) {
			p.Engine.Sunlight(s, t.Pos.X, t.Pos.Z)
		}
	case Absorption:
		p.Engine.Sunlight(s, t.Pos.X, t.Pos.Z)
	case RemoveColor:
		p.Engine.Unlight(s, t.Pos, t.Color)
	}
	s.End()

	touched := s.Touched()
	p.processed.Add(1)
	p.touched.Add(uint64(len(touched)))
	if p.Dirty == nil {
		return touched
	}

	priority := false
	if p.Player != nil && p.PriorityDistSq > 0 {
		priority = t.Pos.DistSq(p.Player()) <= p.PriorityDistSq
	}
	for _, k := range touched {
		p.Dirty.MarkChunkDirty(k, priority, true, false)
	}
	for _, n := range lattice.Neighbors26(t.Pos.Chunk(t.Dim)) {
		if k, ok := lattice.KeyOf(n); ok {
			p.Dirty.MarkChunkDirty(k, false, false, true)
		}
	}
	return touched
}

func (p *Processor) Processed() uint64 { return p.processed.Load() }

// TouchedChunks counts chunk writes over all processed tasks.
func (p *Processor) TouchedChunks() uint64 { return p.touched.Load() }

// Worker drains the queue in FIFO order, Budget tasks per tick.
type Worker struct {
	Queue     *Queue
	Processor *Processor
	Budget    int

	// OnBatch reports each non-empty tick.
	OnBatch func(tasks, touched int)
}

func (w *Worker) Tick() (done int) {
	budget := w.Budget
	if budget <= 0 {
		budget = 1
	}
	touched := 0
	for done < budget {
		t, ok := w.Queue.Pop()
		if !ok {
			break
		}
		touched += len(w.Processor.Process(t))
		done++
	}
	if done > 0 && w.OnBatch != nil {
		w.OnBatch(done, touched)
	}
	return done
}
