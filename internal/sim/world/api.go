package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"voxelsight.ai/internal/sim/chunk"
	"voxelsight.ai/internal/sim/dirty"
	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/light"
	"voxelsight.ai/internal/sim/lighting"
	"voxelsight.ai/internal/sim/traverse"
	"voxelsight.ai/internal/sim/visibility"
)

// IsVisible reads the stable visibility buffer. Unknown chunks are invisible.
func (w *World) IsVisible(c lattice.Coord) bool {
	k, ok := lattice.KeyOf(c)
	if !ok {
		return false
	}
	return w.mask.IsVisible(k)
}

// Visible returns the committed pass number and its visible chunks.
func (w *World) Visible() (uint64, []lattice.Coord) {
	pass, keys := w.mask.Snapshot()
	out := make([]lattice.Coord, len(keys))
	for i, k := range keys {
		out[i] = k.Coord()
	}
	return pass, out
}

func (w *World) PassNumber() uint64 { return w.mask.PassNumber() }

func (w *World) MarkChunkDirty(c lattice.Coord, priority, relight, edgeOnly bool) {
	k, ok := lattice.KeyOf(c)
	if !ok {
		return
	}
	w.dirty.MarkChunkDirty(k, priority, relight, edgeOnly)
}

func (w *World) EnqueueLightUpdate(t lighting.Task) {
	t.Dim = w.cfg.Dimension
	w.lights.Enqueue(t)
}

// GetLight returns the committed light of voxel i. Unloaded chunks are dark.
func (w *World) GetLight(c lattice.Coord, i int) (light.Level, light.Tint) {
	return w.lightAt(c, i)
}

// LoadChunk installs voxels for c. A nil slice loads an empty chunk.
func (w *World) LoadChunk(c lattice.Coord, blocks []uint16) error {
	c.Dim = w.cfg.Dimension
	ch, err := w.chunks.Load(c, blocks)
	if err != nil {
		return fmt.Errorf("load chunk %s: %w", c, err)
	}
	w.regen.Push(ch.Key)
	w.dirty.MarkChunkDirty(ch.Key, false, true, false)
	w.markNeighbours(c)
	return nil
}

// RestoreLight replaces the light plane of a loaded chunk.
func (w *World) RestoreLight(c lattice.Coord, levels, tints []byte, hasData bool) error {
	c.Dim = w.cfg.Dimension
	ch := w.chunks.At(c)
	if ch == nil {
		return fmt.Errorf("restore light %s: %w", c, chunk.ErrNotLoaded)
	}
	return ch.Light().Plane().Restore(levels, tints, hasData)
}

// UnloadChunk drops c and everything keyed by it.
func (w *World) UnloadChunk(c lattice.Coord) {
	c.Dim = w.cfg.Dimension
	k, ok := w.chunks.Unload(c)
	if !ok {
		return
	}
	w.regen.Remove(k)
	w.mask.Forget(k)
	w.dirty.Forget(k)
	w.markNeighbours(c)
}

func (w *World) markNeighbours(c lattice.Coord) {
	for _, n := range lattice.Neighbors26(c) {
		if k, ok := lattice.KeyOf(n); ok {
			w.dirty.MarkChunkDirty(k, false, false, true)
		}
	}
}

func (w *World) SetObserver(p mgl64.Vec3) {
	w.observer.Store(&p)
}

// CullConfig is the culler's live config, including camera overrides.
func (w *World) CullConfig() visibility.Config { return w.culler.Config() }

func (w *World) SetViewDistance(n int) {
	w.culler.Update(func(cfg *visibility.Config) { cfg.ViewDistance = n })
}

func (w *World) SetOcclusion(on bool) {
	w.culler.Update(func(cfg *visibility.Config) { cfg.Occlusion = on })
}

// SetBlock changes one voxel and schedules everything that depends on it.
func (w *World) SetBlock(p lattice.BlockPos, id uint16) error {
	c := p.Chunk(w.cfg.Dimension)
	ch := w.chunks.At(c)
	if ch == nil {
		return fmt.Errorf("set block %v: %w", p, chunk.ErrNotLoaded)
	}
	old, err := ch.SetBlock(p.Local(), id)
	if err != nil {
		return fmt.Errorf("set block %v: %w", p, err)
	}
	if old == id {
		return nil
	}
	w.lights.Enqueue(lighting.Task{
		Kind: lighting.Replace,
		Pos:  p,
		Dim:  w.cfg.Dimension,
		Old:  old,
		New:  id,
	})
	if traverse.OpacityChanged(w.cat, old, id) {
		ch.MarkGraphStale()
		w.regen.Push(ch.Key)
	}
	priority := p.DistSq(w.playerBlock()) <= w.cfg.Tuning.PriorityDistSq()
	w.dirty.MarkChunkDirty(ch.Key, priority, false, false)
	w.markNeighbours(c)
	return nil
}

// Block reads a world voxel; unloaded reads as AIR.
func (w *World) Block(p lattice.BlockPos) (uint16, bool) {
	return w.chunks.BlockAt(w.cfg.Dimension, p)
}

func (w *World) SetDirtySink(s dirty.Sink) {
	if s == nil {
		w.sink.Store(nil)
		return
	}
	w.sink.Store(&sinkBox{s: s})
}

func (w *World) SetPassLogger(l PassLogger) {
	if l == nil {
		w.passLog.Store(nil)
		return
	}
	w.passLog.Store(&passLogBox{l: l})
}

// DrainDirty removes up to limit pending marks, priority first.
func (w *World) DrainDirty(limit int) []dirty.Entry {
	return w.dirty.Drain(limit)
}
