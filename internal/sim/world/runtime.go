package world

import (
	"context"
	"time"

	"voxelsight.ai/internal/sim/visibility"
)

// Run drives culling, graph rebuilds, lighting and dirty flushes at their
// configured intervals until ctx is done.
func (w *World) Run(ctx context.Context) error {
	ticks := w.cfg.Tuning.Ticks
	reg := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context)
	}{
		{"cull", ticks.Cull(), func(context.Context) { w.CullNow() }},
		{"regen", ticks.Regen(), func(context.Context) { w.regenTick() }},
		{"light", ticks.Light(), func(context.Context) { w.lightTick() }},
		{"flush", ticks.Flush(), func(context.Context) { w.flushTick() }},
	}
	for _, r := range reg {
		if err := w.sched.Register(r.name, r.interval, r.fn); err != nil {
			return err
		}
	}
	w.logf("world %s: running (view distance %d, occlusion %v)", w.cfg.ID, w.cfg.Tuning.ViewDistance, w.cfg.Tuning.Occlusion)
	return w.sched.Run(ctx)
}

// CullNow runs one cull pass for the current observer.
func (w *World) CullNow() visibility.Result {
	w.cullMu.Lock()
	defer w.cullMu.Unlock()

	backlog := w.regen.Len()
	res := w.culler.Tick(w.Observer(), backlog)
	if res.Skipped {
		w.stats.cullSkips.Add(1)
		return res
	}
	w.stats.cullPasses.Add(1)
	w.stats.rays.Add(uint64(res.Rays))
	w.stats.aborted.Add(uint64(res.Aborted))
	w.stats.lastCullUS.Store(res.Duration.Microseconds())

	if box := w.passLog.Load(); box != nil {
		c := res.Center
		err := box.l.WriteCullPass(CullPassEntry{
			Time:         time.Now().UTC().Format(time.RFC3339Nano),
			World:        w.cfg.ID,
			Pass:         res.Pass,
			Center:       [4]int{c.X, c.Y, c.Z, int(c.Dim)},
			OcclusionOff: res.OcclusionOff,
			Rays:         res.Rays,
			Aborted:      res.Aborted,
			Visible:      res.Visible,
			Loaded:       w.chunks.Len(),
			Backlog:      backlog,
			DurationUS:   res.Duration.Microseconds(),
		})
		if err != nil {
			w.logf("world %s: cull pass log: %v", w.cfg.ID, err)
		}
	}
	return res
}

func (w *World) regenTick() int {
	w.regenMu.Lock()
	defer w.regenMu.Unlock()
	return w.regenWorker.Tick()
}

// RegenAll rebuilds every stale graph that is queued.
func (w *World) RegenAll() int {
	total := 0
	for w.regen.Len() > 0 {
		total += w.regenTick()
	}
	return total
}

func (w *World) lightTick() int {
	w.lightMu.Lock()
	defer w.lightMu.Unlock()
	return w.lightWorker.Tick()
}

// DrainLights processes every queued light task.
func (w *World) DrainLights() int {
	total := 0
	for w.lights.Len() > 0 {
		total += w.lightTick()
	}
	return total
}

func (w *World) logLightBatch(tasks, touched int) {
	w.stats.lightBatches.Add(1)
	box := w.passLog.Load()
	if box == nil {
		return
	}
	err := box.l.WriteLightBatch(LightBatchEntry{
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		World:   w.cfg.ID,
		Tasks:   tasks,
		Touched: touched,
		Pending: w.lights.Len(),
	})
	if err != nil {
		w.logf("world %s: light batch log: %v", w.cfg.ID, err)
	}
}

// flushTick hands pending dirty marks to the sink. Without a sink they
// accumulate for DrainDirty.
func (w *World) flushTick() int {
	box := w.sink.Load()
	if box == nil {
		return 0
	}
	entries := w.dirty.Drain(w.cfg.Tuning.Budgets.DirtyPerFlush)
	if len(entries) == 0 {
		return 0
	}
	box.s.ChunksDirty(entries)
	w.stats.flushed.Add(uint64(len(entries)))
	return len(entries)
}
