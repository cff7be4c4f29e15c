package world

import (
	"voxelsight.ai/internal/sim/chunk"
	"voxelsight.ai/internal/sim/scheduler"
)

// WorldMetrics is a point-in-time view for HTTP handlers and tools.
type WorldMetrics struct {
	World        string `json:"world"`
	LoadedChunks int    `json:"loaded_chunks"`
	Visible      int    `json:"visible"`
	Pass         uint64 `json:"pass"`
	Flips        uint64 `json:"flips"`

	QueueDepths QueueDepths `json:"queue_depths"`

	CullPasses    uint64 `json:"cull_passes"`
	CullSkips     uint64 `json:"cull_skips"`
	RaysTotal     uint64 `json:"rays_total"`
	RaysAborted   uint64 `json:"rays_aborted"`
	LastCullUS    int64  `json:"last_cull_us"`
	GraphsBuilt   uint64 `json:"graphs_built"`
	LightTasks    uint64 `json:"light_tasks"`
	LightBatches  uint64 `json:"light_batches"`
	LightTouched  uint64 `json:"light_touched_chunks"`
	DirtyMarks    uint64 `json:"dirty_marks"`
	DirtyFlushed  uint64 `json:"dirty_flushed"`
	LightBuffered uint64 `json:"light_snapshots"`

	Scheduler []scheduler.Stat `json:"scheduler,omitempty"`
}

type QueueDepths struct {
	Regen int `json:"regen"`
	Light int `json:"light"`
	Dirty int `json:"dirty"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m := WorldMetrics{
		World:        w.cfg.ID,
		LoadedChunks: w.chunks.Len(),
		Visible:      w.mask.Len(),
		Pass:         w.mask.PassNumber(),
		Flips:        w.mask.Flips(),
		QueueDepths: QueueDepths{
			Regen: w.regen.Len(),
			Light: w.lights.Len(),
			Dirty: w.dirty.Len(),
		},
		CullPasses:   w.stats.cullPasses.Load(),
		CullSkips:    w.stats.cullSkips.Load(),
		RaysTotal:    w.stats.rays.Load(),
		RaysAborted:  w.stats.aborted.Load(),
		LastCullUS:   w.stats.lastCullUS.Load(),
		GraphsBuilt:  w.stats.regenBuilt.Load(),
		LightTasks:   w.processor.Processed(),
		LightBatches: w.stats.lightBatches.Load(),
		LightTouched: w.processor.TouchedChunks(),
		DirtyMarks:   w.dirty.Total(),
		DirtyFlushed: w.stats.flushed.Load(),
		Scheduler:    w.sched.Stats(),
	}
	w.chunks.ForEach(func(ch *chunk.Chunk) { m.LightBuffered += ch.Light().Snapshots() })
	return m
}
