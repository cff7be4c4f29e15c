package main

import (
	"fmt"
	"net/http"

	"voxelsight.ai/internal/persistence/indexdb"
	"voxelsight.ai/internal/sim/world"
	"voxelsight.ai/internal/transport/observer"
)

func metricsHandler(w *world.World, idx *indexdb.SQLiteIndex, obs *observer.Server) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		id := w.ID()
		m := w.Metrics()

		gauge := func(name, help string, v any) {
			fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
			fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
			fmt.Fprintf(rw, "%s{world=%q} %v\n", name, id, v)
		}
		counter := func(name, help string, v uint64) {
			fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
			fmt.Fprintf(rw, "# TYPE %s counter\n", name)
			fmt.Fprintf(rw, "%s{world=%q} %d\n", name, id, v)
		}

		gauge("voxelsight_loaded_chunks", "Loaded chunk count.", m.LoadedChunks)
		gauge("voxelsight_visible_chunks", "Chunks in the committed visible set.", m.Visible)
		gauge("voxelsight_visibility_pass", "Committed visibility pass number.", m.Pass)
		gauge("voxelsight_last_cull_us", "Duration of the last culling pass in microseconds.", m.LastCullUS)
		gauge("voxelsight_observer_connections", "Open observer sockets.", obs.Connections())

		fmt.Fprintf(rw, "# HELP voxelsight_queue_depth Pending work per queue.\n")
		fmt.Fprintf(rw, "# TYPE voxelsight_queue_depth gauge\n")
		fmt.Fprintf(rw, "voxelsight_queue_depth{world=%q,queue=%q} %d\n", id, "regen", m.QueueDepths.Regen)
		fmt.Fprintf(rw, "voxelsight_queue_depth{world=%q,queue=%q} %d\n", id, "light", m.QueueDepths.Light)
		fmt.Fprintf(rw, "voxelsight_queue_depth{world=%q,queue=%q} %d\n", id, "dirty", m.QueueDepths.Dirty)

		counter("voxelsight_mask_flips_total", "Visible mask buffer flips.", m.Flips)
		counter("voxelsight_cull_passes_total", "Culling passes run.", m.CullPasses)
		counter("voxelsight_cull_skips_total", "Culling passes skipped as unchanged.", m.CullSkips)
		counter("voxelsight_rays_total", "Rays cast by the culler.", m.RaysTotal)
		counter("voxelsight_rays_aborted_total", "Rays stopped by the step or backlog limits.", m.RaysAborted)
		counter("voxelsight_graphs_built_total", "Traversal graphs rebuilt.", m.GraphsBuilt)
		counter("voxelsight_light_tasks_total", "Lighting tasks processed.", m.LightTasks)
		counter("voxelsight_light_batches_total", "Lighting worker ticks with work.", m.LightBatches)
		counter("voxelsight_light_touched_chunks_total", "Chunk light writes over all tasks.", m.LightTouched)
		counter("voxelsight_light_snapshots_total", "Light buffer snapshots taken.", m.LightBuffered)
		counter("voxelsight_dirty_marks_total", "Dirty marks recorded.", m.DirtyMarks)
		counter("voxelsight_dirty_flushed_total", "Dirty marks handed to the sink.", m.DirtyFlushed)

		fmt.Fprintf(rw, "# HELP voxelsight_component_runs_total Scheduler runs per component.\n")
		fmt.Fprintf(rw, "# TYPE voxelsight_component_runs_total counter\n")
		for _, st := range m.Scheduler {
			fmt.Fprintf(rw, "voxelsight_component_runs_total{world=%q,component=%q} %d\n", id, st.Name, st.Runs)
		}
		fmt.Fprintf(rw, "# HELP voxelsight_component_skips_total Ticks skipped while a component was still running.\n")
		fmt.Fprintf(rw, "# TYPE voxelsight_component_skips_total counter\n")
		for _, st := range m.Scheduler {
			fmt.Fprintf(rw, "voxelsight_component_skips_total{world=%q,component=%q} %d\n", id, st.Name, st.Skips)
		}

		if idx == nil {
			return
		}
		st := idx.Stats()
		gauge("voxelsight_index_queue_depth", "Pending index writes.", st.QueueDepth)
		fmt.Fprintf(rw, "# HELP voxelsight_index_dropped_total Index writes dropped on a full queue.\n")
		fmt.Fprintf(rw, "# TYPE voxelsight_index_dropped_total counter\n")
		fmt.Fprintf(rw, "voxelsight_index_dropped_total{world=%q,kind=%q} %d\n", id, "pass", st.DropPassTotal)
		fmt.Fprintf(rw, "voxelsight_index_dropped_total{world=%q,kind=%q} %d\n", id, "light", st.DropLightTotal)
		fmt.Fprintf(rw, "voxelsight_index_dropped_total{world=%q,kind=%q} %d\n", id, "snapshot", st.DropSnapshotTotal)
		counter("voxelsight_index_written_total", "Index rows written.", st.WrittenTotal)
		counter("voxelsight_index_failed_total", "Index writes that failed.", st.FailedTotal)
	}
}
