package world

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"

	"voxelsight.ai/internal/sim/catalogs"
	"voxelsight.ai/internal/sim/chunk"
	"voxelsight.ai/internal/sim/dirty"
	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/light"
	"voxelsight.ai/internal/sim/lighting"
	"voxelsight.ai/internal/sim/scheduler"
	"voxelsight.ai/internal/sim/traverse"
	"voxelsight.ai/internal/sim/visibility"
)

// World owns the loaded chunks of one dimension together with their
// traversability, visibility and light state.
type World struct {
	cfg    WorldConfig
	cat    *catalogs.BlockCatalog
	logger *log.Logger

	chunks *chunk.Store
	mask   *visibility.Mask
	culler *visibility.Culler
	regen  *traverse.Queue
	lights *lighting.Queue
	dirty  *dirty.Tracker
	sched  *scheduler.Scheduler

	// Each worker keeps scratch state and runs on one goroutine at a time.
	cullMu      sync.Mutex
	regenMu     sync.Mutex
	lightMu     sync.Mutex
	regenWorker *traverse.Worker
	lightWorker *lighting.Worker
	processor   *lighting.Processor

	observer atomic.Pointer[mgl64.Vec3]
	sink     atomic.Pointer[sinkBox]
	passLog  atomic.Pointer[passLogBox]

	stats counters
}

type sinkBox struct{ s dirty.Sink }
type passLogBox struct{ l PassLogger }

type counters struct {
	cullPasses   atomic.Uint64
	cullSkips    atomic.Uint64
	rays         atomic.Uint64
	aborted      atomic.Uint64
	lastCullUS   atomic.Int64
	regenBuilt   atomic.Uint64
	flushed      atomic.Uint64
	lightBatches atomic.Uint64
}

func New(cfg WorldConfig, cat *catalogs.BlockCatalog, logger *log.Logger) (*World, error) {
	if cat == nil {
		return nil, errors.New("world: nil block catalog")
	}
	cfg.Tuning.Normalize()
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	if cfg.Dimension > lattice.MaxDimension {
		return nil, fmt.Errorf("world: dimension %d: %w", cfg.Dimension, lattice.ErrOutOfRange)
	}
	tu := cfg.Tuning
	engine := cfg.Engine
	if engine == nil {
		engine = lighting.NewFloodEngine(cat, tu.MinChunkY, tu.MaxChunkY)
	}

	w := &World{
		cfg:    cfg,
		cat:    cat,
		logger: logger,
		chunks: chunk.NewStore(),
		mask:   visibility.NewMask(),
		regen:  traverse.NewQueue(),
		lights: lighting.NewQueue(),
		dirty:  dirty.NewTracker(),
		sched:  scheduler.New(tu.Workers),
	}
	w.culler = visibility.NewCuller(w.cullConfig(), w.mask, w.chunks)
	w.regenWorker = &traverse.Worker{
		Store:   w.chunks,
		Queue:   w.regen,
		Builder: traverse.NewBuilder(cat),
		Budget:  tu.Budgets.RegenPerTick,
		Logger:  logger,
		OnBuilt: func(lattice.Key, lattice.Relation) { w.stats.regenBuilt.Add(1) },
	}
	w.processor = &lighting.Processor{
		Store:          w.chunks,
		Catalog:        cat,
		Engine:         engine,
		Dirty:          w.dirty,
		Player:         w.playerBlock,
		PriorityDistSq: tu.PriorityDistSq(),
	}
	w.lightWorker = &lighting.Worker{
		Queue:     w.lights,
		Processor: w.processor,
		Budget:    tu.Budgets.LightTasksPerTick,
		OnBatch:   w.logLightBatch,
	}
	return w, nil
}

func (w *World) ID() string                      { return w.cfg.ID }
func (w *World) Dimension() lattice.Dimension    { return w.cfg.Dimension }
func (w *World) Catalog() *catalogs.BlockCatalog { return w.cat }
func (w *World) Config() WorldConfig             { return w.cfg }

// Chunks exposes the chunk store for export and inspection.
func (w *World) Chunks() *chunk.Store { return w.chunks }

func (w *World) cullConfig() visibility.Config {
	tu := w.cfg.Tuning
	return visibility.Config{
		ViewDistance:          tu.ViewDistance,
		MinChunkY:             tu.MinChunkY,
		MaxChunkY:             tu.MaxChunkY,
		Dimension:             w.cfg.Dimension,
		Occlusion:             tu.Occlusion,
		MinChunksForOcclusion: tu.MinChunksForOcclusion,
		BacklogSlack:          tu.BacklogSlack,
		GraceDistance:         tu.GraceDistance,
	}
}

func (w *World) coord(x, y, z int) lattice.Coord {
	return lattice.Coord{X: x, Y: y, Z: z, Dim: w.cfg.Dimension}
}

// Observer returns the last camera position (origin until one is set).
func (w *World) Observer() mgl64.Vec3 {
	if p := w.observer.Load(); p != nil {
		return *p
	}
	return mgl64.Vec3{}
}

func (w *World) playerBlock() lattice.BlockPos {
	p := w.Observer()
	return lattice.BlockPos{
		X: int(math.Floor(p[0])),
		Y: int(math.Floor(p[1])),
		Z: int(math.Floor(p[2])),
	}
}

func (w *World) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}

func (w *World) lightAt(c lattice.Coord, i int) (light.Level, light.Tint) {
	if i < 0 || i >= lattice.ChunkVolume {
		return 0, 0
	}
	ch := w.chunks.At(c)
	if ch == nil {
		return 0, 0
	}
	return ch.Light().Get(i)
}
