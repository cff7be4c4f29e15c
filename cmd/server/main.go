package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"

	"voxelsight.ai/internal/bootstrap"
	"voxelsight.ai/internal/persistence/indexdb"
	persistlog "voxelsight.ai/internal/persistence/log"
	"voxelsight.ai/internal/persistence/snapshot"
	"voxelsight.ai/internal/sim/catalogs"
	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/terrain/gen"
	"voxelsight.ai/internal/sim/tuning"
	"voxelsight.ai/internal/sim/world"
	"voxelsight.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		dim        = flag.Int("dim", 0, "world dimension")
		seed       = flag.Int64("seed", 1337, "terrain seed (used only when no snapshot is loaded)")
		genRadius  = flag.Int("gen_radius", 6, "generated chunk columns around the origin, in chunks")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite pass index")

		snapPath      = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest    = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
		snapshotEvery = flag.Duration("snapshot_every", 10*time.Minute, "periodic snapshot interval (0 disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cat, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	w, err := world.New(world.WorldConfig{
		ID:        *worldID,
		Dimension: lattice.Dimension(*dim),
		Tuning:    tune,
	}, cat, logger)
	if err != nil {
		logger.Fatalf("create world: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	worldSeed := *seed
	if snapshotToLoad != "" {
		h, n, err := bootstrap.RestoreFile(w, snapshotToLoad)
		if err != nil {
			logger.Fatalf("load snapshot: %v", err)
		}
		worldSeed = h.Seed
		logger.Printf("loaded snapshot %s (%d chunks, seed %d)", snapshotToLoad, n, h.Seed)
	} else {
		start := time.Now()
		n, err := bootstrap.Generate(ctx, w, gen.DefaultParams(worldSeed), 0, 0, *genRadius, tune.Workers)
		if err != nil {
			logger.Fatalf("generate terrain: %v", err)
		}
		logger.Printf("generated %d chunks in %s (seed %d)", n, time.Since(start).Round(time.Millisecond), worldSeed)
	}
	built := w.RegenAll()
	logger.Printf("built %d traversal graphs", built)

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(filepath.Join(*configDir, "blocks.json"), cat, w.Config().Tuning); err != nil {
			logger.Printf("index catalogs: %v", err)
		}
	}

	passLog := persistlog.NewPassLogger(worldDir)
	defer passLog.Close()
	loggers := world.PassLoggers{passLog}
	if idx != nil {
		loggers = append(loggers, idx)
	}
	w.SetPassLogger(loggers)

	// Spawn the observer above the origin column until a client moves it.
	w.SetObserver(mgl64.Vec3{0.5, float64(gen.DefaultParams(worldSeed).BaseHeight + 2), 0.5})

	saveSnapshot := func() {
		snap := snapshot.Export(*worldID, w.Dimension(), worldSeed, w.Chunks())
		path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", time.Now().Unix()))
		if err := snapshot.WriteChunks(path, snap); err != nil {
			logger.Printf("snapshot write: %v", err)
			return
		}
		if idx != nil {
			idx.RecordSnapshot(path, snap)
		}
		logger.Printf("snapshot %s (%d chunks)", path, snap.Header.Chunks)
	}

	obsSrv := observer.NewServer(w, logger, observer.Options{
		SubscribePerSec: tune.RateLimits.SubscribePerSec,
		SubscribeBurst:  tune.RateLimits.SubscribeBurst,
	})
	w.SetDirtySink(obsSrv)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w, idx, obsSrv))
	mux.HandleFunc("/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("world: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	if *snapshotEvery > 0 {
		g.Go(func() error {
			t := time.NewTicker(*snapshotEvery)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
					saveSnapshot()
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		logger.Printf("stopped: %v", err)
	}
	saveSnapshot()
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTS int64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		ts, err := strconv.ParseInt(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || ts > bestTS {
			bestTS = ts
			best = filepath.Join(dir, name)
		}
	}
	return best
}
