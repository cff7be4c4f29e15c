// Command inspect loads a world offline, runs one culling pass from a given
// position and prints what it saw. With -passes it summarizes cull pass logs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"voxelsight.ai/internal/bootstrap"
	persistlog "voxelsight.ai/internal/persistence/log"
	"voxelsight.ai/internal/persistence/snapshot"
	"voxelsight.ai/internal/sim/catalogs"
	"voxelsight.ai/internal/sim/chunk"
	"voxelsight.ai/internal/sim/terrain/gen"
	"voxelsight.ai/internal/sim/tuning"
	"voxelsight.ai/internal/sim/world"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (default: generate terrain)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		seed       = flag.Int64("seed", 1337, "terrain seed when generating")
		genRadius  = flag.Int("gen_radius", 4, "generated chunk columns around the origin")
		pos        = flag.String("pos", "0.5,60,0.5", "observer position x,y,z in blocks")
		occlusion  = flag.Bool("occlusion", true, "enable occlusion culling")
		writePath  = flag.String("write", "", "write the loaded chunks to this snapshot path")
		passesDir  = flag.String("passes", "", "cull log dir containing cull-*.jsonl.zst (optional)")
	)
	flag.Parse()

	if *passesDir != "" {
		if err := summarizePasses(*passesDir); err != nil {
			fail("passes", err)
		}
		return
	}

	observer, err := parseVec(*pos)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -pos:", err)
		os.Exit(2)
	}

	cat, err := catalogs.Load(*configDir)
	if err != nil {
		fail("load catalogs", err)
	}
	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		fail("load tuning", err)
	}
	tune.Occlusion = *occlusion

	w, err := world.New(world.WorldConfig{ID: "inspect", Tuning: tune}, cat, nil)
	if err != nil {
		fail("world", err)
	}
	if *snapPath != "" {
		h, n, err := bootstrap.RestoreFile(w, *snapPath)
		if err != nil {
			fail("load snapshot", err)
		}
		*seed = h.Seed
		fmt.Printf("snapshot v%d world=%s dim=%d seed=%d chunks=%d\n", h.Version, h.WorldID, h.Dimension, h.Seed, n)
	} else {
		n, err := bootstrap.Generate(context.Background(), w, gen.DefaultParams(*seed), 0, 0, *genRadius, tune.Workers)
		if err != nil {
			fail("generate", err)
		}
		fmt.Printf("generated seed=%d chunks=%d\n", *seed, n)
	}
	fmt.Printf("graphs built=%d\n", w.RegenAll())

	hist := map[int]int{}
	w.Chunks().ForEach(func(ch *chunk.Chunk) { hist[ch.Relation().Pairs()]++ })
	pairs := make([]int, 0, len(hist))
	for p := range hist {
		pairs = append(pairs, p)
	}
	sort.Ints(pairs)
	fmt.Println("connected face pairs per chunk:")
	for _, p := range pairs {
		fmt.Printf("  %2d pairs: %d\n", p, hist[p])
	}

	w.SetObserver(observer)
	res := w.CullNow()
	fmt.Printf("cull pass=%d center=%s occlusion_off=%v rays=%d aborted=%d visible=%d/%d in %s\n",
		res.Pass, res.Center, res.OcclusionOff, res.Rays, res.Aborted, res.Visible, w.Chunks().Len(), res.Duration)

	if *writePath != "" {
		snap := snapshot.Export("inspect", w.Dimension(), *seed, w.Chunks())
		if err := snapshot.WriteChunks(*writePath, snap); err != nil {
			fail("write snapshot", err)
		}
		fmt.Printf("wrote %s (%d chunks)\n", *writePath, snap.Header.Chunks)
	}
}

func summarizePasses(dir string) error {
	files, err := persistlog.Segments(dir, "cull")
	if err != nil {
		return err
	}
	var (
		passes, off   int
		rays, aborted int
		visible       int
		maxUS         int64
	)
	for _, f := range files {
		err := persistlog.ReadJSONL(f, func(line []byte) error {
			var e world.CullPassEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			passes++
			if e.OcclusionOff {
				off++
			}
			rays += e.Rays
			aborted += e.Aborted
			visible += e.Visible
			if e.DurationUS > maxUS {
				maxUS = e.DurationUS
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	fmt.Printf("files=%d passes=%d occlusion_off=%d rays=%d aborted=%d max_us=%d\n", len(files), passes, off, rays, aborted, maxUS)
	if passes > 0 {
		fmt.Printf("mean visible=%.1f mean rays=%.1f\n", float64(visible)/float64(passes), float64(rays)/float64(passes))
	}
	return nil
}

func parseVec(s string) (mgl64.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return mgl64.Vec3{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v mgl64.Vec3
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return mgl64.Vec3{}, err
		}
		v[i] = f
	}
	return v, nil
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
