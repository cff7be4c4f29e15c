// Package bootstrap fills a world with chunks, either from a snapshot file
// or from the terrain generator.
package bootstrap

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"voxelsight.ai/internal/persistence/snapshot"
	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/terrain/gen"
	"voxelsight.ai/internal/sim/world"
)

// Restore loads every chunk of snap into w, light included. A snapshot taken
// in another dimension is rejected.
func Restore(w *world.World, snap snapshot.ChunksV1) (int, error) {
	if lattice.Dimension(snap.Header.Dimension) != w.Dimension() {
		return 0, fmt.Errorf("snapshot dimension %d, world dimension %d", snap.Header.Dimension, w.Dimension())
	}
	n := 0
	for _, c := range snap.Chunks {
		voxels, err := c.Voxels()
		if err != nil {
			return n, fmt.Errorf("chunk %d,%d,%d: %w", c.X, c.Y, c.Z, err)
		}
		coord := c.Coord(w.Dimension())
		if err := w.LoadChunk(coord, voxels); err != nil {
			return n, fmt.Errorf("chunk %s: %w", coord, err)
		}
		if err := w.RestoreLight(coord, c.LightLevels, c.LightTints, c.HasLight); err != nil {
			return n, fmt.Errorf("chunk %s light: %w", coord, err)
		}
		n++
	}
	return n, nil
}

// RestoreFile is Restore over a snapshot on disk.
func RestoreFile(w *world.World, path string) (snapshot.Header, int, error) {
	snap, err := snapshot.ReadChunks(path)
	if err != nil {
		return snapshot.Header{}, 0, err
	}
	n, err := Restore(w, snap)
	return snap.Header, n, err
}

// Generate loads every chunk column within radius of (cx, cz), over the
// world's vertical range. Chunks are generated in parallel and loaded in
// column order.
func Generate(ctx context.Context, w *world.World, p gen.Params, cx, cz, radius, workers int) (int, error) {
	tu := w.Config().Tuning
	var coords []lattice.Coord
	for x := cx - radius; x <= cx+radius; x++ {
		for z := cz - radius; z <= cz+radius; z++ {
			for y := tu.MinChunkY; y <= tu.MaxChunkY; y++ {
				coords = append(coords, lattice.Coord{X: x, Y: y, Z: z, Dim: w.Dimension()})
			}
		}
	}

	voxels := make([][]uint16, len(coords))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, c := range coords {
		i, c := i, c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			voxels[i] = gen.Generate(p, c, w.Catalog())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	for i, c := range coords {
		if err := w.LoadChunk(c, voxels[i]); err != nil {
			return i, fmt.Errorf("chunk %s: %w", c, err)
		}
	}
	return len(coords), nil
}
