// Package gen produces deterministic hash terrain for tools and local runs.
package gen

import (
	"voxelsight.ai/internal/sim/catalogs"
	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/mathx"
)

type Params struct {
	Seed int64
	// BaseHeight and Amplitude shape the surface in world blocks.
	BaseHeight int
	Amplitude  int
	// CellSize is the spacing of the interpolated height lattice.
	CellSize        int
	BiomeRegionSize int
	// CavePermille is the share of cave cells carved below the surface.
	CavePermille int
}

func DefaultParams(seed int64) Params {
	return Params{
		Seed:            seed,
		BaseHeight:      48,
		Amplitude:       24,
		CellSize:        16,
		BiomeRegionSize: 256,
		CavePermille:    120,
	}
}

type palette struct {
	air, stone, dirt, grass, sand, leaves, torch uint16
}

func paletteOf(cat *catalogs.BlockCatalog) palette {
	id := func(name string, fallback uint16) uint16 {
		if v, ok := cat.ID(name); ok {
			return v
		}
		return fallback
	}
	p := palette{air: catalogs.AirID}
	p.stone = id("STONE", p.air)
	p.dirt = id("DIRT", p.stone)
	p.grass = id("GRASS", p.dirt)
	p.sand = id("SAND", p.dirt)
	p.leaves = id("LEAVES", p.air)
	p.torch = id("TORCH", p.air)
	return p
}

func BiomeFrom(noise uint64) string {
	switch noise % 3 {
	case 0:
		return "PLAINS"
	case 1:
		return "FOREST"
	default:
		return "DESERT"
	}
}

func BiomeAt(seed int64, x, z, regionSize int) string {
	if regionSize <= 0 {
		regionSize = 1
	}
	return BiomeFrom(mathx.Hash2(seed, mathx.FloorDiv(x, regionSize), mathx.FloorDiv(z, regionSize)))
}

// InCluster reports whether (x, z) falls inside one of the discs scattered
// on a grid with the given probability per cell.
func InCluster(seed int64, x, z, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gx := mathx.FloorDiv(x, grid)
	gz := mathx.FloorDiv(z, grid)
	r2 := radius * radius
	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			h := mathx.Hash2(seed, gx+dx, gz+dz)
			if h%1000 >= probPermille {
				continue
			}
			cx := (gx+dx)*grid + int((h>>10)%uint64(grid))
			cz := (gz+dz)*grid + int((h>>20)%uint64(grid))
			ddx, ddz := x-cx, z-cz
			if ddx*ddx+ddz*ddz <= r2 {
				return true
			}
		}
	}
	return false
}

// Height is the surface height at world column (x, z): bilinear
// interpolation of hashed corner values.
func (p Params) Height(x, z int) int {
	cell := p.CellSize
	if cell <= 0 {
		cell = 1
	}
	gx, gz := mathx.FloorDiv(x, cell), mathx.FloorDiv(z, cell)
	fx := float64(mathx.Mod(x, cell)) / float64(cell)
	fz := float64(mathx.Mod(z, cell)) / float64(cell)
	corner := func(cx, cz int) float64 { return mathx.Unit(mathx.Hash2(p.Seed, cx, cz))*2 - 1 }
	top := corner(gx, gz)*(1-fx) + corner(gx+1, gz)*fx
	bot := corner(gx, gz+1)*(1-fx) + corner(gx+1, gz+1)*fx
	v := top*(1-fz) + bot*fz
	return p.BaseHeight + int(v*float64(p.Amplitude))
}

func (p Params) cave(x, y, z int) bool {
	if p.CavePermille <= 0 {
		return false
	}
	h := mathx.Hash3(p.Seed+7, mathx.FloorDiv(x, 8), mathx.FloorDiv(y, 6), mathx.FloorDiv(z, 8))
	return int(h%1000) < p.CavePermille
}

// Generate fills the chunk at c. It returns nil when the chunk is all air.
func Generate(p Params, c lattice.Coord, cat *catalogs.BlockCatalog) []uint16 {
	pal := paletteOf(cat)
	out := make([]uint16, lattice.ChunkVolume)
	solid := 0
	origin := c.Origin()
	for z := 0; z < lattice.ChunkSize; z++ {
		for x := 0; x < lattice.ChunkSize; x++ {
			wx, wz := origin.X+x, origin.Z+z
			surface := p.Height(wx, wz)
			biome := BiomeAt(p.Seed, wx, wz, p.BiomeRegionSize)
			canopy := biome == "FOREST" && InCluster(p.Seed+201, wx, wz, 24, 3, 450)
			for y := 0; y < lattice.ChunkSize; y++ {
				wy := origin.Y + y
				b := pal.air
				switch {
				case wy > surface:
					if canopy && wy > surface+3 && wy <= surface+6 {
						b = pal.leaves
					}
				case wy < surface-4 && p.cave(wx, wy, wz):
					if !p.cave(wx, wy-1, wz) && mathx.Hash3(p.Seed+11, wx, wy, wz)%997 == 0 {
						b = pal.torch
					}
				case wy == surface:
					if biome == "DESERT" {
						b = pal.sand
					} else {
						b = pal.grass
					}
				case wy > surface-4:
					if biome == "DESERT" {
						b = pal.sand
					} else {
						b = pal.dirt
					}
				default:
					b = pal.stone
				}
				if b != pal.air {
					out[lattice.Index(x, y, z)] = b
					solid++
				}
			}
		}
	}
	if solid == 0 {
		return nil
	}
	return out
}
