package lattice

import "voxelsight.ai/internal/sim/mathx"

// BlockPos is a world voxel position.
type BlockPos struct {
	X, Y, Z int
}

func (p BlockPos) Chunk(dim Dimension) Coord {
	return Coord{
		X:   mathx.FloorDiv(p.X, ChunkSize),
		Y:   mathx.FloorDiv(p.Y, ChunkSize),
		Z:   mathx.FloorDiv(p.Z, ChunkSize),
		Dim: dim,
	}
}

// Local returns the flat voxel index of p inside its chunk.
func (p BlockPos) Local() int {
	return Index(mathx.Mod(p.X, ChunkSize), mathx.Mod(p.Y, ChunkSize), mathx.Mod(p.Z, ChunkSize))
}

func (p BlockPos) Step(f Face) BlockPos {
	o := f.Offset()
	return BlockPos{X: p.X + o[0], Y: p.Y + o[1], Z: p.Z + o[2]}
}

func (p BlockPos) DistSq(o BlockPos) int {
	dx, dy, dz := p.X-o.X, p.Y-o.Y, p.Z-o.Z
	return dx*dx + dy*dy + dz*dz
}

// Index layout: x + z*32 + y*1024.
func Index(x, y, z int) int {
	return x | z<<ChunkBits | y<<(2*ChunkBits)
}

func Unindex(i int) (x, y, z int) {
	return i & (ChunkSize - 1), i >> (2 * ChunkBits), (i >> ChunkBits) & (ChunkSize - 1)
}

func InChunk(x, y, z int) bool {
	return uint(x) < ChunkSize && uint(y) < ChunkSize && uint(z) < ChunkSize
}

// BlockAt returns the world position of voxel i in chunk c.
func BlockAt(c Coord, i int) BlockPos {
	x, y, z := Unindex(i)
	o := c.Origin()
	return BlockPos{X: o.X + x, Y: o.Y + y, Z: o.Z + z}
}
