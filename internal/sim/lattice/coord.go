package lattice

import (
	"errors"
	"fmt"
)

const (
	ChunkBits   = 5
	ChunkSize   = 1 << ChunkBits // 32
	ChunkVolume = ChunkSize * ChunkSize * ChunkSize
)

// Key layout (most to least significant): dim(4) | x(24) | z(24) | y(12).
const (
	yBits   = 12
	xzBits  = 24
	dimBits = 4

	index3dMulZ    = uint64(1) << yBits
	index3dMulX    = uint64(1) << (yBits + xzBits)
	dimensionShift = yBits + 2*xzBits

	yBias  = 1 << (yBits - 1)
	xzBias = 1 << (xzBits - 1)

	yMask  = uint64(1)<<yBits - 1
	xzMask = uint64(1)<<xzBits - 1

	MaxDimension = 1<<dimBits - 1
)

var ErrOutOfRange = errors.New("chunk coordinate out of range")

// Dimension tags a parallel world layer (caves, other realms).
type Dimension uint8

// Coord is a chunk coordinate on the lattice.
type Coord struct {
	X, Y, Z int
	Dim     Dimension
}

func (c Coord) String() string {
	if c.Dim == 0 {
		return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
	}
	return fmt.Sprintf("(%d,%d,%d)@%d", c.X, c.Y, c.Z, c.Dim)
}

func (c Coord) Add(dx, dy, dz int) Coord {
	return Coord{X: c.X + dx, Y: c.Y + dy, Z: c.Z + dz, Dim: c.Dim}
}

func (c Coord) Step(f Face) Coord {
	o := f.Offset()
	return c.Add(o[0], o[1], o[2])
}

// Manhattan returns the lattice distance between two coordinates of the same dimension.
func (c Coord) Manhattan(o Coord) int {
	return abs(c.X-o.X) + abs(c.Y-o.Y) + abs(c.Z-o.Z)
}

// Origin is the world position of the chunk's (0,0,0) voxel.
func (c Coord) Origin() BlockPos {
	return BlockPos{X: c.X << ChunkBits, Y: c.Y << ChunkBits, Z: c.Z << ChunkBits}
}

// Key is the storage key for every chunk-keyed map.
type Key uint64

func InRange(c Coord) bool {
	return c.X >= -xzBias && c.X < xzBias &&
		c.Z >= -xzBias && c.Z < xzBias &&
		c.Y >= -yBias && c.Y < yBias &&
		c.Dim <= MaxDimension
}

// KeyOf maps c to its key. ok is false when c lies outside the supported range.
func KeyOf(c Coord) (Key, bool) {
	if !InRange(c) {
		return 0, false
	}
	k := uint64(c.Dim)<<dimensionShift |
		uint64(c.X+xzBias)*index3dMulX |
		uint64(c.Z+xzBias)*index3dMulZ |
		uint64(c.Y+yBias)
	return Key(k), true
}

func MustKey(c Coord) Key {
	k, ok := KeyOf(c)
	if !ok {
		panic(fmt.Errorf("%w: %s", ErrOutOfRange, c))
	}
	return k
}

func (k Key) Coord() Coord {
	u := uint64(k)
	return Coord{
		X:   int((u/index3dMulX)&xzMask) - xzBias,
		Z:   int((u/index3dMulZ)&xzMask) - xzBias,
		Y:   int(u&yMask) - yBias,
		Dim: Dimension(u >> dimensionShift),
	}
}

func (k Key) String() string { return k.Coord().String() }

// Neighbors26 returns the 3x3x3 block around c without c itself.
func Neighbors26(c Coord) []Coord {
	out := make([]Coord, 0, 26)
	for dy := -1; dy <= 1; dy++ {
		for dz := -1; dz <= 1; dz++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				out = append(out, c.Add(dx, dy, dz))
			}
		}
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
