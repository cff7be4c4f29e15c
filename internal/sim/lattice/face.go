package lattice

import "math/bits"

// Face is one of the six faces of a chunk (or voxel).
type Face uint8

const (
	North Face = iota // -Z
	East              // +X
	South             // +Z
	West              // -X
	Up                // +Y
	Down              // -Y

	NumFaces = 6
)

var faceOffsets = [NumFaces][3]int{
	North: {0, 0, -1},
	East:  {1, 0, 0},
	South: {0, 0, 1},
	West:  {-1, 0, 0},
	Up:    {0, 1, 0},
	Down:  {0, -1, 0},
}

var faceNames = [NumFaces]string{"north", "east", "south", "west", "up", "down"}

func (f Face) Offset() [3]int { return faceOffsets[f] }

func (f Face) Opposite() Face {
	switch f {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	case Up:
		return Down
	default:
		return Up
	}
}

func (f Face) String() string {
	if f >= NumFaces {
		return "invalid"
	}
	return faceNames[f]
}

// FaceSet is a 6-bit set of faces.
type FaceSet uint8

const AllFaces FaceSet = 1<<NumFaces - 1

func (s FaceSet) Has(f Face) bool     { return s&(1<<f) != 0 }
func (s FaceSet) With(f Face) FaceSet { return s | 1<<f }
func (s FaceSet) Len() int            { return bits.OnesCount8(uint8(s)) }

// Relation records which pairs of distinct chunk faces are connected through
// open voxels. Pair order is irrelevant; there are 15 pairs.
type Relation uint16

const (
	RelationNone Relation = 0
	RelationAll  Relation = 1<<15 - 1
)

var pairBit [NumFaces][NumFaces]int8

func init() {
	n := int8(0)
	for a := 0; a < NumFaces; a++ {
		pairBit[a][a] = -1
		for b := a + 1; b < NumFaces; b++ {
			pairBit[a][b] = n
			pairBit[b][a] = n
			n++
		}
	}
}

func (r Relation) Connect(a, b Face) Relation {
	if a >= NumFaces || b >= NumFaces || a == b {
		return r
	}
	return r | 1<<pairBit[a][b]
}

func (r Relation) Connected(a, b Face) bool {
	if a >= NumFaces || b >= NumFaces || a == b {
		return false
	}
	return r&(1<<pairBit[a][b]) != 0
}

// ConnectAll connects every pair of faces in s.
func (r Relation) ConnectAll(s FaceSet) Relation {
	for a := Face(0); a < NumFaces; a++ {
		if !s.Has(a) {
			continue
		}
		for b := a + 1; b < NumFaces; b++ {
			if s.Has(b) {
				r = r.Connect(a, b)
			}
		}
	}
	return r
}

func (r Relation) Pairs() int { return bits.OnesCount16(uint16(r & RelationAll)) }
