package visibility

import "voxelsight.ai/internal/sim/mathx"

// Offset is an XZ chunk offset from the observer's chunk.
type Offset struct {
	DX, DZ int
}

// octRadius is the octagonal distance used to bucket offsets into shells.
func octRadius(dx, dz int) int {
	a, b := mathx.AbsInt(dx), mathx.AbsInt(dz)
	if a < b {
		a, b = b, a
	}
	return a + b/2
}

// Shells returns one ring of offsets per integer radius 0..viewDistance.
// Ring 0 holds only the observer's own column.
func Shells(viewDistance int) [][]Offset {
	if viewDistance < 0 {
		viewDistance = 0
	}
	out := make([][]Offset, viewDistance+1)
	for dz := -viewDistance; dz <= viewDistance; dz++ {
		for dx := -viewDistance; dx <= viewDistance; dx++ {
			r := octRadius(dx, dz)
			if r > viewDistance {
				continue
			}
			out[r] = append(out[r], Offset{DX: dx, DZ: dz})
		}
	}
	return out
}
