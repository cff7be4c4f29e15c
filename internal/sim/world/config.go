package world

import (
	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/lighting"
	"voxelsight.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID        string
	Dimension lattice.Dimension
	Tuning    tuning.Tuning

	// Engine overrides the built-in flood lighting.
	Engine lighting.Engine
}
