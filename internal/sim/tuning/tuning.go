package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	ViewDistance          int  `yaml:"view_distance"`
	MinChunkY             int  `yaml:"min_chunk_y"`
	MaxChunkY             int  `yaml:"max_chunk_y"`
	Occlusion             bool `yaml:"occlusion"`
	MinChunksForOcclusion int  `yaml:"min_chunks_for_occlusion"`
	BacklogSlack          int  `yaml:"backlog_slack"`
	GraceDistance         int  `yaml:"grace_distance"`
	PriorityDistance      int  `yaml:"priority_distance"` // blocks

	Ticks   Ticks   `yaml:"ticks"`
	Budgets Budgets `yaml:"budgets"`
	Workers int     `yaml:"workers"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

// Ticks are per-component intervals in milliseconds.
type Ticks struct {
	CullMs  int `yaml:"cull_ms"`
	RegenMs int `yaml:"regen_ms"`
	LightMs int `yaml:"light_ms"`
	FlushMs int `yaml:"flush_ms"`
}

type Budgets struct {
	RegenPerTick      int `yaml:"regen_per_tick"`
	LightTasksPerTick int `yaml:"light_tasks_per_tick"`
	DirtyPerFlush     int `yaml:"dirty_per_flush"`
}

type RateLimits struct {
	SubscribePerSec float64 `yaml:"subscribe_per_sec"`
	SubscribeBurst  int     `yaml:"subscribe_burst"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:       "1.0",
		ViewDistance:          8,
		MinChunkY:             -4,
		MaxChunkY:             11,
		Occlusion:             true,
		MinChunksForOcclusion: 64,
		BacklogSlack:          10,
		GraceDistance:         1,
		PriorityDistance:      48,
		Ticks:                 Ticks{CullMs: 10, RegenMs: 10, LightMs: 10, FlushMs: 20},
		Budgets:               Budgets{RegenPerTick: 8, LightTasksPerTick: 64, DirtyPerFlush: 256},
		Workers:               4,
		RateLimits:            RateLimits{SubscribePerSec: 20, SubscribeBurst: 5},
	}
}

// Load reads path on top of Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Normalize replaces zero or negative knobs with defaults.
func (t *Tuning) Normalize() {
	d := Defaults()
	if t.ViewDistance <= 0 {
		t.ViewDistance = d.ViewDistance
	}
	if t.BacklogSlack < 0 {
		t.BacklogSlack = d.BacklogSlack
	}
	if t.GraceDistance < 0 {
		t.GraceDistance = d.GraceDistance
	}
	if t.PriorityDistance <= 0 {
		t.PriorityDistance = d.PriorityDistance
	}
	fix := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	fix(&t.Ticks.CullMs, d.Ticks.CullMs)
	fix(&t.Ticks.RegenMs, d.Ticks.RegenMs)
	fix(&t.Ticks.LightMs, d.Ticks.LightMs)
	fix(&t.Ticks.FlushMs, d.Ticks.FlushMs)
	fix(&t.Budgets.RegenPerTick, d.Budgets.RegenPerTick)
	fix(&t.Budgets.LightTasksPerTick, d.Budgets.LightTasksPerTick)
	fix(&t.Budgets.DirtyPerFlush, d.Budgets.DirtyPerFlush)
	fix(&t.Workers, d.Workers)
	if t.RateLimits.SubscribePerSec <= 0 {
		t.RateLimits.SubscribePerSec = d.RateLimits.SubscribePerSec
	}
	fix(&t.RateLimits.SubscribeBurst, d.RateLimits.SubscribeBurst)
}

func (t Tuning) Validate() error {
	if t.MinChunkY > t.MaxChunkY {
		return fmt.Errorf("min_chunk_y %d above max_chunk_y %d", t.MinChunkY, t.MaxChunkY)
	}
	if t.MinChunkY < -2048 || t.MaxChunkY >= 2048 {
		return fmt.Errorf("vertical range [%d,%d] outside the lattice", t.MinChunkY, t.MaxChunkY)
	}
	if t.ViewDistance > 64 {
		return fmt.Errorf("view_distance %d too large", t.ViewDistance)
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (t Ticks) Cull() time.Duration  { return ms(t.CullMs) }
func (t Ticks) Regen() time.Duration { return ms(t.RegenMs) }
func (t Ticks) Light() time.Duration { return ms(t.LightMs) }
func (t Ticks) Flush() time.Duration { return ms(t.FlushMs) }

// PriorityDistSq is the squared block distance under which dirty marks are urgent.
func (t Tuning) PriorityDistSq() int { return t.PriorityDistance * t.PriorityDistance }
