package world

// CullPassEntry is one non-skipped cull pass.
type CullPassEntry struct {
	Time         string `json:"time"`
	World        string `json:"world"`
	Pass         uint64 `json:"pass"`
	Center       [4]int `json:"center"` // x, y, z, dim
	OcclusionOff bool   `json:"occlusion_off,omitempty"`
	Rays         int    `json:"rays"`
	Aborted      int    `json:"aborted"`
	Visible      int    `json:"visible"`
	Loaded       int    `json:"loaded"`
	Backlog      int    `json:"backlog"`
	DurationUS   int64  `json:"duration_us"`
}

// LightBatchEntry is one light tick that processed at least one task.
type LightBatchEntry struct {
	Time    string `json:"time"`
	World   string `json:"world"`
	Tasks   int    `json:"tasks"`
	Touched int    `json:"touched_chunks"`
	Pending int    `json:"pending"`
}

type PassLogger interface {
	WriteCullPass(e CullPassEntry) error
	WriteLightBatch(e LightBatchEntry) error
}

// PassLoggers fans entries out to several loggers and returns the first error.
type PassLoggers []PassLogger

func (ls PassLoggers) WriteCullPass(e CullPassEntry) error {
	var first error
	for _, l := range ls {
		if err := l.WriteCullPass(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (ls PassLoggers) WriteLightBatch(e LightBatchEntry) error {
	var first error
	for _, l := range ls {
		if err := l.WriteLightBatch(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
