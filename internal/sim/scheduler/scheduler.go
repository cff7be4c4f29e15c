package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
)

type component struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)

	running atomic.Bool
	runs    atomic.Uint64
	skips   atomic.Uint64
	lastNs  atomic.Int64
}

// Stat is a per-component counter snapshot.
type Stat struct {
	Name     string
	Interval time.Duration
	Runs     uint64
	Skips    uint64
	Last     time.Duration
}

// Scheduler fires registered components at fixed intervals on a bounded
// worker pool. A component never overlaps itself: a tick that arrives while
// the previous run is still going is skipped.
type Scheduler struct {
	workers int

	mu    sync.Mutex
	comps []*component
	start bool
}

func New(workers int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{workers: workers}
}

func (s *Scheduler) Register(name string, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: %s: interval must be positive", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.start {
		return fmt.Errorf("scheduler: %s: register after Run", name)
	}
	for _, c := range s.comps {
		if c.name == name {
			return fmt.Errorf("scheduler: duplicate component %s", name)
		}
	}
	s.comps = append(s.comps, &component{name: name, interval: interval, fn: fn})
	return nil
}

// Run blocks until ctx is done, then waits for in-flight runs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.start {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: already running")
	}
	s.start = true
	comps := append([]*component(nil), s.comps...)
	s.mu.Unlock()

	pool := pond.NewPool(s.workers)
	defer pool.StopAndWait()

	var wg sync.WaitGroup
	for _, c := range comps {
		wg.Add(1)
		go func(c *component) {
			defer wg.Done()
			ticker := time.NewTicker(c.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.fire(ctx, pool, c)
				}
			}
		}(c)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) fire(ctx context.Context, pool pond.Pool, c *component) {
	if !c.running.CompareAndSwap(false, true) {
		c.skips.Add(1)
		return
	}
	pool.Submit(func() {
		defer c.running.Store(false)
		t0 := time.Now()
		c.fn(ctx)
		c.lastNs.Store(int64(time.Since(t0)))
		c.runs.Add(1)
	})
}

// Stats returns per-component counters sorted by name.
func (s *Scheduler) Stats() []Stat {
	s.mu.Lock()
	comps := append([]*component(nil), s.comps...)
	s.mu.Unlock()
	out := make([]Stat, 0, len(comps))
	for _, c := range comps {
		out = append(out, Stat{
			Name:     c.name,
			Interval: c.interval,
			Runs:     c.runs.Load(),
			Skips:    c.skips.Load(),
			Last:     time.Duration(c.lastNs.Load()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
