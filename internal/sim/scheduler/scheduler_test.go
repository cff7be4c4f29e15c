package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsComponents(t *testing.T) {
	s := New(2)
	var a, b atomic.Int64
	if err := s.Register("a", 2*time.Millisecond, func(context.Context) { a.Add(1) }); err != nil {
		t.Fatal(err)
	}
	if err := s.Register("b", 5*time.Millisecond, func(context.Context) { b.Add(1) }); err != nil {
		t.Fatal(err)
	}
	if err := s.Register("a", time.Millisecond, func(context.Context) {}); err == nil {
		t.Fatalf("duplicate name should be rejected")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run = %v", err)
	}
	if a.Load() == 0 || b.Load() == 0 {
		t.Fatalf("components did not run: a=%d b=%d", a.Load(), b.Load())
	}
	if a.Load() <= b.Load() {
		t.Fatalf("faster component should run more often: a=%d b=%d", a.Load(), b.Load())
	}
	if err := s.Register("late", time.Millisecond, func(context.Context) {}); err == nil {
		t.Fatalf("register after Run should fail")
	}
}

func TestSchedulerNeverOverlapsAComponent(t *testing.T) {
	s := New(4)
	var inFlight, maxInFlight atomic.Int64
	s.Register("slow", time.Millisecond, func(context.Context) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if maxInFlight.Load() != 1 {
		t.Fatalf("component overlapped itself: %d", maxInFlight.Load())
	}
	st := s.Stats()
	if len(st) != 1 || st[0].Runs == 0 || st[0].Skips == 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRegisterRejectsBadInterval(t *testing.T) {
	if err := New(1).Register("x", 0, func(context.Context) {}); err == nil {
		t.Fatalf("expected error")
	}
}
