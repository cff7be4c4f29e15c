package traverse

import (
	"log"
	"sync"

	"github.com/gammazero/deque"

	"voxelsight.ai/internal/sim/chunk"
	"voxelsight.ai/internal/sim/lattice"
)

// Queue is the regen backlog: a FIFO of stale chunk keys without duplicates.
type Queue struct {
	mu      sync.Mutex
	order   deque.Deque[lattice.Key]
	pending map[lattice.Key]struct{}
}

func NewQueue() *Queue {
	return &Queue{pending: map[lattice.Key]struct{}{}}
}

func (q *Queue) Push(k lattice.Key) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[k]; ok {
		return
	}
	q.pending[k] = struct{}{}
	q.order.PushBack(k)
}

func (q *Queue) Pop() (lattice.Key, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.order.Len() > 0 {
		k := q.order.PopFront()
		if _, ok := q.pending[k]; !ok {
			continue // removed
		}
		delete(q.pending, k)
		return k, true
	}
	return 0, false
}

func (q *Queue) Remove(k lattice.Key) {
	q.mu.Lock()
	delete(q.pending, k)
	q.mu.Unlock()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Worker drains the regen backlog a bounded number of chunks at a time.
type Worker struct {
	Store   *chunk.Store
	Queue   *Queue
	Builder *Builder
	Budget  int
	Logger  *log.Logger

	// OnBuilt is called after each completed build.
	OnBuilt func(k lattice.Key, r lattice.Relation)
}

// Tick rebuilds up to Budget chunks; each build runs to completion.
func (w *Worker) Tick() (built int) {
	budget := w.Budget
	if budget <= 0 {
		budget = 1
	}
	for built < budget {
		k, ok := w.Queue.Pop()
		if !ok {
			return built
		}
		ch := w.Store.Get(k)
		if ch == nil {
			continue
		}
		r, err := w.Builder.Build(ch)
		if err != nil {
			if w.Logger != nil {
				w.Logger.Printf("traverse: drop %s: %v", k, err)
			}
			continue
		}
		built++
		if ch.GraphStale() {
			w.Queue.Push(k)
		}
		if w.OnBuilt != nil {
			w.OnBuilt(k, r)
		}
	}
	return built
}
