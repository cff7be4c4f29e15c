package dirty

import (
	"sync"

	"github.com/gammazero/deque"

	"voxelsight.ai/internal/sim/lattice"
)

// Mark says how much of a chunk's mesh must be rebuilt.
type Mark struct {
	Priority bool
	Relight  bool
	EdgeOnly bool
}

func (m Mark) merge(o Mark) Mark {
	return Mark{
		Priority: m.Priority || o.Priority,
		Relight:  m.Relight || o.Relight,
		EdgeOnly: m.EdgeOnly && o.EdgeOnly,
	}
}

type Entry struct {
	Key lattice.Key
	Mark
}

// Sink receives drained marks; it stands for the mesh tesselation pipeline.
type Sink interface {
	ChunksDirty(entries []Entry)
}

type SinkFunc func(entries []Entry)

func (f SinkFunc) ChunksDirty(entries []Entry) { f(entries) }

// Tracker accumulates dirty marks between flushes.
type Tracker struct {
	mu       sync.Mutex
	marks    map[lattice.Key]Mark
	order    deque.Deque[lattice.Key]
	priority deque.Deque[lattice.Key]
	total    uint64
}

func NewTracker() *Tracker {
	return &Tracker{marks: map[lattice.Key]Mark{}}
}

func (t *Tracker) MarkChunkDirty(k lattice.Key, priority, relight, edgeOnly bool) {
	m := Mark{Priority: priority, Relight: relight, EdgeOnly: edgeOnly}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total++
	prev, ok := t.marks[k]
	if !ok {
		t.marks[k] = m
		if priority {
			t.priority.PushBack(k)
		} else {
			t.order.PushBack(k)
		}
		return
	}
	t.marks[k] = prev.merge(m)
	if priority && !prev.Priority {
		// Promoted; the stale FIFO slot is skipped on drain.
		t.priority.PushBack(k)
	}
}

// Drain removes up to limit entries (all when limit <= 0), priority marks first.
func (t *Tracker) Drain(limit int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if limit <= 0 || limit > len(t.marks) {
		limit = len(t.marks)
	}
	out := make([]Entry, 0, limit)
	take := func(q *deque.Deque[lattice.Key], wantPriority bool) {
		for len(out) < limit && q.Len() > 0 {
			k := q.PopFront()
			m, ok := t.marks[k]
			if !ok || m.Priority != wantPriority {
				continue
			}
			delete(t.marks, k)
			out = append(out, Entry{Key: k, Mark: m})
		}
	}
	take(&t.priority, true)
	take(&t.order, false)
	return out
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.marks)
}

func (t *Tracker) Get(k lattice.Key) (Mark, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.marks[k]
	return m, ok
}

// Forget drops the mark of an unloaded chunk.
func (t *Tracker) Forget(k lattice.Key) {
	t.mu.Lock()
	delete(t.marks, k)
	t.mu.Unlock()
}

// Total counts every MarkChunkDirty call.
func (t *Tracker) Total() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}
