package lighting

import (
	"fmt"
	"sync"

	"github.com/gammazero/deque"

	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/light"
)

type Kind uint8

const (
	// Replace is a block replacement at Pos from Old to New.
	Replace Kind = iota
	// Absorption recomputes the sun column through Pos.
	Absorption
	// RemoveColor removes the contribution of a light of Color at Pos.
	RemoveColor
)

func (k Kind) String() string {
	switch k {
	case Replace:
		return "replace"
	case Absorption:
		return "absorption"
	case RemoveColor:
		return "remove_color"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

type Task struct {
	Kind  Kind
	Pos   lattice.BlockPos
	Dim   lattice.Dimension
	Old   uint16
	New   uint16
	Color light.HSV
}

// Queue is the FIFO of pending light tasks.
type Queue struct {
	mu    sync.Mutex
	tasks deque.Deque[Task]
	total uint64
}

func NewQueue() *Queue { return &Queue{} }

func (q *Queue) Enqueue(t Task) {
	q.mu.Lock()
	q.tasks.PushBack(t)
	q.total++
	q.mu.Unlock()
}

func (q *Queue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.tasks.Len() == 0 {
		return Task{}, false
	}
	return q.tasks.PopFront(), true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Len()
}

// Total counts every task ever enqueued.
func (q *Queue) Total() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total
}
