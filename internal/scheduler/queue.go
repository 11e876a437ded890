package scheduler

import (
	"time"

	"github.com/hamed0406/reachmon/internal/domain"
)

type item struct {
	target domain.Target
	gen    uint64
	due    time.Time
	index  int
}

// dueQueue is a min-heap of items ordered by due time. It implements
// heap.Interface and is only touched by the scheduler loop.
type dueQueue []*item

func (q dueQueue) Len() int { return len(q) }

func (q dueQueue) Less(i, j int) bool { return q[i].due.Before(q[j].due) }

func (q dueQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *dueQueue) Push(x any) {
	it := x.(*item)
	it.index = len(*q)
	*q = append(*q, it)
}

func (q *dueQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*q = old[:n-1]
	return it
}
