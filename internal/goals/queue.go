package goals

import (
	"container/heap"
	"time"
)

// queueItem is one scheduling entry. Ordering keys are copied from the goal
// so the heap stays consistent until the store explicitly fixes an entry.
type queueItem struct {
	id        string
	priority  int
	createdAt time.Time
	sequence  int64
	index     int
}

// goalQueue is a binary heap ordered by (-priority, createdAt, sequence).
type goalQueue []*queueItem

func (q goalQueue) Len() int { return len(q) }

func (q goalQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	if !q[i].createdAt.Equal(q[j].createdAt) {
		return q[i].createdAt.Before(q[j].createdAt)
	}
	return q[i].sequence < q[j].sequence
}

func (q goalQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *goalQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *goalQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

var _ heap.Interface = (*goalQueue)(nil)
