// Package poller hosts the polling pipeline: per-target poll loops feeding
// a timestamp-ordered queue, the dispatch loop that enriches and fans events
// out, and the supervisor that runs pollers as a group.
package poller

import (
	"container/heap"
	"sync"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
)

// Queue is a timestamp-ordered event queue: earliest event out first, FIFO
// among equal timestamps. One producer per target, one consumer.
type Queue struct {
	mu    sync.Mutex
	items eventHeap
	seq   uint64
}

func NewQueue() *Queue {
	return &Queue{}
}

// Push enqueues an event.
func (q *Queue) Push(event *activity.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.items, queued{event: event, priority: event.Priority(), seq: q.seq})
}

// Pop removes the earliest event without blocking.
func (q *Queue) Pop() (*activity.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	item := heap.Pop(&q.items).(queued)

	return item.event, true
}

// Len reports the queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

type queued struct {
	event    *activity.Event
	priority int64
	seq      uint64
}

type eventHeap []queued

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}

	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(queued))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]

	return item
}
