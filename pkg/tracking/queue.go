package tracking

import (
	"sync"

	"github.com/opensky-to/agent-sub001/pkg/sim"
)

// pairQueue is a concurrency-safe FIFO of snapshot pairs. The processing
// loops poll it rather than blocking on it, so enqueueing never wakes a
// consumer directly.
type pairQueue[T any] struct {
	mu    sync.Mutex
	items []sim.Pair[T]
}

func newPairQueue[T any]() *pairQueue[T] {
	return &pairQueue[T]{}
}

// Enqueue appends a pair to the tail.
func (q *pairQueue[T]) Enqueue(p sim.Pair[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, p)
}

// TryDequeue pops the head, if any.
func (q *pairQueue[T]) TryDequeue() (sim.Pair[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero sim.Pair[T]
		return zero, false
	}
	p := q.items[0]
	q.items = q.items[1:]
	return p, true
}

// Len returns the number of queued pairs.
func (q *pairQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
