package rewind

import (
	"context"
	"sync"
)

// queue is an unbounded FIFO safe for concurrent producers and a single
// consumer. Producers never block, so observers running on a store worker
// may submit further work without deadlocking it.
//
// Availability is signalled through a size-1 channel so consumers can wait
// on it alongside a context.
type queue[E any] struct {
	mu     sync.Mutex
	items  []E
	closed bool
	signal chan struct{}
}

func newQueue[E any]() *queue[E] {
	return &queue[E]{
		items:  make([]E, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends e. Returns false if the queue is closed.
func (q *queue[E]) Enqueue(e E) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, e)

	// Coalesce signals; one pending wake-up is enough.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front element without blocking.
func (q *queue[E]) TryDequeue() (E, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero E
	if len(q.items) == 0 {
		return zero, false
	}

	e := q.items[0]
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return e, true
}

// Dequeue blocks until an element is available, the queue is closed and
// drained, or ctx is done. The boolean is false in the latter two cases.
func (q *queue[E]) Dequeue(ctx context.Context) (E, bool) {
	for {
		if e, ok := q.TryDequeue(); ok {
			return e, true
		}

		q.mu.Lock()
		drained := q.closed && len(q.items) == 0
		q.mu.Unlock()
		if drained {
			var zero E
			return zero, false
		}

		select {
		case <-ctx.Done():
			var zero E
			return zero, false
		case <-q.signal:
		}
	}
}

// Len returns the number of queued elements.
func (q *queue[E]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting elements and wakes any waiting consumer.
// Elements already queued remain available to Dequeue.
func (q *queue[E]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
