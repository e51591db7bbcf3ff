package rewind

import "sync"

// ring is a thread-safe stack with an optional capacity. Pushing onto a
// full ring evicts the oldest entry. A size of 0 or less means unbounded.
//
// Entries are stored oldest first; the head of the stack is the last
// element.
type ring[T any] struct {
	mu    sync.RWMutex
	items []T
	size  int
}

// newRing creates a ring holding at most size entries.
func newRing[T any](size int) *ring[T] {
	if size < 0 {
		size = 0
	}
	return &ring[T]{size: size}
}

// newErrorRing creates a bounded ring for recent errors.
// If size is 0, the ring is disabled and nil is returned.
func newErrorRing(size int) *ring[error] {
	if size <= 0 {
		return nil
	}
	return newRing[error](size)
}

// push places v at the head and reports whether an entry was evicted to
// keep the ring within its capacity.
func (r *ring[T]) push(v T) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, v)
	if r.size == 0 || len(r.items) <= r.size {
		return false
	}

	var zero T
	copy(r.items, r.items[1:])
	r.items[len(r.items)-1] = zero
	r.items = r.items[:len(r.items)-1]
	return true
}

// pop removes and returns the head.
func (r *ring[T]) pop() (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.items)
	if n == 0 {
		return zero, false
	}
	v := r.items[n-1]
	r.items[n-1] = zero
	r.items = r.items[:n-1]
	return v, true
}

// peek returns the head without removing it.
func (r *ring[T]) peek() (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.items) == 0 {
		return zero, false
	}
	return r.items[len(r.items)-1], true
}

// clear removes all entries and reports whether any were removed.
func (r *ring[T]) clear() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.items) == 0 {
		return false
	}
	clear(r.items)
	r.items = r.items[:0]
	return true
}

// len returns the number of entries.
func (r *ring[T]) len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// newestFirst returns a copy of the entries, head first.
func (r *ring[T]) newestFirst() []T {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]T, len(r.items))
	for i, v := range r.items {
		result[len(r.items)-1-i] = v
	}
	return result
}

// oldestFirst returns a copy of the entries, oldest first.
// Returns nil when the ring is empty.
func (r *ring[T]) oldestFirst() []T {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.items) == 0 {
		return nil
	}
	result := make([]T, len(r.items))
	copy(result, r.items)
	return result
}
