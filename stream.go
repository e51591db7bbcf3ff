package rewind

import (
	"context"
	"sync"
	"sync/atomic"
)

// Source is anything a History can be synced to.
type Source[T any] interface {
	// Subscribe registers fn to receive the latest value immediately and
	// every later value in order.
	Subscribe(fn func(T)) *Subscription
}

// Stream is a multicast, replay-latest sequence of values.
//
// Every observer receives the latest value as soon as it subscribes and
// then each later value in publication order. Each emission carries a
// sequence number and an observer never sees a lower sequence after a
// higher one; an observer that attaches while a value is in flight may
// therefore start from that newer value instead of the one it read on
// attachment.
//
// Callbacks run on the publishing goroutine, outside the stream lock.
// Delivery to one observer is serialized: if a callback causes another
// emission on the same stream, that emission is queued and delivered after
// the callback returns, so callbacks may freely call back into stores and
// histories.
type Stream[T any] struct {
	mu     sync.Mutex
	latest T
	seq    uint64
	nextID uint64
	subs   map[uint64]*subscriber[T]
}

// emission is a sequenced value staged for delivery.
type emission[T any] struct {
	seq   uint64
	value T
	subs  []*subscriber[T]
}

type delivery[T any] struct {
	seq   uint64
	value T
}

type subscriber[T any] struct {
	fn        func(T)
	cancelled atomic.Bool

	mu       sync.Mutex
	pending  []delivery[T]
	last     uint64
	draining bool
}

// Subscription is a handle to a registered observer.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel stops further deliveries. It is safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// NewStream creates a stream whose latest value is initial.
func NewStream[T any](initial T) *Stream[T] {
	return &Stream[T]{
		latest: initial,
		seq:    1,
		subs:   make(map[uint64]*subscriber[T]),
	}
}

// Latest returns the most recently published value.
func (s *Stream[T]) Latest() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Subscribers returns the number of attached observers.
func (s *Stream[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Subscribe attaches fn. The latest value is delivered before Subscribe
// returns unless a newer emission reaches fn first.
func (s *Stream[T]) Subscribe(fn func(T)) *Subscription {
	sub := &subscriber[T]{fn: fn}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	seq, v := s.seq, s.latest
	s.mu.Unlock()

	sub.offer(seq, v)

	return &Subscription{cancel: func() {
		sub.cancelled.Store(true)
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}}
}

// Watch returns a channel receiving the latest value and every later one.
// The channel is closed when ctx is done. Slow receivers never block the
// publisher; values are buffered until received.
func (s *Stream[T]) Watch(ctx context.Context) <-chan T {
	buf := newQueue[T]()
	sub := s.Subscribe(func(v T) { buf.Enqueue(v) })

	out := make(chan T)
	go func() {
		defer close(out)
		defer sub.Cancel()
		for {
			v, ok := buf.Dequeue(ctx)
			if !ok {
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// publish sets v as the latest value and delivers it.
func (s *Stream[T]) publish(v T) {
	s.stage(v).deliver()
}

// stage sequences v without delivering it. Callers that must order
// emissions with their own state stage under their lock and deliver after
// releasing it.
func (s *Stream[T]) stage(v T) emission[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.latest = v
	subs := make([]*subscriber[T], 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	return emission[T]{seq: s.seq, value: v, subs: subs}
}

// deliver hands the emission to every observer captured when it was staged.
// The zero emission delivers nothing.
func (e emission[T]) deliver() {
	for _, sub := range e.subs {
		sub.offer(e.seq, e.value)
	}
}

// offer queues a delivery and drains the queue unless another frame on the
// call stack, or another goroutine, is already draining it.
func (sub *subscriber[T]) offer(seq uint64, v T) {
	if sub.cancelled.Load() {
		return
	}

	sub.mu.Lock()
	sub.pending = append(sub.pending, delivery[T]{seq: seq, value: v})
	if sub.draining {
		sub.mu.Unlock()
		return
	}
	sub.draining = true

	for len(sub.pending) > 0 {
		d := sub.pending[0]
		sub.pending[0] = delivery[T]{}
		sub.pending = sub.pending[1:]

		if d.seq <= sub.last || sub.cancelled.Load() {
			continue
		}
		sub.last = d.seq

		sub.mu.Unlock()
		sub.fn(d.value)
		sub.mu.Lock()
	}

	sub.pending = nil
	sub.draining = false
	sub.mu.Unlock()
}
