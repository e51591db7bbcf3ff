package rewind

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/zoobzio/rewind"

// FailureSink receives transitions that were not committed.
type FailureSink func(ctx context.Context, err *TransitionError)

// Store is a single-writer container for one value.
//
// The value changes only through Handlers. Transitions are queued and
// applied by one worker goroutine in submission order, so no two handlers
// of the same store ever run concurrently or observe each other's
// intermediate results. Each committed value is published on the store's
// Stream.
type Store[T any] struct {
	name         string
	clock        clockz.Clock
	metrics      MetricsProvider
	onFailure    FailureSink
	tracer       trace.Tracer
	errorHistory *ring[error]

	current   atomic.Pointer[T]
	state     atomic.Int32
	lastError atomic.Pointer[error]

	stream *Stream[T]
	queue  *queue[*request[T]]
	update *Handler[T, T]

	startOnce sync.Once
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

// New creates a Store holding initial. The value is observable on the
// stream immediately. The worker starts with the first submission.
//
// Instance configuration uses chainable methods, which must be called
// before the first submission.
//
// Example:
//
//	doc := rewind.New("").Name("doc")
//	hist := rewind.NewHistory[string](50).Sync(doc)
//
//	doc.Update().Submit(ctx, "hello")
func New[T any](initial T) *Store[T] {
	s := &Store[T]{
		name:   "store",
		clock:  clockz.RealClock,
		tracer: otel.Tracer(tracerName),
		stream: NewStream(initial),
		queue:  newQueue[*request[T]](),
		done:   make(chan struct{}),
	}
	s.current.Store(&initial)
	s.state.Store(int32(StateHealthy))
	s.update = Handle(s, "update", func(_ context.Context, _ T, next T) (T, error) {
		return next, nil
	})
	return s
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Name sets the name used in signals, spans and errors. Default: "store".
func (s *Store[T]) Name(name string) *Store[T] {
	s.name = name
	return s
}

// Clock sets the clock used to time transitions.
// Use this with clockz.FakeClock for deterministic tests.
func (s *Store[T]) Clock(clock clockz.Clock) *Store[T] {
	s.clock = clock
	return s
}

// Metrics sets a metrics provider for observability integration.
func (s *Store[T]) Metrics(provider MetricsProvider) *Store[T] {
	s.metrics = provider
	return s
}

// ErrorHistorySize sets the number of recent transition failures to retain.
// Use 0 (default) to only retain the most recent failure via LastError().
func (s *Store[T]) ErrorHistorySize(n int) *Store[T] {
	s.errorHistory = newErrorRing(n)
	return s
}

// OnFailure sets a sink that receives every failed transition. The sink
// runs on the store worker; it must not wait for transitions of this store.
func (s *Store[T]) OnFailure(fn FailureSink) *Store[T] {
	s.onFailure = fn
	return s
}

// Tracer sets the tracer used for transition spans.
// Default: the global otel tracer provider.
func (s *Store[T]) Tracer(tracer trace.Tracer) *Store[T] {
	s.tracer = tracer
	return s
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// Current returns the committed value.
func (s *Store[T]) Current() T {
	return *s.current.Load()
}

// State returns the current state of the Store.
func (s *Store[T]) State() State {
	return State(s.state.Load())
}

// Stream returns the stream of committed values.
func (s *Store[T]) Stream() *Stream[T] {
	return s.stream
}

// Subscribe attaches fn to the store's stream. See Stream.Subscribe.
func (s *Store[T]) Subscribe(fn func(T)) *Subscription {
	return s.stream.Subscribe(fn)
}

// Watch returns a channel of committed values. See Stream.Watch.
func (s *Store[T]) Watch(ctx context.Context) <-chan T {
	return s.stream.Watch(ctx)
}

// Update returns the built-in handler that replaces the value with the
// payload unconditionally. It is also how a value returned by
// History.Back is restored.
func (s *Store[T]) Update() *Handler[T, T] {
	return s.update
}

// QueueDepth returns the number of transitions waiting to be applied.
func (s *Store[T]) QueueDepth() int {
	return s.queue.Len()
}

// LastError returns the last transition failure, or nil if the last
// transition committed.
func (s *Store[T]) LastError() error {
	ptr := s.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns recent transition failures, oldest first.
// Returns nil if error history is not enabled (see ErrorHistorySize).
func (s *Store[T]) ErrorHistory() []error {
	return s.errorHistory.oldestFirst()
}

// Close stops accepting transitions, waits for queued ones to be applied
// and stops the worker. Close must not be called from an observer or
// handler of the same store.
func (s *Store[T]) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.startOnce.Do(s.start)
		s.queue.Close()
	})

	select {
	case <-s.done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for store to drain: %w", ctx.Err())
	}

	if s.closed.CompareAndSwap(false, true) {
		s.transitionState(ctx, StateClosed)
		capitan.Emit(ctx, StoreClosed,
			KeyStore.Field(s.name),
		)
	}
	return nil
}

// transitionState updates the state and emits a state change event if changed.
func (s *Store[T]) transitionState(ctx context.Context, newState State) {
	oldState := State(s.state.Swap(int32(newState)))
	if oldState == newState {
		return
	}
	capitan.Emit(ctx, StoreStateChanged,
		KeyStore.Field(s.name),
		KeyOldState.Field(oldState.String()),
		KeyNewState.Field(newState.String()),
	)
	if s.metrics != nil {
		s.metrics.OnStateChange(oldState, newState)
	}
}

// setError stores an error atomically and adds it to the error history.
func (s *Store[T]) setError(err error) {
	e := err
	s.lastError.Store(&e)
	s.errorHistory.push(err)
}
