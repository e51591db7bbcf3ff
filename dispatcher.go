package rewind

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// request is one queued transition.
type request[T any] struct {
	ctx      context.Context
	handler  string
	pipeline pipz.Chainable[*Transition[T]]
	payload  any
	pending  *Pending[T]
}

// Pending is a handle to a submitted transition.
type Pending[T any] struct {
	id    uuid.UUID
	done  chan struct{}
	value T
	err   error
}

func newPending[T any]() *Pending[T] {
	return &Pending[T]{id: uuid.New(), done: make(chan struct{})}
}

// ID identifies the transition. It appears in signals, spans and errors.
func (p *Pending[T]) ID() uuid.UUID {
	return p.id
}

// Done is closed once the transition has been committed or has failed.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the transition completes or ctx is done. It returns the
// committed value, or a *TransitionError if nothing was committed.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (p *Pending[T]) resolve(v T, err error) {
	p.value = v
	p.err = err
	close(p.done)
}

// submit queues a transition on the store worker.
func (s *Store[T]) submit(ctx context.Context, handler string, pipeline pipz.Chainable[*Transition[T]], payload any) *Pending[T] {
	if ctx == nil {
		ctx = context.Background()
	}

	p := newPending[T]()
	req := &request[T]{
		ctx:      ctx,
		handler:  handler,
		pipeline: pipeline,
		payload:  payload,
		pending:  p,
	}

	s.startOnce.Do(s.start)
	if !s.queue.Enqueue(req) {
		var zero T
		p.resolve(zero, &TransitionError{Store: s.name, Handler: handler, ID: p.id, Err: ErrClosed})
		return p
	}

	depth := s.queue.Len()
	capitan.Emit(ctx, TransitionQueued,
		KeyStore.Field(s.name),
		KeyHandler.Field(handler),
		KeyTransition.Field(p.id.String()),
		KeyQueueDepth.Field(depth),
	)
	if s.metrics != nil {
		s.metrics.OnQueueDepth(depth)
	}
	return p
}

// start launches the worker goroutine.
func (s *Store[T]) start() {
	capitan.Emit(context.Background(), StoreStarted,
		KeyStore.Field(s.name),
	)
	go s.run()
}

// run drains the queue one transition at a time until the queue is closed
// and empty.
func (s *Store[T]) run() {
	defer close(s.done)

	ctx := context.Background()
	for {
		req, ok := s.queue.Dequeue(ctx)
		if !ok {
			return
		}
		if s.metrics != nil {
			s.metrics.OnQueueDepth(s.queue.Len())
		}
		s.apply(req)
	}
}

// apply computes and commits a single transition.
func (s *Store[T]) apply(req *request[T]) {
	start := s.clock.Now()
	tr := &Transition[T]{
		ID:       req.pending.id,
		Handler:  req.handler,
		Previous: s.Current(),
		Payload:  req.payload,
	}

	ctx, span := s.tracer.Start(req.ctx, "rewind.transition", trace.WithAttributes(
		attribute.String("rewind.store", s.name),
		attribute.String("rewind.handler", tr.Handler),
		attribute.String("rewind.transition", tr.ID.String()),
	))
	defer span.End()

	next, err := compute(ctx, req.pipeline, tr)
	duration := s.clock.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var zero T
		req.pending.resolve(zero, s.fail(ctx, tr, err, duration))
		return
	}

	s.commit(ctx, tr, next, duration)
	req.pending.resolve(next, nil)
}

// compute runs the pipeline. A panicking handler is reported as a failure
// so the worker keeps serving the queue.
func compute[T any](ctx context.Context, pipeline pipz.Chainable[*Transition[T]], tr *Transition[T]) (next T, err error) {
	if err := ctx.Err(); err != nil {
		return next, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	out, err := pipeline.Process(ctx, tr)
	if err != nil {
		return next, err
	}
	if out == nil {
		return next, errors.New("pipeline returned no transition")
	}
	return out.Next, nil
}

// commit stores next, publishes it and reports success.
func (s *Store[T]) commit(ctx context.Context, tr *Transition[T], next T, duration time.Duration) {
	s.current.Store(&next)
	s.lastError.Store(nil)
	s.transitionState(ctx, StateHealthy)
	s.stream.publish(next)

	capitan.Emit(ctx, TransitionApplied,
		KeyStore.Field(s.name),
		KeyHandler.Field(tr.Handler),
		KeyTransition.Field(tr.ID.String()),
		KeyDuration.Field(duration),
	)
	if s.metrics != nil {
		s.metrics.OnTransitionApplied(tr.Handler, duration)
	}
}

// fail records a failed transition on every side channel and returns the
// error handed back to the submitter.
func (s *Store[T]) fail(ctx context.Context, tr *Transition[T], err error, duration time.Duration) *TransitionError {
	terr := &TransitionError{Store: s.name, Handler: tr.Handler, ID: tr.ID, Err: err}
	s.setError(terr)
	s.transitionState(ctx, StateDegraded)

	capitan.Emit(ctx, TransitionFailed,
		KeyStore.Field(s.name),
		KeyHandler.Field(tr.Handler),
		KeyTransition.Field(tr.ID.String()),
		KeyDuration.Field(duration),
		KeyError.Field(err.Error()),
	)
	if s.metrics != nil {
		s.metrics.OnTransitionFailed(tr.Handler, duration)
	}
	if s.onFailure != nil {
		s.onFailure(ctx, terr)
	}
	return terr
}
