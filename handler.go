package rewind

import (
	"context"
	"fmt"

	"github.com/zoobzio/pipz"
)

// HandlerFunc computes the next store value from the current one and a
// payload. It may block, for example while waiting on external input; the
// store applies nothing else until it returns. A handler must not mutate
// shared state itself, only return the next value.
type HandlerFunc[T, P any] func(ctx context.Context, current T, payload P) (T, error)

// Handler is a named transition bound to one Store. Handlers are the only
// way to change a store's value and may be used from any goroutine.
type Handler[T, P any] struct {
	store    *Store[T]
	name     string
	pipeline pipz.Chainable[*Transition[T]]
}

// Handle binds fn to store under name.
//
// Pipeline options (With*) wrap fn with retries, timeouts, circuit breaking
// and middleware. The pipeline is built once, so stateful options such as
// the circuit breaker are shared by every submission through this handler.
//
// Example:
//
//	addItem := rewind.Handle(list, "add-item",
//	    func(_ context.Context, items []string, item string) ([]string, error) {
//	        return append(slices.Clone(items), item), nil
//	    },
//	)
//	addItem.Submit(ctx, "milk")
func Handle[T, P any](store *Store[T], name string, fn HandlerFunc[T, P], opts ...Option[T]) *Handler[T, P] {
	id := pipz.NewIdentity(name, "Transition handler")
	terminal := pipz.Apply(id, func(ctx context.Context, tr *Transition[T]) (*Transition[T], error) {
		var payload P
		if tr.Payload != nil {
			p, ok := tr.Payload.(P)
			if !ok {
				return tr, fmt.Errorf("unexpected payload type %T", tr.Payload)
			}
			payload = p
		}

		next, err := fn(ctx, tr.Previous, payload)
		if err != nil {
			return tr, err
		}
		tr.Next = next
		return tr, nil
	})

	return &Handler[T, P]{
		store:    store,
		name:     name,
		pipeline: buildPipeline(terminal, opts),
	}
}

// Name returns the handler name.
func (h *Handler[T, P]) Name() string {
	return h.name
}

// Submit queues a transition and returns immediately. Transitions submitted
// to the same store are applied one at a time in submission order.
// ctx is passed to the handler; if it is done by the time the transition is
// dequeued, the transition fails without running.
func (h *Handler[T, P]) Submit(ctx context.Context, payload P) *Pending[T] {
	return h.store.submit(ctx, h.name, h.pipeline, payload)
}

// Apply submits a transition and waits for its outcome. Observers that
// were attached before the transition was applied, including synced
// histories, have seen the committed value by the time Apply returns.
// The exception is an observer whose replayed first value is still being
// delivered on another goroutine, such as a Sync that has not returned:
// the committed value is queued behind it and delivered by that goroutine.
func (h *Handler[T, P]) Apply(ctx context.Context, payload P) (T, error) {
	return h.Submit(ctx, payload).Wait(ctx)
}
