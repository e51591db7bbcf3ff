package rewind

import (
	"context"
	"time"

	"github.com/zoobzio/pipz"
)

// Pipeline identities.
var (
	retryID          = pipz.NewIdentity("rewind:retry", "Retries a failed transition")
	backoffID        = pipz.NewIdentity("rewind:backoff", "Retries a failed transition with exponential backoff")
	timeoutID        = pipz.NewIdentity("rewind:timeout", "Bounds the duration of a transition")
	fallbackID       = pipz.NewIdentity("rewind:fallback", "Tries alternative handlers in order")
	circuitBreakerID = pipz.NewIdentity("rewind:circuit-breaker", "Rejects transitions after repeated failures")
	errorHandlerID   = pipz.NewIdentity("rewind:error-handler", "Observes transition failures")
	middlewareID     = pipz.NewIdentity("rewind:middleware", "Runs processors ahead of the handler")
	rateLimiterID    = pipz.NewIdentity("rewind:rate-limiter", "Limits the transition rate")
)

// Option configures the processing pipeline of a Handler.
// Options wrap the handler with middleware for retry, timeout, circuit
// breaking, and other reliability patterns. They are applied in order, so
// the last option is the outermost wrapper.
type Option[T any] func(pipz.Chainable[*Transition[T]]) pipz.Chainable[*Transition[T]]

// buildPipeline wraps a terminal with pipeline options.
func buildPipeline[T any](terminal pipz.Chainable[*Transition[T]], opts []Option[T]) pipz.Chainable[*Transition[T]] {
	pipeline := terminal
	for _, opt := range opts {
		pipeline = opt(pipeline)
	}
	return pipeline
}

// -----------------------------------------------------------------------------
// Pipeline Options - Wrapping (With*)
// -----------------------------------------------------------------------------
// These options wrap the entire handler. The store worker is blocked for as
// long as the wrapped pipeline runs, so retries and backoff delay every
// transition queued behind this one.

// WithRetry wraps the handler with retry logic.
// Failed transitions are retried immediately up to maxAttempts times.
func WithRetry[T any](maxAttempts int) Option[T] {
	return func(p pipz.Chainable[*Transition[T]]) pipz.Chainable[*Transition[T]] {
		return pipz.NewRetry(retryID, p, maxAttempts)
	}
}

// WithBackoff wraps the handler with exponential backoff retry logic.
// Failed transitions are retried with delays of baseDelay, 2*baseDelay, 4*baseDelay, etc.
func WithBackoff[T any](maxAttempts int, baseDelay time.Duration) Option[T] {
	return func(p pipz.Chainable[*Transition[T]]) pipz.Chainable[*Transition[T]] {
		return pipz.NewBackoff(backoffID, p, maxAttempts, baseDelay)
	}
}

// WithTimeout bounds how long a handler may suspend. A handler that
// exceeds d fails and nothing is committed.
func WithTimeout[T any](d time.Duration) Option[T] {
	return func(p pipz.Chainable[*Transition[T]]) pipz.Chainable[*Transition[T]] {
		return pipz.NewTimeout(timeoutID, p, d)
	}
}

// WithFallback wraps the handler with fallback processors.
// If the handler fails, each fallback is tried in order until one succeeds.
// A fallback must set Next on the transition it returns.
func WithFallback[T any](fallbacks ...pipz.Chainable[*Transition[T]]) Option[T] {
	return func(p pipz.Chainable[*Transition[T]]) pipz.Chainable[*Transition[T]] {
		all := append([]pipz.Chainable[*Transition[T]]{p}, fallbacks...)
		return pipz.NewFallback(fallbackID, all...)
	}
}

// WithCircuitBreaker wraps the handler with circuit breaker protection.
// After 'failures' consecutive failures the circuit opens and transitions
// fail immediately until 'recovery' has passed.
func WithCircuitBreaker[T any](failures int, recovery time.Duration) Option[T] {
	return func(p pipz.Chainable[*Transition[T]]) pipz.Chainable[*Transition[T]] {
		return pipz.NewCircuitBreaker(circuitBreakerID, p, failures, recovery)
	}
}

// WithErrorHandler adds error observation to the pipeline.
// Errors are passed to the handler for logging, metrics, or alerting,
// but the transition still fails. For store-wide failure handling see
// Store.OnFailure.
func WithErrorHandler[T any](handler pipz.Chainable[*pipz.Error[*Transition[T]]]) Option[T] {
	return func(p pipz.Chainable[*Transition[T]]) pipz.Chainable[*Transition[T]] {
		return pipz.NewHandle(errorHandlerID, p, handler)
	}
}

// WithMiddleware runs processors in order before the handler.
//
// Example:
//
//	rename := rewind.Handle(store, "rename", renameFn,
//	    rewind.WithMiddleware(
//	        rewind.UseRateLimit(10, 5, rewind.UseEffect[Doc](auditID, auditFn)),
//	    ),
//	)
func WithMiddleware[T any](processors ...pipz.Chainable[*Transition[T]]) Option[T] {
	return func(p pipz.Chainable[*Transition[T]]) pipz.Chainable[*Transition[T]] {
		all := make([]pipz.Chainable[*Transition[T]], 0, len(processors)+1)
		all = append(all, processors...)
		all = append(all, p)
		return pipz.NewSequence(middlewareID, all...)
	}
}

// -----------------------------------------------------------------------------
// Middleware Processors (Use*)
// -----------------------------------------------------------------------------

// UseTransform creates a processor that rewrites the transition and cannot fail.
func UseTransform[T any](id pipz.Identity, fn func(context.Context, *Transition[T]) *Transition[T]) pipz.Chainable[*Transition[T]] {
	return pipz.Transform(id, fn)
}

// UseApply creates a processor that may rewrite the transition or reject it.
func UseApply[T any](id pipz.Identity, fn func(context.Context, *Transition[T]) (*Transition[T], error)) pipz.Chainable[*Transition[T]] {
	return pipz.Apply(id, fn)
}

// UseEffect creates a processor that performs a side effect.
// The transition passes through unchanged; a returned error rejects it.
func UseEffect[T any](id pipz.Identity, fn func(context.Context, *Transition[T]) error) pipz.Chainable[*Transition[T]] {
	return pipz.Effect(id, fn)
}

// UseEnrich creates a processor whose failure is ignored.
func UseEnrich[T any](id pipz.Identity, fn func(context.Context, *Transition[T]) (*Transition[T], error)) pipz.Chainable[*Transition[T]] {
	return pipz.Enrich(id, fn)
}

// UseRetry wraps a processor with immediate retries.
func UseRetry[T any](maxAttempts int, processor pipz.Chainable[*Transition[T]]) pipz.Chainable[*Transition[T]] {
	return pipz.NewRetry(retryID, processor, maxAttempts)
}

// UseTimeout wraps a processor with a deadline.
func UseTimeout[T any](d time.Duration, processor pipz.Chainable[*Transition[T]]) pipz.Chainable[*Transition[T]] {
	return pipz.NewTimeout(timeoutID, processor, d)
}

// UseFilter runs processor only when condition holds; otherwise the
// transition passes through unchanged.
func UseFilter[T any](id pipz.Identity, condition func(context.Context, *Transition[T]) bool, processor pipz.Chainable[*Transition[T]]) pipz.Chainable[*Transition[T]] {
	return pipz.NewFilter(id, condition, processor)
}

// UseRateLimit wraps a processor with a token bucket rate limiter. When
// tokens are exhausted the worker waits, delaying every queued transition.
func UseRateLimit[T any](rate float64, burst int, processor pipz.Chainable[*Transition[T]]) pipz.Chainable[*Transition[T]] {
	return pipz.NewRateLimiter(rateLimiterID, rate, burst, processor)
}
