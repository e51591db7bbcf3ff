package rewind

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on store and history events.
// See pkg/prom for a Prometheus implementation.
type MetricsProvider interface {
	// OnStateChange is called when a store transitions between states.
	OnStateChange(from, to State)

	// OnTransitionApplied is called when a handler result is committed.
	// Duration covers the handler pipeline only, not time spent queued.
	OnTransitionApplied(handler string, duration time.Duration)

	// OnTransitionFailed is called when a handler fails and nothing is committed.
	OnTransitionFailed(handler string, duration time.Duration)

	// OnQueueDepth is called with the number of waiting transitions each
	// time one is queued or taken off the queue.
	OnQueueDepth(depth int)

	// OnHistorySize is called with the log length after every history mutation.
	OnHistorySize(size int)

	// OnHistoryRewound is called each time Back pops a value.
	OnHistoryRewound()
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnStateChange(_, _ State)                      {}
func (NoOpMetricsProvider) OnTransitionApplied(_ string, _ time.Duration) {}
func (NoOpMetricsProvider) OnTransitionFailed(_ string, _ time.Duration)  {}
func (NoOpMetricsProvider) OnQueueDepth(_ int)                            {}
func (NoOpMetricsProvider) OnHistorySize(_ int)                           {}
func (NoOpMetricsProvider) OnHistoryRewound()                             {}
