// Package prom provides a Prometheus implementation of rewind.MetricsProvider.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zoobzio/rewind"
)

// Provider records rewind store and history metrics in Prometheus.
//
// One Provider serves one store and its histories; give each a distinct
// namespace or registry when running several.
type Provider struct {
	stateChanges   *prometheus.CounterVec
	state          prometheus.Gauge
	transitions    *prometheus.CounterVec
	durations      *prometheus.HistogramVec
	queueDepth     prometheus.Gauge
	historySize    prometheus.Gauge
	historyRewinds prometheus.Counter
}

// New registers the rewind metrics under namespace on reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func New(reg prometheus.Registerer, namespace string) *Provider {
	factory := promauto.With(reg)

	return &Provider{
		stateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_state_changes_total",
			Help:      "Store state transitions by target state.",
		}, []string{"to"}),
		state: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_state",
			Help:      "Current store state (0 healthy, 1 degraded, 2 closed).",
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Transitions processed by handler and outcome.",
		}, []string{"handler", "outcome"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transition_duration_seconds",
			Help:      "Time spent in handler pipelines.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Transitions waiting to be applied.",
		}),
		historySize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_size",
			Help:      "Entries in the history log.",
		}),
		historyRewinds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_rewinds_total",
			Help:      "Values popped from history with Back.",
		}),
	}
}

var _ rewind.MetricsProvider = (*Provider)(nil)

func (p *Provider) OnStateChange(_, to rewind.State) {
	p.stateChanges.WithLabelValues(to.String()).Inc()
	p.state.Set(float64(to))
}

func (p *Provider) OnTransitionApplied(handler string, d time.Duration) {
	p.transitions.WithLabelValues(handler, "applied").Inc()
	p.durations.WithLabelValues(handler).Observe(d.Seconds())
}

func (p *Provider) OnTransitionFailed(handler string, d time.Duration) {
	p.transitions.WithLabelValues(handler, "failed").Inc()
	p.durations.WithLabelValues(handler).Observe(d.Seconds())
}

func (p *Provider) OnQueueDepth(depth int) {
	p.queueDepth.Set(float64(depth))
}

func (p *Provider) OnHistorySize(size int) {
	p.historySize.Set(float64(size))
}

func (p *Provider) OnHistoryRewound() {
	p.historyRewinds.Inc()
}
