// Package metrics registers the Prometheus instruments shared by the
// dispatch workers and the tracking endpoints. One instance per process;
// both binaries expose them through promhttp on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every instrument the pipeline emits.
type Metrics struct {
	// QueueClaimed counts send_queue rows claimed by workers.
	QueueClaimed prometheus.Counter

	// Deliveries counts per-recipient outcomes, labelled sent, failed,
	// skipped or invalid.
	Deliveries *prometheus.CounterVec

	// DeadLettered counts queue rows moved to dead_letter.
	DeadLettered prometheus.Counter

	// BatchDuration observes the wall time of one claimed batch.
	BatchDuration prometheus.Histogram

	// TrackingHits counts tracking endpoint hits, labelled open, click
	// or unsubscribe.
	TrackingHits *prometheus.CounterVec

	// Throttled counts sends deferred by the per-domain throttle.
	Throttled prometheus.Counter
}

// New registers all instruments on reg and returns them. Pass
// prometheus.DefaultRegisterer in main; tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		QueueClaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_queue_claimed_total",
			Help: "Send queue rows claimed by workers",
		}),
		Deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_deliveries_total",
				Help: "Per-recipient delivery outcomes",
			},
			[]string{"outcome"},
		),
		DeadLettered: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_dead_lettered_total",
			Help: "Queue rows moved to dead_letter after exhausting attempts",
		}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_batch_duration_seconds",
			Help:    "Wall time spent delivering one claimed batch",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		TrackingHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracking_hits_total",
				Help: "Tracking endpoint hits by kind",
			},
			[]string{"kind"},
		),
		Throttled: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_throttled_total",
			Help: "Sends deferred by the per-domain throttle",
		}),
	}
}
