package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch outcomes.
const (
	OutcomeDelivered    = "delivered"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
)

// OutboxDispatchMetrics tracks outbox delivery per destination. A nil
// receiver is a no-op.
type OutboxDispatchMetrics struct {
	outcomes *prometheus.CounterVec
	publish  *prometheus.HistogramVec
	batch    prometheus.Histogram
}

func NewOutboxDispatchMetrics(reg prometheus.Registerer) *OutboxDispatchMetrics {
	if reg == nil {
		return &OutboxDispatchMetrics{}
	}
	m := &OutboxDispatchMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "dispatch_total",
			Help:      "Outbox rows processed by destination and outcome.",
		}, []string{"destination", "outcome"}),
		publish: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "publish_seconds",
			Help:      "Time spent publishing one outbox row.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"destination"}),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "batch_size",
			Help:      "Rows claimed per dispatch cycle.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
	}
	reg.MustRegister(m.outcomes, m.publish, m.batch)
	return m
}

func (m *OutboxDispatchMetrics) Record(destination, outcome string, took time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	destination = normalizeLabel(destination)
	m.outcomes.WithLabelValues(destination, normalizeLabel(outcome)).Inc()
	m.publish.WithLabelValues(destination).Observe(took.Seconds())
}

func (m *OutboxDispatchMetrics) ObserveBatch(size int) {
	if m == nil || m.batch == nil {
		return
	}
	m.batch.Observe(float64(size))
}
