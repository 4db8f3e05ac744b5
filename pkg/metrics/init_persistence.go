package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initPersistenceMetrics() {
	r.PersistQueueDepth = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_persist_queue_depth",
			Help: "Entries waiting for durable persistence",
		},
	)

	r.PersistFlushesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_persist_flushes_total",
			Help: "Total number of persistence flush cycles",
		},
		[]string{"status"},
	)

	r.PersistFlushDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_persist_flush_duration_seconds",
			Help:    "Persistence flush duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)

	r.PersistRetriesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "audit_persist_retries_total",
			Help: "Total number of batches requeued after a failed write",
		},
	)

	r.PersistEntriesWritten = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "audit_persist_entries_written_total",
			Help: "Total number of entries durably written",
		},
	)
}
