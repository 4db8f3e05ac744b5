package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initRetentionMetrics() {
	r.RetentionRunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_retention_runs_total",
			Help: "Total number of retention runs",
		},
		[]string{"status"},
	)

	r.RetentionRunDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_retention_run_duration_seconds",
			Help:    "Retention run duration in seconds",
			Buckets: []float64{0.01, 0.1, 1.0, 10.0, 60.0},
		},
	)

	r.RetentionActionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_retention_actions_total",
			Help: "Entries acted on by retention, by action",
		},
		[]string{"action"},
	)

	r.RetentionConflictsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "audit_retention_conflicts_total",
			Help: "Entries skipped because a protected framework blocked the action",
		},
	)

	r.ArchiveBlobBytes = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_archive_blob_bytes",
			Help:    "Compressed archive blob sizes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)
}
