package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initQueryMetrics() {
	r.QueriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_queries_total",
			Help: "Total number of search operations",
		},
		[]string{"status"},
	)

	r.QueryDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_query_duration_seconds",
			Help:    "Search duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
	)

	r.QueryEntriesScanned = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_query_entries_scanned",
			Help:    "Entries evaluated per search",
			Buckets: []float64{10, 100, 1000, 10000, 100000},
		},
	)

	r.QueryMaskedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "audit_query_masked_entries_total",
			Help: "Entries passed through the masking transform before return",
		},
	)

	r.UnauthorizedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_unauthorized_total",
			Help: "Operations denied for missing capabilities",
		},
		[]string{"operation"},
	)
}
