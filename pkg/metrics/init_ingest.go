package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initIngestMetrics() {
	r.IngestEntriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_ingest_entries_total",
			Help: "Total number of entries chained onto the trail",
		},
		[]string{"action"},
	)

	r.IngestRejectedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_ingest_rejected_total",
			Help: "Total number of drafts rejected by validation",
		},
		[]string{"reason"},
	)

	r.IngestChainDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_ingest_chain_duration_seconds",
			Help:    "Time spent inside the chain critical section per entry",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
		},
	)

	r.IngestLastSequence = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_ingest_last_sequence",
			Help: "Sequence number of the most recently chained entry",
		},
	)

	r.IngestLiveEntries = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_ingest_live_entries",
			Help: "Number of entries in the live index",
		},
	)
}
