// Package metrics exposes Prometheus collectors for every engine
// subsystem. The Registry is optional everywhere it is injected: a nil
// Registry turns every Record call into a no-op so tests and embedded
// deployments don't need to wire one.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the audit engine
type Registry struct {
	// Ingestion Metrics
	IngestEntriesTotal   *prometheus.CounterVec
	IngestRejectedTotal  *prometheus.CounterVec
	IngestChainDuration  prometheus.Histogram
	IngestLastSequence   prometheus.Gauge
	IngestLiveEntries    prometheus.Gauge

	// Persistence Metrics
	PersistQueueDepth     prometheus.Gauge
	PersistFlushesTotal   *prometheus.CounterVec
	PersistFlushDuration  prometheus.Histogram
	PersistRetriesTotal   prometheus.Counter
	PersistEntriesWritten prometheus.Counter

	// Query Metrics
	QueriesTotal        *prometheus.CounterVec
	QueryDuration       prometheus.Histogram
	QueryEntriesScanned prometheus.Histogram
	QueryMaskedTotal    prometheus.Counter
	UnauthorizedTotal   *prometheus.CounterVec

	// Retention Metrics
	RetentionRunsTotal      *prometheus.CounterVec
	RetentionRunDuration    prometheus.Histogram
	RetentionActionsTotal   *prometheus.CounterVec
	RetentionConflictsTotal prometheus.Counter
	ArchiveBlobBytes        prometheus.Histogram

	// Compliance Metrics
	ComplianceReportsTotal  *prometheus.CounterVec
	ComplianceChecksTotal   *prometheus.CounterVec
	ComplianceScore         *prometheus.GaugeVec
	IntegrityViolationsSeen prometheus.Counter

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initIngestMetrics()
	r.initPersistenceMetrics()
	r.initQueryMetrics()
	r.initRetentionMetrics()
	r.initComplianceMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
