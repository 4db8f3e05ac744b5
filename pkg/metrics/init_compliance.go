package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initComplianceMetrics() {
	r.ComplianceReportsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_compliance_reports_total",
			Help: "Total number of compliance reports generated",
		},
		[]string{"framework"},
	)

	r.ComplianceChecksTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_compliance_checks_total",
			Help: "Compliance check executions by outcome",
		},
		[]string{"framework", "result"},
	)

	r.ComplianceScore = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audit_compliance_score",
			Help: "Most recent compliance score per framework (0-100)",
		},
		[]string{"framework"},
	)

	r.IntegrityViolationsSeen = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "audit_integrity_violations_total",
			Help: "Tampered sequence numbers reported by chain verification",
		},
	)
}
