package metrics

import (
	"time"
)

// Record helpers. All of them tolerate a nil Registry so callers can
// leave metrics unwired.

// RecordIngest counts one chained entry and updates the tail gauges.
func (r *Registry) RecordIngest(action string, chainDuration time.Duration, lastSeq uint64, liveEntries int) {
	if r == nil {
		return
	}
	r.IngestEntriesTotal.WithLabelValues(action).Inc()
	r.IngestChainDuration.Observe(chainDuration.Seconds())
	r.IngestLastSequence.Set(float64(lastSeq))
	r.IngestLiveEntries.Set(float64(liveEntries))
}

// RecordRejected counts a draft rejected by validation.
func (r *Registry) RecordRejected(reason string) {
	if r == nil {
		return
	}
	r.IngestRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordFlush records one persistence flush cycle.
func (r *Registry) RecordFlush(status string, duration time.Duration, entriesWritten, queueDepth int) {
	if r == nil {
		return
	}
	r.PersistFlushesTotal.WithLabelValues(status).Inc()
	r.PersistFlushDuration.Observe(duration.Seconds())
	if entriesWritten > 0 {
		r.PersistEntriesWritten.Add(float64(entriesWritten))
	}
	r.PersistQueueDepth.Set(float64(queueDepth))
}

// RecordRetry counts a requeued batch.
func (r *Registry) RecordRetry() {
	if r == nil {
		return
	}
	r.PersistRetriesTotal.Inc()
}

// SetQueueDepth updates the pending-queue gauge.
func (r *Registry) SetQueueDepth(depth int) {
	if r == nil {
		return
	}
	r.PersistQueueDepth.Set(float64(depth))
}

// RecordQuery records one search operation.
func (r *Registry) RecordQuery(status string, duration time.Duration, scanned, masked int) {
	if r == nil {
		return
	}
	r.QueriesTotal.WithLabelValues(status).Inc()
	r.QueryDuration.Observe(duration.Seconds())
	r.QueryEntriesScanned.Observe(float64(scanned))
	if masked > 0 {
		r.QueryMaskedTotal.Add(float64(masked))
	}
}

// RecordUnauthorized counts a capability denial.
func (r *Registry) RecordUnauthorized(operation string) {
	if r == nil {
		return
	}
	r.UnauthorizedTotal.WithLabelValues(operation).Inc()
}

// RecordRetentionRun records a completed retention run.
func (r *Registry) RecordRetentionRun(status string, duration time.Duration, archived, deleted, anonymized, conflicts int) {
	if r == nil {
		return
	}
	r.RetentionRunsTotal.WithLabelValues(status).Inc()
	r.RetentionRunDuration.Observe(duration.Seconds())
	r.RetentionActionsTotal.WithLabelValues("archive").Add(float64(archived))
	r.RetentionActionsTotal.WithLabelValues("delete").Add(float64(deleted))
	r.RetentionActionsTotal.WithLabelValues("anonymize").Add(float64(anonymized))
	if conflicts > 0 {
		r.RetentionConflictsTotal.Add(float64(conflicts))
	}
}

// RecordArchiveBlob records the size of a sealed archive blob.
func (r *Registry) RecordArchiveBlob(bytes int) {
	if r == nil {
		return
	}
	r.ArchiveBlobBytes.Observe(float64(bytes))
}

// RecordComplianceReport records a generated report and its score.
func (r *Registry) RecordComplianceReport(framework string, score float64, passed, failed int) {
	if r == nil {
		return
	}
	r.ComplianceReportsTotal.WithLabelValues(framework).Inc()
	r.ComplianceChecksTotal.WithLabelValues(framework, "pass").Add(float64(passed))
	r.ComplianceChecksTotal.WithLabelValues(framework, "fail").Add(float64(failed))
	r.ComplianceScore.WithLabelValues(framework).Set(score)
}

// RecordIntegrityViolations counts tampered sequence numbers surfaced
// by verification.
func (r *Registry) RecordIntegrityViolations(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.IntegrityViolationsSeen.Add(float64(count))
}
