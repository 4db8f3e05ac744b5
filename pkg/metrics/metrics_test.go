package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// gather returns the metric family by name, or nil.
func gather(t *testing.T, r *Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func counterValue(mf *dto.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}

func TestNilRegistryIsNoOp(t *testing.T) {
	var r *Registry
	// None of these may panic.
	r.RecordIngest("create", time.Millisecond, 1, 1)
	r.RecordRejected("validation")
	r.RecordFlush("success", time.Millisecond, 10, 0)
	r.RecordRetry()
	r.SetQueueDepth(5)
	r.RecordQuery("success", time.Millisecond, 100, 10)
	r.RecordUnauthorized("search")
	r.RecordRetentionRun("success", time.Second, 1, 2, 3, 0)
	r.RecordArchiveBlob(4096)
	r.RecordComplianceReport("GDPR", 87.5, 7, 1)
	r.RecordIntegrityViolations(2)
}

func TestRecordIngest(t *testing.T) {
	r := NewRegistry()
	r.RecordIngest("create", time.Millisecond, 42, 42)
	r.RecordIngest("create", time.Millisecond, 43, 43)
	r.RecordIngest("delete", time.Millisecond, 44, 44)

	mf := gather(t, r, "audit_ingest_entries_total")
	if mf == nil {
		t.Fatal("audit_ingest_entries_total not registered")
	}
	if got := counterValue(mf); got != 3 {
		t.Errorf("ingest counter = %v, want 3", got)
	}

	seq := gather(t, r, "audit_ingest_last_sequence")
	if seq == nil || seq.GetMetric()[0].GetGauge().GetValue() != 44 {
		t.Errorf("last sequence gauge = %v, want 44", seq)
	}
}

func TestRecordFlushAndRetry(t *testing.T) {
	r := NewRegistry()
	r.RecordFlush("success", 5*time.Millisecond, 100, 0)
	r.RecordFlush("failure", 5*time.Millisecond, 0, 100)
	r.RecordRetry()

	flushes := gather(t, r, "audit_persist_flushes_total")
	if got := counterValue(flushes); got != 2 {
		t.Errorf("flush counter = %v, want 2", got)
	}
	retries := gather(t, r, "audit_persist_retries_total")
	if got := counterValue(retries); got != 1 {
		t.Errorf("retry counter = %v, want 1", got)
	}
	written := gather(t, r, "audit_persist_entries_written_total")
	if got := counterValue(written); got != 100 {
		t.Errorf("written counter = %v, want 100", got)
	}
}

func TestRecordComplianceReport(t *testing.T) {
	r := NewRegistry()
	r.RecordComplianceReport("SOC2", 75.0, 3, 1)

	score := gather(t, r, "audit_compliance_score")
	if score == nil {
		t.Fatal("audit_compliance_score not registered")
	}
	m := score.GetMetric()[0]
	if m.GetGauge().GetValue() != 75.0 {
		t.Errorf("score gauge = %v, want 75", m.GetGauge().GetValue())
	}
	if len(m.GetLabel()) != 1 || m.GetLabel()[0].GetValue() != "SOC2" {
		t.Errorf("score labels = %v, want framework=SOC2", m.GetLabel())
	}

	checks := gather(t, r, "audit_compliance_checks_total")
	if got := counterValue(checks); got != 4 {
		t.Errorf("check counter = %v, want 4", got)
	}
}
