package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
	"github.com/dd0wney/cluso-audit/pkg/logging"
	"github.com/dd0wney/cluso-audit/pkg/security"
	"github.com/dd0wney/cluso-audit/pkg/storage"
	"github.com/dd0wney/cluso-audit/pkg/trail"
)

func newTestReporter(t *testing.T, registry *Registry) (*Reporter, *trail.Trail, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	tr, err := trail.New(trail.Config{
		FlushInterval: 50 * time.Millisecond,
		BatchSize:     64,
		WriteTimeout:  time.Second,
	}, trail.Deps{Store: store, Logger: logging.NewNopLogger()})
	if err != nil {
		t.Fatalf("trail.New: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return NewReporter(registry, tr, logging.NewNopLogger(), nil), tr, store
}

func officer() *security.SecurityContext {
	return security.FromRoles("officer-1", security.RoleComplianceOfficer)
}

// seedGDPRWindow records GDPR-tagged customer entries. When clean is
// true every entry is consistent and an enabled anonymize policy covers
// the kind, so all GDPR checks pass.
func seedGDPRWindow(t *testing.T, tr *trail.Trail, store *storage.MemoryStore, clean bool) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		draft := audit.New("alice", audit.ActionUpdate, "customer", fmt.Sprintf("c-%d", i)).
			WithFrameworks(audit.FrameworkGDPR).
			WithSensitiveChange("customer.ssn", "old", "new")
		draft.ContainsPII = true
		if clean {
			draft.PIIFields = []string{"ssn"}
		}
		if _, err := tr.Record(ctx, draft); err != nil {
			t.Fatalf("seed Record: %v", err)
		}
	}

	if clean {
		err := store.SavePolicy(ctx, &audit.RetentionPolicy{
			ID:            "pol-erasure",
			Name:          "gdpr-erasure",
			RetentionDays: 365,
			Action:        audit.RetentionAnonymize,
			EntityKinds:   []string{"customer"},
			Enabled:       true,
			Priority:      1,
		})
		if err != nil {
			t.Fatalf("SavePolicy: %v", err)
		}
	}
}

func TestGenerateReportRequiresCapabilities(t *testing.T) {
	r, _, _ := newTestReporter(t, nil)

	cases := []struct {
		name string
		sc   *security.SecurityContext
	}{
		{name: "Nil context", sc: nil},
		{name: "Viewer lacks export", sc: security.FromRoles("v-1", security.RoleViewer)},
		{name: "Unknown role", sc: security.FromRoles("m-1", "intern")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.GenerateReport(context.Background(), tc.sc, audit.FrameworkGDPR, time.Time{}, time.Time{})
			if !errors.Is(err, security.ErrUnauthorized) {
				t.Errorf("GenerateReport = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestGenerateReportRejectsUnknownFramework(t *testing.T) {
	r, _, _ := newTestReporter(t, nil)

	if _, err := r.GenerateReport(context.Background(), officer(), audit.Framework("iso9000"), time.Time{}, time.Time{}); err == nil {
		t.Error("GenerateReport accepted an unknown framework")
	}
}

func TestGenerateReportCleanWindowScoresFull(t *testing.T) {
	r, tr, store := newTestReporter(t, nil)
	seedGDPRWindow(t, tr, store, true)

	report, err := r.GenerateReport(context.Background(), officer(), audit.FrameworkGDPR, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if report.EntriesExamined != 8 {
		t.Errorf("EntriesExamined = %d, want 8", report.EntriesExamined)
	}
	if report.Failed != 0 {
		for _, res := range report.Results {
			if !res.Passed {
				t.Errorf("check %s failed: %s", res.CheckID, res.Detail)
			}
		}
	}
	if report.Score != 100 {
		t.Errorf("Score = %.1f, want 100.0", report.Score)
	}
	if report.GeneratedBy != "officer-1" {
		t.Errorf("GeneratedBy = %q", report.GeneratedBy)
	}
	if report.Aggregates.WithPII != 8 {
		t.Errorf("WithPII = %d, want 8", report.Aggregates.WithPII)
	}
}

func TestGenerateReportFlagsInconsistentWindow(t *testing.T) {
	// PII flagged without field paths, and no retention policy at all:
	// GDPR-PII-01, GDPR-ERASE-01 and GEN-RET-01 must fail.
	r, tr, store := newTestReporter(t, nil)
	seedGDPRWindow(t, tr, store, false)

	report, err := r.GenerateReport(context.Background(), officer(), audit.FrameworkGDPR, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	failed := make(map[string]bool)
	for _, res := range report.Results {
		if !res.Passed {
			failed[res.CheckID] = true
		}
	}
	for _, id := range []string{"GDPR-PII-01", "GDPR-ERASE-01", "GEN-RET-01"} {
		if !failed[id] {
			t.Errorf("check %s passed, want failure", id)
		}
	}
	if len(failed) != 3 {
		t.Errorf("failed checks = %v, want exactly 3", failed)
	}
	// 5 of 8 checks pass.
	if report.Score != 62.5 {
		t.Errorf("Score = %.1f, want 62.5", report.Score)
	}
}

func TestGenerateReportScopesEvidenceToFramework(t *testing.T) {
	// A window full of GDPR-tagged entries contributes nothing to a
	// HIPAA report: zero totals, and every check passes vacuously.
	r, tr, store := newTestReporter(t, nil)
	seedGDPRWindow(t, tr, store, true)

	report, err := r.GenerateReport(context.Background(), officer(), audit.FrameworkHIPAA, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if report.EntriesExamined != 0 {
		t.Errorf("EntriesExamined = %d, want 0 (no HIPAA-tagged entries)", report.EntriesExamined)
	}
	if len(report.Aggregates.ByAction) != 0 || report.Aggregates.WithPII != 0 {
		t.Errorf("aggregates computed over untagged entries: %+v", report.Aggregates)
	}
	if report.Score != 100 {
		for _, res := range report.Results {
			if !res.Passed {
				t.Errorf("check %s failed over an empty tagged set: %s", res.CheckID, res.Detail)
			}
		}
		t.Errorf("Score = %.1f, want vacuous 100.0", report.Score)
	}
}

func TestSOC2LoginAndApprovalChecks(t *testing.T) {
	r, tr, _ := newTestReporter(t, nil)
	ctx := context.Background()

	// Three failed logins out of five, and a share with no decision.
	for i := 0; i < 5; i++ {
		draft := audit.New("mallory", audit.ActionLogin, "session", fmt.Sprintf("s-%d", i)).
			WithFrameworks(audit.FrameworkSOC2)
		if i < 3 {
			draft.Success = false
		}
		if _, err := tr.Record(ctx, draft); err != nil {
			t.Fatalf("seed Record: %v", err)
		}
	}
	share := audit.New("alice", audit.ActionShare, "document", "d-1").
		WithFrameworks(audit.FrameworkSOC2)
	if _, err := tr.Record(ctx, share); err != nil {
		t.Fatalf("seed Record: %v", err)
	}

	report, err := r.GenerateReport(ctx, officer(), audit.FrameworkSOC2, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	failed := make(map[string]bool)
	for _, res := range report.Results {
		if !res.Passed {
			failed[res.CheckID] = true
		}
	}
	for _, id := range []string{"SOC2-LOGIN-01", "SOC2-APPROVE-01"} {
		if !failed[id] {
			t.Errorf("check %s passed, want failure", id)
		}
	}

	// An approval decision clears the workflow check.
	approve := audit.New("bob", audit.ActionApprove, "document", "d-1").
		WithFrameworks(audit.FrameworkSOC2)
	if _, err := tr.Record(ctx, approve); err != nil {
		t.Fatalf("seed Record: %v", err)
	}
	report, err = r.GenerateReport(ctx, officer(), audit.FrameworkSOC2, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	for _, res := range report.Results {
		if res.CheckID == "SOC2-APPROVE-01" && !res.Passed {
			t.Errorf("SOC2-APPROVE-01 failed after an approval was recorded: %s", res.Detail)
		}
	}
}

func TestGenerateReportWindowBounds(t *testing.T) {
	r, tr, store := newTestReporter(t, nil)
	seedGDPRWindow(t, tr, store, true)

	entries := tr.Index().Snapshot()
	if len(entries) != 8 {
		t.Fatalf("seeded %d entries", len(entries))
	}
	start := entries[2].Timestamp
	end := entries[5].Timestamp

	report, err := r.GenerateReport(context.Background(), officer(), audit.FrameworkGDPR, start, end)
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if report.EntriesExamined != 4 {
		t.Errorf("EntriesExamined = %d, want 4 inside the window", report.EntriesExamined)
	}
	if !report.WindowStart.Equal(start) || !report.WindowEnd.Equal(end) {
		t.Error("report does not carry the requested window")
	}
}

func TestEmptyRegistryScoresVacuousPass(t *testing.T) {
	r, tr, store := newTestReporter(t, NewEmptyRegistry())
	seedGDPRWindow(t, tr, store, false)

	report, err := r.GenerateReport(context.Background(), officer(), audit.FrameworkGDPR, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if report.Score != 100 {
		t.Errorf("Score = %.1f, want vacuous 100.0", report.Score)
	}
	if len(report.Results) != 0 {
		t.Errorf("got %d results from an empty registry", len(report.Results))
	}
	if report.Notes == "" {
		t.Error("vacuous pass not noted on the report")
	}
}

func TestCustomCheckRegistration(t *testing.T) {
	registry := NewEmptyRegistry()
	registry.Register(audit.FrameworkSOC2, NewCheck("ORG-01", "At least one entry in window",
		func(ctx context.Context, ev *Evidence) CheckResult {
			if len(ev.Entries) == 0 {
				return CheckResult{Passed: false, Detail: "window is empty"}
			}
			return CheckResult{Passed: true, Evidence: len(ev.Entries)}
		}))
	r, _, _ := newTestReporter(t, registry)

	report, err := r.GenerateReport(context.Background(), officer(), audit.FrameworkSOC2, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].CheckID != "ORG-01" {
		t.Fatalf("Results = %+v, want the registered check", report.Results)
	}
	if report.Results[0].Passed {
		t.Error("ORG-01 passed over an empty window")
	}
	if report.Score != 0 {
		t.Errorf("Score = %.1f, want 0.0", report.Score)
	}
}

func TestGenerateReportIsRecordedOnTrail(t *testing.T) {
	r, tr, store := newTestReporter(t, nil)
	seedGDPRWindow(t, tr, store, true)

	if _, err := r.GenerateReport(context.Background(), officer(), audit.FrameworkGDPR, time.Time{}, time.Time{}); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	recorded := 0
	for _, e := range tr.Index().Snapshot() {
		if e.Action == audit.ActionIntegrityCheck && e.EntityID == "compliance-report" {
			recorded++
			if e.ActorID != "officer-1" {
				t.Errorf("report entry actor = %q", e.ActorID)
			}
		}
	}
	if recorded != 1 {
		t.Errorf("found %d report entries on the trail, want 1", recorded)
	}

	// System-context generation does not record itself.
	if _, err := r.GenerateReport(context.Background(), security.SystemContext(), audit.FrameworkGDPR, time.Time{}, time.Time{}); err != nil {
		t.Fatalf("system GenerateReport: %v", err)
	}
	recorded = 0
	for _, e := range tr.Index().Snapshot() {
		if e.Action == audit.ActionIntegrityCheck && e.EntityID == "compliance-report" {
			recorded++
		}
	}
	if recorded != 1 {
		t.Errorf("system generation added a trail entry: %d total", recorded)
	}
}

func TestAggregate(t *testing.T) {
	now := time.Now().UTC()
	entries := []*audit.Entry{
		{ActorID: "alice", Action: audit.ActionUpdate, EntityKind: "customer", Severity: audit.SeverityInfo, Timestamp: now, Success: true},
		{ActorID: "alice", Action: audit.ActionDelete, EntityKind: "customer", Severity: audit.SeverityWarning, Timestamp: now, Success: false},
		{ActorID: "bob", Action: audit.ActionUpdate, EntityKind: "order", Severity: audit.SeverityInfo, Timestamp: now, Success: true, ContainsPII: true},
	}

	agg := aggregate(entries)
	if agg.Failures != 1 {
		t.Errorf("Failures = %d, want 1", agg.Failures)
	}
	if agg.WithPII != 1 {
		t.Errorf("WithPII = %d, want 1", agg.WithPII)
	}
	if agg.ByAction[audit.ActionUpdate] != 2 {
		t.Errorf("ByAction[update] = %d, want 2", agg.ByAction[audit.ActionUpdate])
	}
	if agg.ByEntityKind["customer"] != 2 {
		t.Errorf("ByEntityKind[customer] = %d, want 2", agg.ByEntityKind["customer"])
	}
	if len(agg.TopActors) != 2 || agg.TopActors[0].ActorID != "alice" || agg.TopActors[0].Count != 2 {
		t.Errorf("TopActors = %+v, want alice first with 2", agg.TopActors)
	}
}

func TestReportRendering(t *testing.T) {
	report := &Report{
		Framework:       audit.FrameworkGDPR,
		GeneratedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		GeneratedBy:     "officer-1",
		EntriesExamined: 5,
		Results: []CheckResult{
			{CheckID: "GEN-CHAIN-01", Description: "Hash chain verifies", Passed: true, Evidence: 5},
			{CheckID: "GDPR-ERASE-01", Description: "Erasure policy exists", Passed: false, Detail: "no enabled anonymize or delete retention policy"},
		},
		Passed: 1,
		Failed: 1,
		Score:  50.0,
		Aggregates: Aggregates{
			BySeverity: map[audit.Severity]int{audit.SeverityInfo: 5},
			TopActors:  []ActorCount{{ActorID: "alice", Count: 5}},
			Failures:   0,
		},
	}

	var text bytes.Buffer
	if err := report.WriteText(&text); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	for _, want := range []string{"GDPR Compliance Report", "Score:     50.0%", "[FAIL]", "GDPR-ERASE-01", "alice"} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("text output missing %q", want)
		}
	}

	var md bytes.Buffer
	if err := report.WriteMarkdown(&md); err != nil {
		t.Fatalf("WriteMarkdown: %v", err)
	}
	for _, want := range []string{"# GDPR Compliance Report", "| Status | Check |", "GEN-CHAIN-01", "❌"} {
		if !strings.Contains(md.String(), want) {
			t.Errorf("markdown output missing %q", want)
		}
	}

	var buf bytes.Buffer
	if err := report.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode JSON report: %v", err)
	}
	if decoded.Score != 50.0 || len(decoded.Results) != 2 {
		t.Errorf("decoded report = score %.1f, %d results", decoded.Score, len(decoded.Results))
	}
}
