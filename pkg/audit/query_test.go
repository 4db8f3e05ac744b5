package audit

import (
	"testing"
	"time"
)

func sampleEntry() *Entry {
	e := New("alice", ActionUpdate, "customer", "c-1").
		WithEntityName("ACME Corp").
		WithDescription("renamed customer").
		WithCorrelation("corr-1", "").
		WithFrameworks(FrameworkGDPR)
	e.SequenceNum = 42
	e.Timestamp = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	return e
}

func TestQueryMatches(t *testing.T) {
	entry := sampleEntry()
	earlier := entry.Timestamp.Add(-time.Hour)
	later := entry.Timestamp.Add(time.Hour)

	tests := []struct {
		name  string
		query Query
		want  bool
	}{
		{name: "Empty query matches", query: Query{}, want: true},
		{name: "Actor match", query: Query{ActorIDs: []string{"alice"}}, want: true},
		{name: "Actor mismatch", query: Query{ActorIDs: []string{"bob"}}, want: false},
		{name: "Entity kind match", query: Query{EntityKinds: []string{"customer"}}, want: true},
		{name: "Entity id mismatch", query: Query{EntityIDs: []string{"c-2"}}, want: false},
		{name: "Action match", query: Query{Actions: []Action{ActionUpdate, ActionDelete}}, want: true},
		{name: "Severity mismatch", query: Query{Severities: []Severity{SeverityCritical}}, want: false},
		{name: "Framework match", query: Query{Frameworks: []Framework{FrameworkGDPR}}, want: true},
		{name: "Framework mismatch", query: Query{Frameworks: []Framework{FrameworkSOC2}}, want: false},
		{name: "Success only matches success", query: Query{SuccessOnly: true}, want: true},
		{name: "Failure only rejects success", query: Query{FailureOnly: true}, want: false},
		{name: "Window containing timestamp", query: Query{StartTime: &earlier, EndTime: &later}, want: true},
		{name: "Window before timestamp", query: Query{EndTime: &earlier}, want: false},
		{name: "Sequence range containing", query: Query{FromSequence: 40, ToSequence: 50}, want: true},
		{name: "Sequence range below", query: Query{ToSequence: 41}, want: false},
		{name: "Correlation match", query: Query{CorrelationID: "corr-1"}, want: true},
		{name: "Correlation mismatch", query: Query{CorrelationID: "corr-2"}, want: false},
		{name: "Free text in description", query: Query{FreeText: "RENAMED"}, want: true},
		{name: "Free text in entity name", query: Query{FreeText: "acme"}, want: true},
		{name: "Free text absent", query: Query{FreeText: "deleted"}, want: false},
		{name: "PII only rejects non-pii", query: Query{PIIOnly: true}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.query.Matches(entry); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueryExcludesSystemEntriesByDefault(t *testing.T) {
	entry := sampleEntry()
	entry.SystemGenerated = true

	q := Query{}
	if q.Matches(entry) {
		t.Error("system entries should be excluded by default")
	}
	q.IncludeSystem = true
	if !q.Matches(entry) {
		t.Error("IncludeSystem should admit system entries")
	}
}

func TestQueryNormalize(t *testing.T) {
	q := Query{Limit: -1, Offset: -3}
	q.Normalize()
	if q.Limit != DefaultQueryLimit {
		t.Errorf("limit = %d, want default %d", q.Limit, DefaultQueryLimit)
	}
	if q.Offset != 0 {
		t.Errorf("offset = %d, want 0", q.Offset)
	}
	if q.SortBy != SortBySequence {
		t.Errorf("sort = %q, want sequence", q.SortBy)
	}

	q = Query{Limit: MaxQueryLimit + 500}
	q.Normalize()
	if q.Limit != MaxQueryLimit {
		t.Errorf("limit = %d, want clamp to %d", q.Limit, MaxQueryLimit)
	}
}

func TestQuerySummary(t *testing.T) {
	if got := (&Query{}).Summary(); got != "unfiltered" {
		t.Errorf("empty query summary = %q", got)
	}
	q := &Query{ActorIDs: []string{"alice"}, FailureOnly: true}
	got := q.Summary()
	if got != "actors=alice failures-only" {
		t.Errorf("summary = %q", got)
	}
}

func TestRetentionPolicyAppliesTo(t *testing.T) {
	entry := sampleEntry()

	unrestricted := &RetentionPolicy{}
	if !unrestricted.AppliesTo(entry) {
		t.Error("unrestricted policy should apply")
	}

	wildcard := &RetentionPolicy{EntityKinds: []string{MatchAll}}
	if !wildcard.AppliesTo(entry) {
		t.Error("wildcard policy should apply")
	}

	kindMatch := &RetentionPolicy{EntityKinds: []string{"order", "customer"}}
	if !kindMatch.AppliesTo(entry) {
		t.Error("kind policy should apply")
	}

	kindMiss := &RetentionPolicy{EntityKinds: []string{"order"}}
	if kindMiss.AppliesTo(entry) {
		t.Error("mismatched kind should not apply")
	}

	actionScoped := &RetentionPolicy{Actions: []Action{ActionDelete}}
	if actionScoped.AppliesTo(entry) {
		t.Error("action-scoped policy should not apply to update")
	}

	severityExcluded := &RetentionPolicy{ExcludedSeverities: []Severity{SeverityInfo}}
	if severityExcluded.AppliesTo(entry) {
		t.Error("policy excluding info severity should not apply")
	}
}

func TestRetentionPolicyExpired(t *testing.T) {
	entry := sampleEntry()
	p := &RetentionPolicy{RetentionDays: 1}

	if p.Expired(entry, entry.Timestamp.Add(time.Hour)) {
		t.Error("entry should not be expired within window")
	}
	if !p.Expired(entry, entry.Timestamp.Add(25*time.Hour)) {
		t.Error("entry should be expired after window")
	}
}

func TestRetentionPolicyProtects(t *testing.T) {
	entry := sampleEntry() // tagged GDPR

	p := &RetentionPolicy{ProtectedFrameworks: []Framework{FrameworkGDPR}}
	if !p.Protects(entry) {
		t.Error("GDPR-tagged entry should be protected")
	}

	p = &RetentionPolicy{ProtectedFrameworks: []Framework{FrameworkHIPAA}}
	if p.Protects(entry) {
		t.Error("entry without HIPAA tag should not be protected")
	}
}
