package audit

import (
	"strings"
	"time"
)

// Sort orders for query results.
const (
	SortBySequence  = "sequence"
	SortByTimestamp = "timestamp"
	SortByActor     = "actor"
	SortByAction    = "action"
	SortBySeverity  = "severity"
)

// Query limits.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// Query describes a filtered, paginated search over the trail. Zero
// values mean "no filter" for every field.
type Query struct {
	ActorIDs    []string    `json:"actor_ids,omitempty"`
	EntityKinds []string    `json:"entity_kinds,omitempty"`
	EntityIDs   []string    `json:"entity_ids,omitempty"`
	Actions     []Action    `json:"actions,omitempty"`
	Severities  []Severity  `json:"severities,omitempty"`
	Frameworks  []Framework `json:"frameworks,omitempty"`

	// SuccessOnly and FailureOnly are mutually exclusive; if both are
	// set the query matches nothing.
	SuccessOnly bool `json:"success_only,omitempty"`
	FailureOnly bool `json:"failure_only,omitempty"`

	// PIIOnly restricts results to entries flagged as containing PII.
	PIIOnly bool `json:"pii_only,omitempty"`

	// IncludeSystem includes engine-generated entries (searches,
	// retention runs). They are excluded by default.
	IncludeSystem bool `json:"include_system,omitempty"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	FromSequence uint64 `json:"from_sequence,omitempty"`
	ToSequence   uint64 `json:"to_sequence,omitempty"`

	CorrelationID string `json:"correlation_id,omitempty"`

	// FreeText matches the description and entity display name,
	// case-insensitively.
	FreeText string `json:"free_text,omitempty"`

	Offset int `json:"offset,omitempty"`
	Limit  int `json:"limit,omitempty"`

	SortBy         string `json:"sort_by,omitempty"`
	SortDescending bool   `json:"sort_descending,omitempty"`

	// IncludeSensitive requests unmasked values. Honored only for
	// callers holding the view-sensitive capability.
	IncludeSensitive bool `json:"include_sensitive,omitempty"`

	// VerifyIntegrity asks for chain verification over the matched
	// window; the report is attached to the result.
	VerifyIntegrity bool `json:"verify_integrity,omitempty"`
}

// Normalize clamps pagination and fills in sort defaults.
func (q *Query) Normalize() {
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.Limit > MaxQueryLimit {
		q.Limit = MaxQueryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.SortBy == "" {
		q.SortBy = SortBySequence
	}
}

// Matches reports whether the entry passes every filter in the query.
// Pagination and sorting are applied by the caller.
func (q *Query) Matches(e *Entry) bool {
	if e == nil {
		return false
	}
	if e.SystemGenerated && !q.IncludeSystem {
		return false
	}
	if len(q.ActorIDs) > 0 && !containsString(q.ActorIDs, e.ActorID) {
		return false
	}
	if len(q.EntityKinds) > 0 && !containsString(q.EntityKinds, e.EntityKind) {
		return false
	}
	if len(q.EntityIDs) > 0 && !containsString(q.EntityIDs, e.EntityID) {
		return false
	}
	if len(q.Actions) > 0 && !containsAction(q.Actions, e.Action) {
		return false
	}
	if len(q.Severities) > 0 && !containsSeverity(q.Severities, e.Severity) {
		return false
	}
	if len(q.Frameworks) > 0 {
		found := false
		for _, f := range q.Frameworks {
			if e.HasFramework(f) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.SuccessOnly && !e.Success {
		return false
	}
	if q.FailureOnly && e.Success {
		return false
	}
	if q.PIIOnly && !e.ContainsPII {
		return false
	}
	if q.StartTime != nil && e.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && e.Timestamp.After(*q.EndTime) {
		return false
	}
	if q.FromSequence > 0 && e.SequenceNum < q.FromSequence {
		return false
	}
	if q.ToSequence > 0 && e.SequenceNum > q.ToSequence {
		return false
	}
	if q.CorrelationID != "" && e.CorrelationID != q.CorrelationID {
		return false
	}
	if q.FreeText != "" {
		needle := strings.ToLower(q.FreeText)
		if !strings.Contains(strings.ToLower(e.Description), needle) &&
			!strings.Contains(strings.ToLower(e.EntityName), needle) {
			return false
		}
	}
	return true
}

// Summary renders a short description of the active filters, used when
// a search is itself recorded on the trail.
func (q *Query) Summary() string {
	var parts []string
	if len(q.ActorIDs) > 0 {
		parts = append(parts, "actors="+strings.Join(q.ActorIDs, ","))
	}
	if len(q.EntityKinds) > 0 {
		parts = append(parts, "kinds="+strings.Join(q.EntityKinds, ","))
	}
	if len(q.Actions) > 0 {
		acts := make([]string, len(q.Actions))
		for i, a := range q.Actions {
			acts[i] = string(a)
		}
		parts = append(parts, "actions="+strings.Join(acts, ","))
	}
	if len(q.Frameworks) > 0 {
		fws := make([]string, len(q.Frameworks))
		for i, f := range q.Frameworks {
			fws[i] = string(f)
		}
		parts = append(parts, "frameworks="+strings.Join(fws, ","))
	}
	if q.StartTime != nil {
		parts = append(parts, "from="+q.StartTime.UTC().Format(time.RFC3339))
	}
	if q.EndTime != nil {
		parts = append(parts, "until="+q.EndTime.UTC().Format(time.RFC3339))
	}
	if q.FreeText != "" {
		parts = append(parts, "text="+q.FreeText)
	}
	if q.FailureOnly {
		parts = append(parts, "failures-only")
	}
	if q.PIIOnly {
		parts = append(parts, "pii-only")
	}
	if len(parts) == 0 {
		return "unfiltered"
	}
	return strings.Join(parts, " ")
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsAction(haystack []Action, needle Action) bool {
	for _, a := range haystack {
		if a == needle {
			return true
		}
	}
	return false
}

func containsSeverity(haystack []Severity, needle Severity) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
