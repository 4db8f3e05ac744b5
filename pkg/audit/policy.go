package audit

import (
	"time"
)

// RetentionAction is what happens to an entry once its policy window
// has elapsed. Keep is an explicit terminal action: a matching keep
// policy pins entries even if a lower-priority policy would expire
// them.
type RetentionAction string

const (
	RetentionKeep      RetentionAction = "keep"
	RetentionArchive   RetentionAction = "archive"
	RetentionDelete    RetentionAction = "delete"
	RetentionAnonymize RetentionAction = "anonymize"
)

// Valid reports whether the retention action is one of the defined constants.
func (a RetentionAction) Valid() bool {
	switch a {
	case RetentionKeep, RetentionArchive, RetentionDelete, RetentionAnonymize:
		return true
	}
	return false
}

// MatchAll is the wildcard entity kind matcher.
const MatchAll = "*"

// RetentionPolicy decides how long entries live and what happens to
// them afterwards. Policies are evaluated in priority order (highest
// first); the first enabled policy that applies to an entry wins.
type RetentionPolicy struct {
	ID          string `json:"id"`
	Name        string `json:"name" validate:"required,max=128"`
	Description string `json:"description,omitempty" validate:"max=1024"`

	// RetentionDays is how many days after its timestamp an entry
	// stays live before the action applies.
	RetentionDays int `json:"retention_days" validate:"min=1"`

	Action RetentionAction `json:"action"`

	// Applicability filters. Empty EntityKinds or a "*" element
	// matches every kind; empty Actions matches every action.
	EntityKinds []string `json:"entity_kinds,omitempty"`
	Actions     []Action `json:"actions,omitempty"`

	// ExcludedSeverities lists severities the policy never touches.
	ExcludedSeverities []Severity `json:"excluded_severities,omitempty"`

	// ProtectedFrameworks block deletion and anonymization: an entry
	// tagged with any of them is skipped and reported as a conflict.
	ProtectedFrameworks []Framework `json:"protected_frameworks,omitempty"`

	Enabled  bool `json:"enabled"`
	Priority int  `json:"priority"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// Window returns the retention window as a duration.
func (p *RetentionPolicy) Window() time.Duration {
	return time.Duration(p.RetentionDays) * 24 * time.Hour
}

// AppliesTo reports whether the policy selects the entry, ignoring age.
func (p *RetentionPolicy) AppliesTo(e *Entry) bool {
	if e == nil {
		return false
	}
	if len(p.EntityKinds) > 0 && !containsString(p.EntityKinds, MatchAll) &&
		!containsString(p.EntityKinds, e.EntityKind) {
		return false
	}
	if len(p.Actions) > 0 && !containsAction(p.Actions, e.Action) {
		return false
	}
	for _, s := range p.ExcludedSeverities {
		if e.Severity == s {
			return false
		}
	}
	return true
}

// Expired reports whether the entry's retention window has elapsed at
// the given reference time.
func (p *RetentionPolicy) Expired(e *Entry, now time.Time) bool {
	return now.Sub(e.Timestamp) > p.Window()
}

// Protects reports whether the policy's protected frameworks block
// destructive action on the entry.
func (p *RetentionPolicy) Protects(e *Entry) bool {
	for _, f := range p.ProtectedFrameworks {
		if e.HasFramework(f) {
			return true
		}
	}
	return false
}

// Archive is the manifest of one archived batch. The blob itself lives
// in an archive store; the manifest stays queryable so restores and
// chain verification can locate it.
type Archive struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	PolicyID   string    `json:"policy_id"`
	EntryCount int       `json:"entry_count"`

	// Sequence range covered by the blob. Ranges of different
	// archives never overlap.
	FromSequence uint64 `json:"from_sequence"`
	ToSequence   uint64 `json:"to_sequence"`

	// Chain boundaries: PreviousHash of the first archived entry and
	// CurrentHash of the last, so the archive splices back into the
	// chain on restore.
	BoundaryPrevHash string `json:"boundary_prev_hash"`
	BoundaryLastHash string `json:"boundary_last_hash"`

	// Blob details.
	Location       string `json:"location"`
	CompressedSize int64  `json:"compressed_size"`
	Checksum       uint32 `json:"checksum"`
	Encrypted      bool   `json:"encrypted"`
}
