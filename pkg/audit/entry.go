package audit

import (
	"time"
)

// Entry is a single immutable audit record. Once an entry has been
// chained (sequence number and hashes assigned) its content never
// changes, with one sanctioned exception: retention anonymization may
// rewrite the fields that are excluded from the hash input.
type Entry struct {
	// Identity. SequenceNum is assigned at chain time and is strictly
	// increasing with no gaps across the whole history, archived and
	// deleted entries included.
	ID          string    `json:"id"`
	SequenceNum uint64    `json:"sequence_num"`
	Timestamp   time.Time `json:"timestamp"`

	// Actor. Name, email, roles, client address and user agent are
	// anonymizable and therefore not covered by the entry hash.
	ActorID    string   `json:"actor_id" validate:"required,max=256"`
	ActorName  string   `json:"actor_name,omitempty"`
	ActorEmail string   `json:"actor_email,omitempty"`
	ActorRoles []string `json:"actor_roles,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	ClientIP   string   `json:"client_ip,omitempty"`
	UserAgent  string   `json:"user_agent,omitempty"`

	// Target.
	EntityKind string `json:"entity_kind" validate:"required,max=128"`
	EntityID   string `json:"entity_id" validate:"required,max=512"`
	EntityName string `json:"entity_name,omitempty"`

	// What happened.
	Action      Action   `json:"action" validate:"required"`
	Severity    Severity `json:"severity"`
	Success     bool     `json:"success"`
	ErrorDetail string   `json:"error_detail,omitempty"`
	Description string   `json:"description,omitempty"`

	// Field-level changes carried by the operation.
	Changes []ChangeRecord `json:"changes,omitempty"`

	// Correlation across entries.
	CorrelationID string `json:"correlation_id,omitempty"`
	ParentID      string `json:"parent_id,omitempty"`

	// Compliance annotations.
	Frameworks  []Framework `json:"frameworks,omitempty"`
	ContainsPII bool        `json:"contains_pii,omitempty"`
	PIIFields   []string    `json:"pii_fields,omitempty"`

	// Free-form context. Overwritten by anonymization, never hashed.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Integrity chain. PreviousHash of the first entry is the genesis
	// value (64 zero hex characters).
	PreviousHash string `json:"previous_hash"`
	CurrentHash  string `json:"current_hash"`

	// Processing state.
	SystemGenerated bool `json:"system_generated,omitempty"`
	Anonymized      bool `json:"anonymized,omitempty"`
}

// ChangeRecord describes one field-level change. Values of sensitive
// records are masked on read and redacted by anonymization; they are
// excluded from the entry hash so those transitions verify cleanly.
type ChangeRecord struct {
	FieldPath string `json:"field_path"`
	OldValue  string `json:"old_value,omitempty"`
	NewValue  string `json:"new_value,omitempty"`
	DataType  string `json:"data_type,omitempty"`
	Sensitive bool   `json:"sensitive,omitempty"`
}

// Tombstone marks a sequence number whose entry was removed by
// retention. The preserved hashes keep neighbor verification working
// across the gap, and the number is never reused.
type Tombstone struct {
	SequenceNum  uint64      `json:"sequence_num"`
	PreviousHash string      `json:"previous_hash"`
	CurrentHash  string      `json:"current_hash"`
	Disposition  Disposition `json:"disposition"`
	ArchiveID    string      `json:"archive_id,omitempty"`
	PolicyID     string      `json:"policy_id,omitempty"`
	RemovedAt    time.Time   `json:"removed_at"`
}

// Clone returns a deep copy of the entry. Engines that rewrite an
// entry (anonymization, masking) operate on a clone and publish the
// result by pointer swap so concurrent readers never observe a
// partially updated entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	if e.ActorRoles != nil {
		c.ActorRoles = append([]string(nil), e.ActorRoles...)
	}
	if e.Changes != nil {
		c.Changes = append([]ChangeRecord(nil), e.Changes...)
	}
	if e.Frameworks != nil {
		c.Frameworks = append([]Framework(nil), e.Frameworks...)
	}
	if e.PIIFields != nil {
		c.PIIFields = append([]string(nil), e.PIIFields...)
	}
	if e.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// HasFramework reports whether the entry is tagged with the framework.
func (e *Entry) HasFramework(f Framework) bool {
	for _, tag := range e.Frameworks {
		if tag == f {
			return true
		}
	}
	return false
}
