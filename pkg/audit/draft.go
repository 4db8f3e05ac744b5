package audit

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-audit/pkg/validation"
)

// New creates a draft entry for a successful operation. The entry gets
// its sequence number, timestamp and hashes when it is recorded.
func New(actorID string, action Action, entityKind, entityID string) *Entry {
	return &Entry{
		ID:         uuid.New().String(),
		ActorID:    actorID,
		Action:     action,
		EntityKind: entityKind,
		EntityID:   entityID,
		Severity:   SeverityInfo,
		Success:    true,
	}
}

// NewFailed creates a draft entry for a failed operation.
func NewFailed(actorID string, action Action, entityKind, entityID, errorDetail string) *Entry {
	e := New(actorID, action, entityKind, entityID)
	e.Success = false
	e.ErrorDetail = errorDetail
	e.Severity = SeverityWarning
	return e
}

// WithActor fills in the optional actor identity fields.
func (e *Entry) WithActor(name, email string, roles ...string) *Entry {
	e.ActorName = name
	e.ActorEmail = email
	e.ActorRoles = roles
	return e
}

// WithSession records the session and client details of the request.
func (e *Entry) WithSession(sessionID, clientIP, userAgent string) *Entry {
	e.SessionID = sessionID
	e.ClientIP = clientIP
	e.UserAgent = userAgent
	return e
}

// WithEntityName sets the display name of the target entity.
func (e *Entry) WithEntityName(name string) *Entry {
	e.EntityName = name
	return e
}

// WithSeverity overrides the default severity.
func (e *Entry) WithSeverity(s Severity) *Entry {
	e.Severity = s
	return e
}

// WithDescription sets the human-readable summary.
func (e *Entry) WithDescription(format string, args ...interface{}) *Entry {
	if len(args) == 0 {
		e.Description = format
	} else {
		e.Description = fmt.Sprintf(format, args...)
	}
	return e
}

// WithChange appends a field-level change record.
func (e *Entry) WithChange(fieldPath, oldValue, newValue string) *Entry {
	e.Changes = append(e.Changes, ChangeRecord{
		FieldPath: fieldPath,
		OldValue:  oldValue,
		NewValue:  newValue,
		DataType:  "string",
	})
	return e
}

// WithSensitiveChange appends a change record whose values are masked
// on read and redacted by anonymization.
func (e *Entry) WithSensitiveChange(fieldPath, oldValue, newValue string) *Entry {
	e.Changes = append(e.Changes, ChangeRecord{
		FieldPath: fieldPath,
		OldValue:  oldValue,
		NewValue:  newValue,
		DataType:  "string",
		Sensitive: true,
	})
	return e
}

// WithChangeRecord appends a fully specified change record.
func (e *Entry) WithChangeRecord(rec ChangeRecord) *Entry {
	e.Changes = append(e.Changes, rec)
	return e
}

// WithCorrelation links the entry to a correlation id and optional parent.
func (e *Entry) WithCorrelation(correlationID, parentID string) *Entry {
	e.CorrelationID = correlationID
	e.ParentID = parentID
	return e
}

// WithFrameworks tags the entry with regulatory frameworks.
func (e *Entry) WithFrameworks(frameworks ...Framework) *Entry {
	e.Frameworks = append(e.Frameworks, frameworks...)
	return e
}

// WithMetadata attaches a free-form context value.
func (e *Entry) WithMetadata(key string, value interface{}) *Entry {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Validate checks a draft before it is chained. Validation failures
// leave the trail untouched.
func (e *Entry) Validate() error {
	if e == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if err := validation.ValidateStruct(e); err != nil {
		return err
	}
	if err := validation.ValidateID("actor", e.ActorID); err != nil {
		return err
	}
	if err := validation.ValidateID("entity", e.EntityID); err != nil {
		return err
	}
	if !e.Action.Valid() {
		return fmt.Errorf("unknown action %q", e.Action)
	}
	if e.Severity != "" && !e.Severity.Valid() {
		return fmt.Errorf("unknown severity %q", e.Severity)
	}
	for _, f := range e.Frameworks {
		if !f.Valid() {
			return fmt.Errorf("unknown framework %q", f)
		}
	}
	if len(e.Changes) > validation.MaxChangeRecords {
		return fmt.Errorf("too many change records: %d exceeds %d", len(e.Changes), validation.MaxChangeRecords)
	}
	for i, c := range e.Changes {
		if err := validation.ValidateFieldPath(c.FieldPath); err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
	}
	if len(e.Metadata) > validation.MaxMetadataKeys {
		return fmt.Errorf("too many metadata keys: %d exceeds %d", len(e.Metadata), validation.MaxMetadataKeys)
	}
	return nil
}
