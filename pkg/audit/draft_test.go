package audit

import (
	"strings"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	e := New("alice", ActionCreate, "customer", "c-1")
	if e.ID == "" {
		t.Error("expected generated id")
	}
	if !e.Success {
		t.Error("New should default to success")
	}
	if e.Severity != SeverityInfo {
		t.Errorf("severity = %q, want info", e.Severity)
	}
	if e.SequenceNum != 0 || e.CurrentHash != "" {
		t.Error("draft must not carry chain state")
	}
}

func TestNewFailed(t *testing.T) {
	e := NewFailed("bob", ActionLogin, "session", "s-1", "bad password")
	if e.Success {
		t.Error("NewFailed should not be success")
	}
	if e.ErrorDetail != "bad password" {
		t.Errorf("error detail = %q", e.ErrorDetail)
	}
	if e.Severity != SeverityWarning {
		t.Errorf("severity = %q, want warning", e.Severity)
	}
}

func TestBuilderChaining(t *testing.T) {
	e := New("alice", ActionUpdate, "customer", "c-1").
		WithEntityName("ACME Corp").
		WithDescription("renamed customer %s", "c-1").
		WithCorrelation("corr-1", "parent-1").
		WithSession("sess-9", "10.1.2.3", "cli/1.0").
		WithChange("name", "ACME", "ACME Corp").
		WithSensitiveChange("contact.email", "a@ex.com", "b@ex.com")

	if e.EntityName != "ACME Corp" {
		t.Errorf("entity name = %q", e.EntityName)
	}
	if !strings.Contains(e.Description, "c-1") {
		t.Errorf("description = %q", e.Description)
	}
	if e.CorrelationID != "corr-1" || e.ParentID != "parent-1" {
		t.Error("correlation fields not set")
	}
	if len(e.Changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(e.Changes))
	}
	if e.Changes[0].Sensitive {
		t.Error("first change should not be sensitive")
	}
	if !e.Changes[1].Sensitive {
		t.Error("second change should be sensitive")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Entry)
		expectError bool
	}{
		{
			name:        "Valid draft",
			mutate:      func(e *Entry) {},
			expectError: false,
		},
		{
			name:        "Missing actor",
			mutate:      func(e *Entry) { e.ActorID = "" },
			expectError: true,
		},
		{
			name:        "Actor with whitespace",
			mutate:      func(e *Entry) { e.ActorID = "al ice" },
			expectError: true,
		},
		{
			name:        "Missing entity kind",
			mutate:      func(e *Entry) { e.EntityKind = "" },
			expectError: true,
		},
		{
			name:        "Missing entity id",
			mutate:      func(e *Entry) { e.EntityID = "" },
			expectError: true,
		},
		{
			name:        "Unknown action",
			mutate:      func(e *Entry) { e.Action = "explode" },
			expectError: true,
		},
		{
			name:        "Unknown severity",
			mutate:      func(e *Entry) { e.Severity = "fatal" },
			expectError: true,
		},
		{
			name:        "Unknown framework",
			mutate:      func(e *Entry) { e.Frameworks = []Framework{"SOX"} },
			expectError: true,
		},
		{
			name:        "Empty change path",
			mutate:      func(e *Entry) { e.Changes = []ChangeRecord{{FieldPath: ""}} },
			expectError: true,
		},
		{
			name:        "Valid change path",
			mutate:      func(e *Entry) { e.Changes = []ChangeRecord{{FieldPath: "a.b.c"}} },
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New("alice", ActionUpdate, "customer", "c-1")
			tt.mutate(e)
			err := e.Validate()
			if tt.expectError && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
