package masking

import (
	"reflect"
	"strings"
	"testing"

	"github.com/dd0wney/cluso-audit/pkg/audit"
)

func TestMaskStringStrategies(t *testing.T) {
	m := NewMasker(nil)

	tests := []struct {
		name      string
		value     string
		fieldType FieldType
		want      string
	}{
		{name: "Password fully masked", value: "hunter2!", fieldType: FieldTypePassword, want: "********"},
		{name: "API key fully masked", value: "sk-abcdef1234", fieldType: FieldTypeAPIKey, want: "*************"},
		{name: "SSN fully masked", value: "111-22-3333", fieldType: FieldTypeSSN, want: "***********"},
		{name: "Generic partial", value: "secret123", fieldType: FieldTypeGeneric, want: "se***t123"},
		{name: "Short value fully masked", value: "abc", fieldType: FieldTypeGeneric, want: "***"},
		{name: "Empty passthrough", value: "", fieldType: FieldTypeEmail, want: ""},
		{name: "Redaction marker passthrough", value: RedactedValue, fieldType: FieldTypeSSN, want: RedactedValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.MaskString(tt.value, tt.fieldType); got != tt.want {
				t.Errorf("MaskString(%q) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestMaskEntrySensitiveChanges(t *testing.T) {
	m := NewMasker(nil)
	e := audit.New("alice", audit.ActionUpdate, "customer", "c-1").
		WithChange("display_name", "Old Name", "New Name").
		WithSensitiveChange("api_response", "secret123", "secret456").
		WithChange("contact.email", "alice@example.com", "bob@example.com")

	masked := m.MaskEntry(e)

	if masked == e {
		t.Fatal("MaskEntry must return a copy")
	}
	if masked.Changes[0].OldValue != "Old Name" {
		t.Error("non-sensitive change should pass through")
	}
	if masked.Changes[1].OldValue == "secret123" {
		t.Error("sensitive value leaked")
	}
	if masked.Changes[1].OldValue != "se***t123" {
		t.Errorf("sensitive value = %q, want partial mask", masked.Changes[1].OldValue)
	}
	// Vocabulary match on the field path masks even unflagged records.
	if masked.Changes[2].OldValue == "alice@example.com" {
		t.Error("email change value leaked")
	}
	// Original untouched.
	if e.Changes[1].OldValue != "secret123" {
		t.Error("original entry was mutated")
	}
}

func TestMaskEntryActorAndNetwork(t *testing.T) {
	m := NewMasker(nil)
	e := audit.New("alice", audit.ActionLogin, "session", "s-1").
		WithActor("Alice", "alice@example.com").
		WithSession("sess-1", "10.20.30.250", "cli/1.0")

	masked := m.MaskEntry(e)

	if masked.ActorEmail == "alice@example.com" {
		t.Error("actor email leaked")
	}
	if masked.ClientIP == "10.20.30.250" {
		t.Error("client address leaked")
	}
	if masked.UserAgent != "cli/1.0" {
		t.Error("user agent should pass through")
	}
}

func TestMaskEntryMetadata(t *testing.T) {
	m := NewMasker(nil)
	e := audit.New("alice", audit.ActionConfigChange, "settings", "s-1").
		WithMetadata("api_key", "sk-live-abcdef").
		WithMetadata("region", "eu-west-1").
		WithMetadata("note", "contact alice@example.com for access")

	masked := m.MaskEntry(e)

	if masked.Metadata["api_key"] == "sk-live-abcdef" {
		t.Error("metadata credential leaked")
	}
	if masked.Metadata["region"] != "eu-west-1" {
		t.Error("plain metadata should pass through")
	}
	note, _ := masked.Metadata["note"].(string)
	if note == "contact alice@example.com for access" {
		t.Error("auto-detect should mask embedded email")
	}
}

func TestMaskEntryIdempotent(t *testing.T) {
	m := NewMasker(nil)
	e := audit.New("alice", audit.ActionUpdate, "customer", "c-1").
		WithActor("Alice", "alice@example.com").
		WithSession("sess-1", "10.20.30.250", "cli/1.0").
		WithSensitiveChange("password", "hunter2!", "correct-horse").
		WithSensitiveChange("api_response", "secret123", "secret456").
		WithMetadata("note", "ssn 111-22-3333 on file")

	once := m.MaskEntry(e)
	twice := m.MaskEntry(once)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("masking is not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestMaskEntryPreservesRedactionMarker(t *testing.T) {
	m := NewMasker(nil)
	e := audit.New("alice", audit.ActionUpdate, "customer", "c-1")
	e.Changes = []audit.ChangeRecord{{FieldPath: "ssn", OldValue: RedactedValue, NewValue: RedactedValue, Sensitive: true}}

	masked := m.MaskEntry(e)
	if masked.Changes[0].OldValue != RedactedValue {
		t.Errorf("redaction marker altered: %q", masked.Changes[0].OldValue)
	}
}

func TestIsSensitiveField(t *testing.T) {
	sensitive := []string{"password", "user_password", "API_KEY", "authorization", "ssn", "credit_card", "creditcard_number", "session_token"}
	for _, name := range sensitive {
		if !IsSensitiveField(name) {
			t.Errorf("%q should be sensitive", name)
		}
	}
	plain := []string{"display_name", "region", "entity", "count"}
	for _, name := range plain {
		if IsSensitiveField(name) {
			t.Errorf("%q should not be sensitive", name)
		}
	}
}

func TestAnnotatePII(t *testing.T) {
	m := NewMasker(nil)
	e := audit.New("alice", audit.ActionUpdate, "customer", "c-1").
		WithSensitiveChange("api_response", "a", "b").
		WithChange("contact.email", "a@ex.com", "b@ex.com").
		WithChange("display_name", "A", "B").
		WithMetadata("api_key", "sk-1")

	m.AnnotatePII(e)

	if !e.ContainsPII {
		t.Fatal("entry should be flagged as containing PII")
	}
	want := []string{"api_response", "contact.email", "metadata.api_key"}
	if !reflect.DeepEqual(e.PIIFields, want) {
		t.Errorf("PII fields = %v, want %v", e.PIIFields, want)
	}
}

func TestAnnotatePIICleanEntry(t *testing.T) {
	m := NewMasker(nil)
	e := audit.New("alice", audit.ActionRead, "report", "r-1")
	m.AnnotatePII(e)
	if e.ContainsPII || len(e.PIIFields) != 0 {
		t.Error("clean entry should not be flagged")
	}
}

func TestAutoMaskString(t *testing.T) {
	m := NewMasker(nil)
	in := "reach alice@example.com or 555-867-5309, card 4111-1111-1111-1111"
	out := m.AutoMaskString(in)

	if out == in {
		t.Fatal("auto-mask left text unchanged")
	}
	for _, leaked := range []string{"alice@example.com", "4111-1111-1111-1111"} {
		if strings.Contains(out, leaked) {
			t.Errorf("auto-mask leaked %q in %q", leaked, out)
		}
	}
	if again := m.AutoMaskString(out); again != out {
		t.Errorf("auto-mask is not idempotent: %q vs %q", out, again)
	}
}
