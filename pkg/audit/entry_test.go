package audit

import (
	"testing"
	"time"
)

func TestActionValid(t *testing.T) {
	valid := []Action{
		ActionCreate, ActionUpdate, ActionDelete, ActionRead, ActionExport,
		ActionImport, ActionShare, ActionApprove, ActionReject,
		ActionLogin, ActionLogout, ActionPermissionChange, ActionConfigChange,
		ActionSecurityAlert, ActionBatchOperation,
		ActionArchive, ActionAnonymize, ActionRetentionRun, ActionSearch,
		ActionIntegrityCheck,
	}
	for _, a := range valid {
		if !a.Valid() {
			t.Errorf("action %q should be valid", a)
		}
	}
	if Action("drop-table").Valid() {
		t.Error("unknown action should be invalid")
	}
}

func TestSeverityAndFrameworkValid(t *testing.T) {
	for _, s := range []Severity{
		SeverityDebug, SeverityInfo, SeverityWarning,
		SeverityError, SeverityCritical, SeveritySecurity,
	} {
		if !s.Valid() {
			t.Errorf("severity %q should be valid", s)
		}
	}
	if Severity("fatal").Valid() {
		t.Error("unknown severity should be invalid")
	}
	if SeveritySecurity.Rank() <= SeverityCritical.Rank() || SeverityDebug.Rank() >= SeverityInfo.Rank() {
		t.Error("severity ranks out of order")
	}
	for _, f := range AllFrameworks() {
		if !f.Valid() {
			t.Errorf("framework %q should be valid", f)
		}
	}
	if Framework("SOX").Valid() {
		t.Error("unknown framework should be invalid")
	}
}

func TestEntryClone(t *testing.T) {
	orig := New("alice", ActionUpdate, "customer", "c-1").
		WithActor("Alice", "alice@example.com", "admin").
		WithChange("name", "old", "new").
		WithSensitiveChange("ssn", "111-22-3333", "444-55-6666").
		WithFrameworks(FrameworkGDPR).
		WithMetadata("request_id", "r-99")
	orig.Timestamp = time.Now().UTC()
	orig.PIIFields = []string{"ssn"}

	clone := orig.Clone()
	if clone == orig {
		t.Fatal("clone returned same pointer")
	}

	clone.ActorName = "changed"
	clone.Changes[0].NewValue = "mutated"
	clone.Frameworks[0] = FrameworkHIPAA
	clone.Metadata["request_id"] = "other"
	clone.ActorRoles[0] = "viewer"
	clone.PIIFields[0] = "none"

	if orig.ActorName != "Alice" {
		t.Error("clone shares ActorName")
	}
	if orig.Changes[0].NewValue != "new" {
		t.Error("clone shares Changes backing array")
	}
	if orig.Frameworks[0] != FrameworkGDPR {
		t.Error("clone shares Frameworks backing array")
	}
	if orig.Metadata["request_id"] != "r-99" {
		t.Error("clone shares Metadata map")
	}
	if orig.ActorRoles[0] != "admin" {
		t.Error("clone shares ActorRoles backing array")
	}
	if orig.PIIFields[0] != "ssn" {
		t.Error("clone shares PIIFields backing array")
	}
}

func TestEntryCloneNil(t *testing.T) {
	var e *Entry
	if e.Clone() != nil {
		t.Error("nil clone should be nil")
	}
}

func TestHasFramework(t *testing.T) {
	e := New("bob", ActionRead, "report", "r-1").WithFrameworks(FrameworkSOC2, FrameworkHIPAA)
	if !e.HasFramework(FrameworkSOC2) {
		t.Error("expected SOC2 tag")
	}
	if e.HasFramework(FrameworkGDPR) {
		t.Error("did not expect GDPR tag")
	}
}
