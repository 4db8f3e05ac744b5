package masking

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/dd0wney/cluso-audit/pkg/audit"
)

// TestMaskingProperties checks the masking invariants over arbitrary
// values rather than fixtures.
func TestMaskingProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	m := NewMasker(nil)

	properties.Property("masking a string is idempotent", prop.ForAll(
		func(value string) bool {
			once := m.MaskString(value, FieldTypeGeneric)
			return m.MaskString(once, FieldTypeGeneric) == once
		},
		gen.AnyString(),
	))

	properties.Property("masked value never equals a long raw value", prop.ForAll(
		func(value string) bool {
			if len(value) < 8 {
				return true
			}
			return m.MaskString(value, FieldTypeGeneric) != value
		},
		gen.Identifier(),
	))

	properties.Property("masking an entry twice equals masking once", prop.ForAll(
		func(oldVal, newVal string) bool {
			e := audit.New("alice", audit.ActionUpdate, "customer", "c-1").
				WithSensitiveChange("api_response", oldVal, newVal)
			once := m.MaskEntry(e)
			twice := m.MaskEntry(once)
			return once.Changes[0].OldValue == twice.Changes[0].OldValue &&
				once.Changes[0].NewValue == twice.Changes[0].NewValue
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
