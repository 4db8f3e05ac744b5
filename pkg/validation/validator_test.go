package validation

import (
	"strings"
	"testing"
)

// TestValidateFieldPath tests change record field path validation
func TestValidateFieldPath(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		expectError bool
	}{
		{
			name:        "Simple path",
			path:        "email",
			expectError: false,
		},
		{
			name:        "Dotted path",
			path:        "profile.contact.email",
			expectError: false,
		},
		{
			name:        "Path with underscore and hyphen",
			path:        "billing_address.line-1",
			expectError: false,
		},
		{
			name:        "Empty path - invalid",
			path:        "",
			expectError: true,
		},
		{
			name:        "Leading dot - invalid",
			path:        ".email",
			expectError: true,
		},
		{
			name:        "Trailing dot - invalid",
			path:        "email.",
			expectError: true,
		},
		{
			name:        "Whitespace - invalid",
			path:        "user name",
			expectError: true,
		},
		{
			name:        "Too long - invalid",
			path:        strings.Repeat("a", MaxFieldPathLength+1),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFieldPath(tt.path)
			if tt.expectError && err == nil {
				t.Errorf("expected error for path %q, got nil", tt.path)
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error for path %q: %v", tt.path, err)
			}
		})
	}
}

// TestValidateBatchSize tests batch size limits
func TestValidateBatchSize(t *testing.T) {
	tests := []struct {
		name        string
		size        int
		expectError bool
	}{
		{name: "Minimum size", size: MinBatchSize, expectError: false},
		{name: "Typical size", size: 64, expectError: false},
		{name: "Maximum size", size: MaxBatchSize, expectError: false},
		{name: "Zero - invalid", size: 0, expectError: true},
		{name: "Negative - invalid", size: -5, expectError: true},
		{name: "Over maximum - invalid", size: MaxBatchSize + 1, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchSize(tt.size)
			if tt.expectError && err == nil {
				t.Errorf("expected error for size %d, got nil", tt.size)
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error for size %d: %v", tt.size, err)
			}
		})
	}
}

// TestValidateID tests actor and entity identifier validation
func TestValidateID(t *testing.T) {
	if err := ValidateID("actor", "user-42"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateID("actor", ""); err == nil {
		t.Error("expected error for empty id")
	}
	if err := ValidateID("entity", "has space"); err == nil {
		t.Error("expected error for id with whitespace")
	}
}

// TestValidateStruct tests tag-driven struct validation
func TestValidateStruct(t *testing.T) {
	type sample struct {
		Name string `validate:"required,max=8"`
	}

	if err := ValidateStruct(&sample{Name: "ok"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateStruct(&sample{}); err == nil {
		t.Error("expected error for missing required field")
	}
	if err := ValidateStruct(&sample{Name: "far too long"}); err == nil {
		t.Error("expected error for over-length field")
	}
	if err := ValidateStruct(nil); err == nil {
		t.Error("expected error for nil value")
	}
}
