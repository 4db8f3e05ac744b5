// Package masking redacts sensitive values from audit entries handed
// to readers without the view-sensitive capability. Masking is
// irreversible and idempotent: masking an already-masked entry yields
// an identical result.
package masking

import (
	"regexp"
	"sort"
	"strings"

	"github.com/dd0wney/cluso-audit/pkg/audit"
)

// Masker handles data masking operations
type Masker struct {
	config   *MaskingConfig
	patterns map[FieldType]*regexp.Regexp
}

// NewMasker creates a new data masker
func NewMasker(config *MaskingConfig) *Masker {
	if config == nil {
		config = DefaultMaskingConfig()
	}

	m := &Masker{
		config:   config,
		patterns: make(map[FieldType]*regexp.Regexp),
	}

	// Compile regex patterns for auto-detection
	m.patterns[FieldTypeEmail] = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	m.patterns[FieldTypePhone] = regexp.MustCompile(`(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	m.patterns[FieldTypeSSN] = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	m.patterns[FieldTypeCreditCard] = regexp.MustCompile(`\b\d{4}[\s\-]?\d{4}[\s\-]?\d{4}[\s\-]?\d{4}\b`)
	m.patterns[FieldTypeIPAddress] = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

	return m
}

// MaskString masks a string value based on field type
func (m *Masker) MaskString(value string, fieldType FieldType) string {
	if value == "" || value == RedactedValue {
		return value
	}

	strategy := m.getStrategy(fieldType)

	switch strategy {
	case StrategyFull:
		return m.maskFull(value)
	case StrategyPartial:
		return m.maskPartial(value)
	case StrategyHash:
		return m.maskHash(value)
	case StrategyRedact:
		return RedactedValue
	case StrategyNone:
		return value
	default:
		return m.maskPartial(value)
	}
}

// MaskEntry returns a masked deep copy of the entry. The original is
// never touched, so callers can keep handing out pointers into the
// live index. Masked fields: actor email and client address, the
// values of change records that are flagged sensitive or whose field
// path matches the sensitive vocabulary, and sensitive metadata.
func (m *Masker) MaskEntry(e *audit.Entry) *audit.Entry {
	if e == nil {
		return nil
	}
	out := e.Clone()

	if out.ActorEmail != "" {
		out.ActorEmail = m.MaskString(out.ActorEmail, FieldTypeEmail)
	}
	if out.ClientIP != "" {
		out.ClientIP = m.MaskString(out.ClientIP, FieldTypeIPAddress)
	}

	for i := range out.Changes {
		c := &out.Changes[i]
		fieldType := m.detectFieldType(c.FieldPath)
		if !c.Sensitive && fieldType == FieldTypeGeneric && !IsSensitiveField(c.FieldPath) {
			continue
		}
		c.OldValue = m.MaskString(c.OldValue, fieldType)
		c.NewValue = m.MaskString(c.NewValue, fieldType)
	}

	if out.Metadata != nil {
		out.Metadata = m.MaskMap(out.Metadata)
	}

	return out
}

// MaskEntries masks a batch of entries.
func (m *Masker) MaskEntries(entries []*audit.Entry) []*audit.Entry {
	out := make([]*audit.Entry, len(entries))
	for i, e := range entries {
		out[i] = m.MaskEntry(e)
	}
	return out
}

// MaskMap masks sensitive fields in a map
func (m *Masker) MaskMap(data map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})

	for key, value := range data {
		// Check if key indicates sensitive data
		fieldType := m.detectFieldType(key)

		switch v := value.(type) {
		case string:
			if fieldType != FieldTypeGeneric || IsSensitiveField(key) {
				result[key] = m.MaskString(v, fieldType)
			} else if m.config.EnableAutoDetect {
				result[key] = m.autoMaskString(v)
			} else {
				result[key] = v
			}
		case map[string]interface{}:
			result[key] = m.MaskMap(v)
		case []interface{}:
			result[key] = m.maskSlice(v)
		default:
			result[key] = v
		}
	}

	return result
}

// AutoMaskString automatically detects and masks sensitive data in a string
func (m *Masker) AutoMaskString(text string) string {
	if !m.config.EnableAutoDetect {
		return text
	}
	return m.autoMaskString(text)
}

// AnnotatePII records which change record paths and metadata keys
// carry personal data. It runs once before an entry is chained; the
// annotations are covered by the entry hash.
func (m *Masker) AnnotatePII(e *audit.Entry) {
	if e == nil {
		return
	}
	seen := make(map[string]bool)
	var paths []string

	note := func(path string) {
		if !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}

	for _, c := range e.Changes {
		if c.Sensitive || IsSensitiveField(c.FieldPath) || m.detectFieldType(c.FieldPath) != FieldTypeGeneric {
			note(c.FieldPath)
		}
	}
	for key := range e.Metadata {
		if IsSensitiveField(key) || m.detectFieldType(key) != FieldTypeGeneric {
			note("metadata." + key)
		}
	}

	if len(paths) > 0 {
		sort.Strings(paths)
		e.ContainsPII = true
		e.PIIFields = paths
	}
}

// IsSensitiveField checks if a field name indicates sensitive data
func IsSensitiveField(fieldName string) bool {
	lowerName := strings.ToLower(fieldName)
	sensitiveKeywords := []string{
		"password", "passwd", "pwd", "secret", "token", "key",
		"ssn", "social_security", "credit_card", "creditcard", "cvv", "pin",
		"api_key", "bearer", "authorization",
	}

	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerName, keyword) {
			return true
		}
	}

	return false
}

// SanitizeForLogging sanitizes a value for safe logging
func SanitizeForLogging(value interface{}) interface{} {
	masker := NewMasker(DefaultMaskingConfig())

	switch v := value.(type) {
	case string:
		return masker.AutoMaskString(v)
	case map[string]interface{}:
		return masker.MaskMap(v)
	default:
		return value
	}
}
