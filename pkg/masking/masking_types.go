package masking

// MaskingStrategy defines how data should be masked
type MaskingStrategy string

const (
	StrategyFull    MaskingStrategy = "full"    // Replace entire value with mask
	StrategyPartial MaskingStrategy = "partial" // Show first/last N chars, mask middle
	StrategyHash    MaskingStrategy = "hash"    // Replace with SHA-256 hash
	StrategyRedact  MaskingStrategy = "redact"  // Replace with the redaction marker
	StrategyNone    MaskingStrategy = "none"    // No masking
)

// RedactedValue is the marker anonymization writes over sensitive
// change values. Masking leaves it untouched.
const RedactedValue = "[REDACTED]"

// FieldType represents the type of sensitive data
type FieldType string

const (
	FieldTypeEmail      FieldType = "email"
	FieldTypePhone      FieldType = "phone"
	FieldTypeSSN        FieldType = "ssn"
	FieldTypeCreditCard FieldType = "credit_card"
	FieldTypePassword   FieldType = "password"
	FieldTypeAPIKey     FieldType = "api_key"
	FieldTypeIPAddress  FieldType = "ip_address"
	FieldTypeName       FieldType = "name"
	FieldTypeAddress    FieldType = "address"
	FieldTypeGeneric    FieldType = "generic"
)

// MaskingConfig holds configuration for data masking
type MaskingConfig struct {
	DefaultStrategy  MaskingStrategy
	FieldStrategies  map[FieldType]MaskingStrategy
	ShowFirstChars   int  // For partial masking
	ShowLastChars    int  // For partial masking
	MaskChar         rune // Character to use for masking
	EnableAutoDetect bool // Auto-detect sensitive values inside metadata strings
}

// DefaultMaskingConfig returns the masking defaults used for audit
// reads: partial redaction for contact and network identifiers, full
// masking for credentials.
func DefaultMaskingConfig() *MaskingConfig {
	return &MaskingConfig{
		DefaultStrategy: StrategyPartial,
		FieldStrategies: map[FieldType]MaskingStrategy{
			FieldTypePassword:   StrategyFull,
			FieldTypeAPIKey:     StrategyFull,
			FieldTypeSSN:        StrategyFull,
			FieldTypeCreditCard: StrategyPartial,
			FieldTypeEmail:      StrategyPartial,
			FieldTypePhone:      StrategyPartial,
			FieldTypeIPAddress:  StrategyPartial,
		},
		ShowFirstChars:   2,
		ShowLastChars:    4,
		MaskChar:         '*',
		EnableAutoDetect: true,
	}
}
