package validation

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// Validation constants
	MaxChangeRecords   = 200
	MaxFieldPathLength = 256
	MaxMetadataKeys    = 64
	MaxBatchSize       = 1000
	MinBatchSize       = 1

	// Regular expressions
	fieldPathPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*(\.[a-zA-Z0-9_-]+)*$`)
	idPattern        = regexp.MustCompile(`^[^\s]+$`)
)

func init() {
	validate = validator.New()
}

// ValidateStruct validates a struct using its validate tags and returns
// the first failure in a user-friendly format.
func ValidateStruct(s interface{}) error {
	if s == nil {
		return errors.New("value cannot be nil")
	}
	if err := validate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidateBatchSize validates the size of a batch record request.
func ValidateBatchSize(size int) error {
	if size < MinBatchSize {
		return fmt.Errorf("batch size must be at least %d, got %d", MinBatchSize, size)
	}
	if size > MaxBatchSize {
		return fmt.Errorf("batch size must not exceed %d, got %d", MaxBatchSize, size)
	}
	return nil
}

// ValidateFieldPath validates a dotted change record field path.
func ValidateFieldPath(path string) error {
	if path == "" {
		return errors.New("field path cannot be empty")
	}
	if len(path) > MaxFieldPathLength {
		return fmt.Errorf("field path '%s' exceeds maximum length of %d characters", path, MaxFieldPathLength)
	}
	if !fieldPathPattern.MatchString(path) {
		return fmt.Errorf("field path '%s' is invalid (dotted segments of letters, digits, underscore or hyphen)", path)
	}
	return nil
}

// ValidateID validates an actor or entity identifier.
func ValidateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s id cannot be empty", kind)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s id '%s' must not contain whitespace", kind, id)
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Field()
		tag := e.Tag()
		param := e.Param()

		switch tag {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of %s", field, param)
		case "dive":
			// For array elements
			return fmt.Errorf("%s: invalid element in array", field)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, tag)
		}
	}

	return err
}
