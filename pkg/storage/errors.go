package storage

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	ErrEntryNotFound   = errors.New("entry not found")
	ErrPolicyNotFound  = errors.New("policy not found")
	ErrArchiveNotFound = errors.New("archive not found")
	ErrStoreClosed     = errors.New("store is closed")
	ErrMarshalFailed   = errors.New("marshal failed")
)

// StoreError provides structured error information for store operations.
type StoreError struct {
	Op     string // Operation that failed (e.g., "AppendEntries", "SavePolicy")
	Entity string // Entity kind (e.g., "entry", "tombstone", "policy")
	ID     string // Entity ID (if applicable)
	Cause  error  // Underlying error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.ID, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target error matches this error or its cause.
func (e *StoreError) Is(target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(e.Cause, target)
}

func opErr(op, entity, id string, cause error) error {
	return &StoreError{Op: op, Entity: entity, ID: id, Cause: cause}
}

// IsNotFound reports whether the error is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrArchiveNotFound)
}
