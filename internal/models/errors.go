package models

import (
	"errors"
	"fmt"
)

// ErrValidation is matched by every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation error")

// Sentinel errors for validation.
var (
	ErrEmptyContent     = errors.New("content is required")
	ErrOptionOutOfRange = errors.New("option index out of range")
	ErrMissingID        = errors.New("id is required")
	ErrInvalidKind      = errors.New("invalid block kind")
	ErrInvalidScope     = errors.New("invalid search scope")
)

// Sentinel errors for lookups and state transitions.
var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyAnswered      = errors.New("clarification already answered")
	ErrClarificationExpired = errors.New("clarification expired")
	ErrConflict             = errors.New("concurrent modification")
	ErrNotClaimed           = errors.New("processing claim no longer held")
	ErrEmptyFile            = errors.New("file is empty")
)

// ErrDuplicateKey indicates a unique constraint violation (maps to HTTP 409 Conflict).
var ErrDuplicateKey = errors.New("duplicate key")

// ValidationError reports invalid caller input. It is never retried.
type ValidationError struct {
	Field string
	Err   error
}

// NewValidationError wraps err as a validation failure on field.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}

	return e.Field + ": " + e.Err.Error()
}

// Unwrap exposes the underlying sentinel.
func (e *ValidationError) Unwrap() error { return e.Err }

// Is reports true for ErrValidation so callers can match the whole class.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ExternalServiceError wraps a failure from an embedding, completion, storage
// or extraction backend.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// StructuredOutputParseError is returned when a completion response cannot be
// decoded into the requested JSON shape.
type StructuredOutputParseError struct {
	Raw string
	Err error
}

func (e *StructuredOutputParseError) Error() string {
	return "parsing structured output: " + e.Err.Error()
}

func (e *StructuredOutputParseError) Unwrap() error { return e.Err }

// ErrFieldTooLong returns an error indicating a field exceeds its maximum length.
func ErrFieldTooLong(field string, maxLen int) error {
	return NewValidationError(field, fmt.Errorf("exceeds maximum length of %d", maxLen))
}
