// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidQuality is returned when a feedback quality score is outside its scale.
	ErrInvalidQuality = errors.New("invalid quality score")

	// ErrInvalidTransition is returned when a delivery cannot move to the requested status.
	ErrInvalidTransition = errors.New("invalid delivery status transition")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")
)

// ValidationError describes a single invalid field.
// It unwraps to the sentinel passed at construction, usually ErrValidation.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string, err error) *ValidationError {
	if err == nil {
		err = ErrValidation
	}
	return &ValidationError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return fmt.Sprintf("%s: %s %s", e.Err.Error(), e.Field, e.Message)
}

// Unwrap returns the wrapped sentinel to support errors.Is.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is lets every ValidationError match ErrValidation regardless of the wrapped sentinel.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
