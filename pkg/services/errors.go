package services

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the service layer. The HTTP layer maps
// these to status codes.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidInput  = errors.New("invalid input")

	// ErrCompilationInProgress is returned when an agent already has an
	// active compilation job.
	ErrCompilationInProgress = errors.New("a compilation is already in progress for this agent")
)

// ValidationError carries the failing field alongside the message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a field validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
