package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidYAML marks a groundline.yaml that failed to parse.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrInvalidValue marks a field that failed validation.
	ErrInvalidValue = errors.New("invalid field value")
)

// LoadError attaches the offending file to a configuration error.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NewLoadError wraps err with file context.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}
