package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	ErrNotInitialized     = errors.New("ccx not initialized: run 'ccx install' or create the registry first")
	ErrExtensionNotFound  = errors.New("extension not found")
	ErrAlreadyInstalled   = errors.New("extension already installed")
	ErrInvalidManifest    = errors.New("invalid extension manifest")
	ErrUnsafePath         = errors.New("unsafe archive entry path")
	ErrIncompatibleEngine = errors.New("extension does not support this claude-code version")
)

// ExtensionError wraps errors with extension context
type ExtensionError struct {
	ID  string
	Op  string
	Err error
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("extension %s: %s: %v", e.ID, e.Op, e.Err)
}

func (e *ExtensionError) Unwrap() error {
	return e.Err
}

// NewExtensionError creates a new extension error
func NewExtensionError(id, op string, err error) *ExtensionError {
	return &ExtensionError{ID: id, Op: op, Err: err}
}

// ValidationError carries every problem found in one pass over untrusted input.
type ValidationError struct {
	Subject string
	Issues  []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("%s: %s", e.Subject, e.Issues[0])
	}
	return fmt.Sprintf("%s: %d problems: %s", e.Subject, len(e.Issues), strings.Join(e.Issues, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidManifest
}

// NewValidationError creates a new validation error
func NewValidationError(subject string, issues []string) *ValidationError {
	return &ValidationError{Subject: subject, Issues: issues}
}

// PathError wraps errors with path context
type PathError struct {
	Path string
	Op   string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// NewPathError creates a new path error
func NewPathError(path, op string, err error) *PathError {
	return &PathError{Path: path, Op: op, Err: err}
}
