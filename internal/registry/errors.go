package registry

import (
	"errors"
	"fmt"
)

// RegistryError represents a registry operation error
type RegistryError struct {
	Op  string // operation
	ID  string // extension identifier
	Err error  // underlying error
}

func (e *RegistryError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// PersistError hides disk details behind a generic message; the cause is
// logged and still reachable through errors.Is/As.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return "failed to persist registry"
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Common errors
var (
	ErrNotFound        = errors.New("extension not found in registry")
	ErrInvalidID       = errors.New("extension id must be owner/name")
	ErrCorruptRegistry = errors.New("registry file is corrupt")
	ErrLockTimeout     = errors.New("lock acquisition timed out")
)
