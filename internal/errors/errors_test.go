package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestExtensionErrorUnwrap(t *testing.T) {
	err := NewExtensionError("acme/tool", "install", ErrAlreadyInstalled)

	if !errors.Is(err, ErrAlreadyInstalled) {
		t.Errorf("errors.Is(%v, ErrAlreadyInstalled) = false, want true", err)
	}
	want := "extension acme/tool: install: extension already installed"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	single := NewValidationError("manifest", []string{"missing required field: name"})
	if got := single.Error(); got != "manifest: missing required field: name" {
		t.Errorf("Error() = %q", got)
	}

	multi := NewValidationError("manifest", []string{"a", "b"})
	if !strings.Contains(multi.Error(), "2 problems") {
		t.Errorf("Error() = %q, want problem count", multi.Error())
	}
	if !errors.Is(multi, ErrInvalidManifest) {
		t.Error("ValidationError should unwrap to ErrInvalidManifest")
	}
}

func TestPathError(t *testing.T) {
	err := NewPathError("../etc/passwd", "extract", ErrUnsafePath)
	if !errors.Is(err, ErrUnsafePath) {
		t.Error("PathError should unwrap to ErrUnsafePath")
	}
	if !strings.Contains(err.Error(), "../etc/passwd") {
		t.Errorf("Error() = %q, want path", err.Error())
	}
}
