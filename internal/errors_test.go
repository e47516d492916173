package internal

import (
	"errors"
	"strings"
	"testing"
)

func TestStorageError(t *testing.T) {
	originalErr := errors.New("disk I/O error")
	err := &StorageError{Op: "append", Err: originalErr}

	errorMsg := err.Error()
	if !strings.Contains(errorMsg, "storage error") {
		t.Errorf("StorageError.Error() should contain 'storage error', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "append") {
		t.Errorf("StorageError.Error() should contain op, got: %q", errorMsg)
	}
	if !errors.Is(err, originalErr) {
		t.Error("StorageError.Unwrap() should return original error")
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "message", Reason: "empty"}
	if got := err.Error(); got != "invalid message: empty" {
		t.Errorf("ValidationError.Error() = %q", got)
	}
	if !IsValidation(err) {
		t.Error("IsValidation() should match a *ValidationError")
	}
	wrapped := errors.Join(errors.New("outer"), err)
	if !IsValidation(wrapped) {
		t.Error("IsValidation() should match a wrapped *ValidationError")
	}
	if IsValidation(ErrNotFound) {
		t.Error("IsValidation(ErrNotFound) = true, want false")
	}
}

func TestUpstreamEngineError(t *testing.T) {
	originalErr := errors.New("quota exceeded")
	err := &UpstreamEngineError{Err: originalErr}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("UpstreamEngineError.Error() = %q", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("UpstreamEngineError.Unwrap() should return original error")
	}
}

func TestPersistenceError(t *testing.T) {
	originalErr := errors.New("database is locked")
	err := &PersistenceError{Op: "checkpoint", MessageID: 42, Err: originalErr}
	msg := err.Error()
	if !strings.Contains(msg, "checkpoint") || !strings.Contains(msg, "42") {
		t.Errorf("PersistenceError.Error() = %q", msg)
	}
	if !errors.Is(err, originalErr) {
		t.Error("PersistenceError.Unwrap() should return original error")
	}
}

func TestEnrichmentError(t *testing.T) {
	originalErr := errors.New("timeout")
	err := &EnrichmentError{SessionID: 7, Err: originalErr}
	if !strings.Contains(err.Error(), "session 7") {
		t.Errorf("EnrichmentError.Error() = %q", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("EnrichmentError.Unwrap() should return original error")
	}
}

func TestExportError(t *testing.T) {
	originalErr := errors.New("write failed")
	err := &ExportError{Format: "jsonl", Path: "/tmp/out.jsonl", Err: originalErr}

	errorMsg := err.Error()
	if !strings.Contains(errorMsg, "export error") {
		t.Errorf("ExportError.Error() should contain 'export error', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "jsonl") {
		t.Errorf("ExportError.Error() should contain format, got: %q", errorMsg)
	}
	if !errors.Is(err, originalErr) {
		t.Error("ExportError.Unwrap() should return original error")
	}
}
