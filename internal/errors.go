package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both missing rows and rows owned by someone else.
	ErrNotFound = errors.New("not found or unauthorized")
	// ErrNotHuman is returned when a turn delete targets a non-HUMAN message.
	ErrNotHuman = errors.New("can only delete HUMAN messages")
)

// ValidationError represents input rejected before any mutation
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StorageError represents errors reading or writing the database
type StorageError struct {
	Op  string // "open", "migrate", "append", "reorder", ...
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// UpstreamEngineError represents a failure raised by the response engine mid-stream
type UpstreamEngineError struct {
	Err error
}

func (e *UpstreamEngineError) Error() string {
	return fmt.Sprintf("engine error: %v", e.Err)
}

func (e *UpstreamEngineError) Unwrap() error {
	return e.Err
}

// PersistenceError represents a failed checkpoint or finalize write
type PersistenceError struct {
	Op        string // "checkpoint", "finalize"
	MessageID int64
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error [%s] message %d: %v", e.Op, e.MessageID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// EnrichmentError represents a failed title derivation
type EnrichmentError struct {
	SessionID int64
	Err       error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrichment error [session %d]: %v", e.SessionID, e.Err)
}

func (e *EnrichmentError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err was caused by rejected input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
