package internal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists sessions and their message logs.
type Store struct {
	db    *sql.DB
	clock Clock
	locks *KeyedMutex[int64]
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the clock used for created_at timestamps.
func WithClock(c Clock) StoreOption {
	return func(s *Store) { s.clock = c }
}

// NewStore wraps an open database. The schema must already be applied,
// which OpenDatabase does.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:    db,
		clock: RealClock(),
		locks: NewKeyedMutex[int64](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenStore opens the database at path and returns a Store over it.
func OpenStore(path string, maxOpenConns int, opts ...StoreOption) (*Store, error) {
	db, err := OpenDatabase(path, maxOpenConns)
	if err != nil {
		return nil, err
	}
	return NewStore(db, opts...), nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) now() int64 {
	return s.clock.Now().UnixNano()
}

// withTx runs fn in a transaction, committing on nil and rolling back otherwise.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: op, Err: fmt.Errorf("begin: %w", err)}
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: op, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
