package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/iksnae/chatrelay/internal"
)

// Epoch is the start time of every fake clock handed out by this package.
var Epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// CreateInMemoryStore opens a migrated in-memory store driven by a fake clock.
// The store is closed when the test ends.
func CreateInMemoryStore(t *testing.T) (*internal.Store, *internal.FakeClock) {
	t.Helper()
	clock := internal.NewFakeClock(Epoch)
	store, err := internal.OpenStore(internal.MemoryDatabase, 1, internal.WithClock(clock))
	if err != nil {
		t.Fatalf("Failed to create in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

// CreateFileStore opens a migrated store backed by a file in a temp dir and
// returns it with the database path.
func CreateFileStore(t *testing.T) (*internal.Store, string) {
	t.Helper()
	path := TempDBPath(t)
	store, err := internal.OpenStore(path, 1)
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

// MustSession creates a fresh session for owner.
func MustSession(t *testing.T, store *internal.Store, owner internal.OwnerKey) *internal.Session {
	t.Helper()
	sess, _, err := store.CreateOrReuse(context.Background(), owner)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return sess
}

// MustAppend appends a message and fails the test on error.
func MustAppend(t *testing.T, store *internal.Store, sessionID int64, role internal.Role, content string) *internal.Message {
	t.Helper()
	msg, err := store.Append(context.Background(), sessionID, role, content)
	if err != nil {
		t.Fatalf("Failed to append %s message: %v", role, err)
	}
	return msg
}

// MustMessages lists a session's messages and fails the test on error.
func MustMessages(t *testing.T, store *internal.Store, sessionID int64) []internal.Message {
	t.Helper()
	msgs, err := store.ListMessages(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Failed to list messages: %v", err)
	}
	return msgs
}
