package testutil

import (
	"testing"
	"time"

	"github.com/iksnae/chatrelay/internal"
)

// SeedConversation stores a session holding turns of [HUMAN, AI, TOOL?] and
// returns the session with its messages in order. Each turn is a question
// and answer; a non-empty tool string adds a TOOL message between them.
func SeedConversation(t *testing.T, store *internal.Store, owner internal.OwnerKey, turns ...[3]string) (*internal.Session, []internal.Message) {
	t.Helper()
	sess := MustSession(t, store, owner)
	for _, turn := range turns {
		MustAppend(t, store, sess.ID, internal.RoleHuman, turn[0])
		if turn[2] != "" {
			MustAppend(t, store, sess.ID, internal.RoleTool, turn[2])
		}
		MustAppend(t, store, sess.ID, internal.RoleAI, turn[1])
	}
	return sess, MustMessages(t, store, sess.ID)
}

// SampleTranscript returns an in-memory transcript for exporter tests.
func SampleTranscript() *internal.Transcript {
	created := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	return &internal.Transcript{
		Session: &internal.Session{
			ID:        12,
			Owner:     internal.UserOwner("42"),
			Title:     "Trip to Busan",
			Rank:      3,
			Pinned:    true,
			CreatedAt: created,
		},
		Messages: []internal.Message{
			{ID: 1, SessionID: 12, Role: internal.RoleHuman, Sequence: 1, Content: "What time is it in Busan?", CreatedAt: created},
			{ID: 2, SessionID: 12, Role: internal.RoleTool, Sequence: 2, Content: "Mon, 03 Feb 2025 13:05:06 KST", CreatedAt: created},
			{ID: 3, SessionID: 12, Role: internal.RoleAI, Sequence: 3, Content: "It is **1:05 PM** in Busan.", CreatedAt: created},
		},
	}
}
