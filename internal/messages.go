package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Append adds a message at the end of a session's log. The sequence is one
// past the current maximum, so values stay unique and increase in append order.
func (s *Store) Append(ctx context.Context, sessionID int64, role Role, content string) (*Message, error) {
	return s.appendMessage(ctx, sessionID, 0, role, content)
}

// AppendAfter behaves like Append but only succeeds while the anchor message
// still exists in the session. It returns ErrNotFound once the anchor's turn
// has been deleted, so late writes never land in a removed turn.
func (s *Store) AppendAfter(ctx context.Context, sessionID, anchorID int64, role Role, content string) (*Message, error) {
	if anchorID <= 0 {
		return nil, &ValidationError{Field: "anchor", Reason: "must be a message id"}
	}
	return s.appendMessage(ctx, sessionID, anchorID, role, content)
}

func (s *Store) appendMessage(ctx context.Context, sessionID, anchorID int64, role Role, content string) (*Message, error) {
	if !role.Valid() {
		return nil, &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	msg := &Message{SessionID: sessionID, Role: role, Content: content}
	err := s.withTx(ctx, "append", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE id = ?", sessionID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return &StorageError{Op: "append", Err: err}
		}

		if anchorID > 0 {
			err := tx.QueryRowContext(ctx,
				"SELECT 1 FROM messages WHERE id = ? AND session_id = ?", anchorID, sessionID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return &StorageError{Op: "append", Err: err}
			}
		}

		now := s.now()
		err = tx.QueryRowContext(ctx, `
			INSERT INTO messages (session_id, role, sequence, content, created_at)
			SELECT ?, ?, COALESCE(MAX(sequence), 0) + 1, ?, ? FROM messages WHERE session_id = ?
			RETURNING id, sequence`,
			sessionID, string(role), content, now, sessionID).Scan(&msg.ID, &msg.Sequence)
		if err != nil {
			return &StorageError{Op: "append", Err: err}
		}
		msg.CreatedAt = fromUnixNano(now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// UpdateContent replaces the content of a message in place. It reports false
// when the message no longer exists, which happens when its turn was deleted.
func (s *Store) UpdateContent(ctx context.Context, sessionID, messageID int64, content string) (bool, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET content = ? WHERE id = ? AND session_id = ?", content, messageID, sessionID)
	if err != nil {
		return false, &StorageError{Op: "update content", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &StorageError{Op: "update content", Err: err}
	}
	return n > 0, nil
}

// ListMessages returns a session's messages in ascending sequence order.
func (s *Store) ListMessages(ctx context.Context, sessionID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, role, sequence, content, created_at FROM messages WHERE session_id = ? ORDER BY sequence ASC",
		sessionID)
	if err != nil {
		return nil, &StorageError{Op: "list messages", Err: err}
	}
	defer rows.Close()

	msgs := make([]Message, 0)
	for rows.Next() {
		var (
			m         Message
			role      string
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Sequence, &m.Content, &createdAt); err != nil {
			return nil, &StorageError{Op: "list messages", Err: fmt.Errorf("scan failed: %w", err)}
		}
		m.Role = Role(role)
		m.CreatedAt = fromUnixNano(createdAt)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list messages", Err: fmt.Errorf("rows iteration error: %w", err)}
	}
	return msgs, nil
}

// CountMessages returns the number of messages in a session.
func (s *Store) CountMessages(ctx context.Context, sessionID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&n); err != nil {
		return 0, &StorageError{Op: "count messages", Err: err}
	}
	return n, nil
}

// MessageSession resolves the session holding messageID, provided owner owns it.
func (s *Store) MessageSession(ctx context.Context, owner OwnerKey, messageID int64) (int64, error) {
	if err := owner.Validate(); err != nil {
		return 0, err
	}
	where, arg := ownerClause(owner)
	var sessionID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT m.session_id FROM messages m JOIN sessions s ON s.id = m.session_id WHERE m.id = ? AND s."+where,
		messageID, arg).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, &StorageError{Op: "resolve message", Err: err}
	}
	return sessionID, nil
}

// DeleteTurn removes the turn that starts at messageID: the HUMAN message and
// everything after it up to, not including, the next HUMAN message. It
// returns the number of messages removed. Only HUMAN messages start a turn;
// any other target yields ErrNotHuman and leaves the log unchanged.
func (s *Store) DeleteTurn(ctx context.Context, sessionID, messageID int64) (int64, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var deleted int64
	err := s.withTx(ctx, "delete turn", func(tx *sql.Tx) error {
		var (
			role  string
			start int64
		)
		err := tx.QueryRowContext(ctx,
			"SELECT role, sequence FROM messages WHERE id = ? AND session_id = ?", messageID, sessionID).Scan(&role, &start)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return &StorageError{Op: "delete turn", Err: err}
		}
		if Role(role) != RoleHuman {
			return ErrNotHuman
		}

		var next sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			"SELECT MIN(sequence) FROM messages WHERE session_id = ? AND role = 'HUMAN' AND sequence > ?",
			sessionID, start).Scan(&next); err != nil {
			return &StorageError{Op: "delete turn", Err: err}
		}

		var res sql.Result
		if next.Valid {
			res, err = tx.ExecContext(ctx,
				"DELETE FROM messages WHERE session_id = ? AND sequence >= ? AND sequence < ?",
				sessionID, start, next.Int64)
		} else {
			res, err = tx.ExecContext(ctx,
				"DELETE FROM messages WHERE session_id = ? AND sequence >= ?", sessionID, start)
		}
		if err != nil {
			return &StorageError{Op: "delete turn", Err: err}
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
