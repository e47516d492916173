package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const sessionColumns = "id, user_id, anon_token, title, rank, pinned, created_at"

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ownerClause returns the WHERE fragment and argument selecting owner's rows.
func ownerClause(owner OwnerKey) (string, any) {
	if owner.IsGuest() {
		return "anon_token = ?", owner.ID
	}
	return "user_id = ?", owner.ID
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s         Session
		userID    sql.NullString
		anonToken sql.NullString
		pinned    int
		createdAt int64
	)
	if err := row.Scan(&s.ID, &userID, &anonToken, &s.Title, &s.Rank, &pinned, &createdAt); err != nil {
		return nil, err
	}
	if userID.Valid {
		s.Owner = UserOwner(userID.String)
	} else {
		s.Owner = GuestOwner(anonToken.String)
	}
	s.Pinned = pinned != 0
	s.CreatedAt = fromUnixNano(createdAt)
	return &s, nil
}

// ListSessions returns owner's sessions, most prominent first.
func (s *Store) ListSessions(ctx context.Context, owner OwnerKey) ([]Session, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	where, arg := ownerClause(owner)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE "+where+
			" ORDER BY rank DESC, created_at DESC, id DESC", arg)
	if err != nil {
		return nil, &StorageError{Op: "list sessions", Err: err}
	}
	defer rows.Close()

	sessions := make([]Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, &StorageError{Op: "list sessions", Err: fmt.Errorf("scan failed: %w", err)}
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list sessions", Err: fmt.Errorf("rows iteration error: %w", err)}
	}
	return sessions, nil
}

// GetSession returns the session if owner owns it, ErrNotFound otherwise.
func (s *Store) GetSession(ctx context.Context, owner OwnerKey, id int64) (*Session, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	return getSession(ctx, s.db, owner, id)
}

func getSession(ctx context.Context, q queryer, owner OwnerKey, id int64) (*Session, error) {
	where, arg := ownerClause(owner)
	sess, err := scanSession(q.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = ? AND "+where, id, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get session", Err: err}
	}
	return sess, nil
}

func insertSession(ctx context.Context, q queryer, owner OwnerKey, title string, rank int, now int64) (*Session, error) {
	userID, anonToken := owner.columns()
	sess, err := scanSession(q.QueryRowContext(ctx,
		"INSERT INTO sessions (user_id, anon_token, title, rank, pinned, created_at) VALUES (?, ?, ?, ?, 0, ?) RETURNING "+sessionColumns,
		userID, anonToken, title, rank, now))
	if err != nil {
		return nil, &StorageError{Op: "create session", Err: err}
	}
	return sess, nil
}

func maxRank(ctx context.Context, q queryer, owner OwnerKey) (int, error) {
	where, arg := ownerClause(owner)
	var rank int
	if err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(rank), 0) FROM sessions WHERE "+where, arg).Scan(&rank); err != nil {
		return 0, err
	}
	return rank, nil
}

// SelectOrCreate returns the requested session when owner owns it, else the
// top-ranked session, else a freshly created one with rank 1.
// A requestedID <= 0 means no specific session was asked for.
func (s *Store) SelectOrCreate(ctx context.Context, owner OwnerKey, requestedID int64) (*Session, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	var selected *Session
	err := s.withTx(ctx, "select session", func(tx *sql.Tx) error {
		if requestedID > 0 {
			sess, err := getSession(ctx, tx, owner, requestedID)
			if err == nil {
				selected = sess
				return nil
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			LogDebug("Requested session %d not owned by %s, falling back", requestedID, owner)
		}

		where, arg := ownerClause(owner)
		sess, err := scanSession(tx.QueryRowContext(ctx,
			"SELECT "+sessionColumns+" FROM sessions WHERE "+where+
				" ORDER BY rank DESC, created_at DESC, id DESC LIMIT 1", arg))
		switch {
		case err == nil:
			selected = sess
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return &StorageError{Op: "select session", Err: err}
		}

		selected, err = insertSession(ctx, tx, owner, DefaultTitle(owner), 1, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return selected, nil
}

// CreateOrReuse implements "new chat". When the most recently created session
// has no messages it is reused, moved to the top if it is not already there.
// Otherwise a session is created above every existing one. The bool reports reuse.
func (s *Store) CreateOrReuse(ctx context.Context, owner OwnerKey) (*Session, bool, error) {
	if err := owner.Validate(); err != nil {
		return nil, false, err
	}

	var (
		result *Session
		reused bool
	)
	err := s.withTx(ctx, "create session", func(tx *sql.Tx) error {
		top, err := maxRank(ctx, tx, owner)
		if err != nil {
			return &StorageError{Op: "create session", Err: err}
		}

		where, arg := ownerClause(owner)
		recent, err := scanSession(tx.QueryRowContext(ctx,
			"SELECT "+sessionColumns+" FROM sessions WHERE "+where+
				" ORDER BY created_at DESC, id DESC LIMIT 1", arg))
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return &StorageError{Op: "create session", Err: err}
		}

		if recent != nil {
			var count int
			if err := tx.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM messages WHERE session_id = ?", recent.ID).Scan(&count); err != nil {
				return &StorageError{Op: "create session", Err: err}
			}
			if count == 0 {
				if recent.Rank < top {
					if _, err := tx.ExecContext(ctx,
						"UPDATE sessions SET rank = ? WHERE id = ?", top+1, recent.ID); err != nil {
						return &StorageError{Op: "create session", Err: err}
					}
					recent.Rank = top + 1
				}
				result, reused = recent, true
				return nil
			}
		}

		result, err = insertSession(ctx, tx, owner, NumberedTitle(owner, top+1), top+1, s.now())
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return result, reused, nil
}

// Rename sets the title of an owned session.
func (s *Store) Rename(ctx context.Context, owner OwnerKey, id int64, title string) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return &ValidationError{Field: "title", Reason: "empty"}
	}
	where, arg := ownerClause(owner)
	res, err := s.db.ExecContext(ctx, "UPDATE sessions SET title = ? WHERE id = ? AND "+where, title, id, arg)
	return affectedOne(res, err, "rename")
}

// TogglePin flips the pinned flag of an owned session and returns the new state.
func (s *Store) TogglePin(ctx context.Context, owner OwnerKey, id int64) (bool, error) {
	if err := owner.Validate(); err != nil {
		return false, err
	}
	where, arg := ownerClause(owner)
	var pinned int
	err := s.db.QueryRowContext(ctx,
		"UPDATE sessions SET pinned = 1 - pinned WHERE id = ? AND "+where+" RETURNING pinned", id, arg).Scan(&pinned)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, &StorageError{Op: "toggle pin", Err: err}
	}
	return pinned != 0, nil
}

// Reorder assigns rank N-i to the i-th id, where N is len(orderedIDs).
// Ids the owner does not own, and ids <= 0 (unparseable input), are skipped
// but still hold their position. All updates commit together.
func (s *Store) Reorder(ctx context.Context, owner OwnerKey, orderedIDs []int64) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	where, arg := ownerClause(owner)
	n := len(orderedIDs)

	return s.withTx(ctx, "reorder", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "UPDATE sessions SET rank = ? WHERE id = ? AND "+where)
		if err != nil {
			return &StorageError{Op: "reorder", Err: err}
		}
		defer stmt.Close()

		for i, id := range orderedIDs {
			if id <= 0 {
				continue
			}
			if _, err := stmt.ExecContext(ctx, n-i, id, arg); err != nil {
				return &StorageError{Op: "reorder", Err: err}
			}
		}
		return nil
	})
}

// Delete removes an owned session together with its messages.
func (s *Store) Delete(ctx context.Context, owner OwnerKey, id int64) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	where, arg := ownerClause(owner)
	return s.withTx(ctx, "delete session", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ? AND "+where, id, arg)
		if err := affectedOne(res, err, "delete session"); err != nil {
			return err
		}
		// The foreign key cascades as well; this keeps deletes correct on
		// connections opened without foreign_keys enabled.
		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", id); err != nil {
			return &StorageError{Op: "delete session", Err: err}
		}
		return nil
	})
}

// SetTitle overwrites a session's title without an ownership check. It is
// used by background enrichment, which already holds a validated session id.
func (s *Store) SetTitle(ctx context.Context, id int64, title string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE sessions SET title = ? WHERE id = ?", title, id)
	return affectedOne(res, err, "set title")
}

// Transcript returns an owned session with its ordered messages.
func (s *Store) Transcript(ctx context.Context, owner OwnerKey, id int64) (*Transcript, error) {
	sess, err := s.GetSession(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Transcript{Session: sess, Messages: msgs}, nil
}

func affectedOne(res sql.Result, err error, op string) error {
	if err != nil {
		return &StorageError{Op: op, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &StorageError{Op: op, Err: err}
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
