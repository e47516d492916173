package internal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// MemoryDatabase is the path that opens a private in-memory database.
const MemoryDatabase = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT,
	anon_token TEXT,
	title      TEXT    NOT NULL,
	rank       INTEGER NOT NULL DEFAULT 1,
	pinned     INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	CHECK ((user_id IS NULL) <> (anon_token IS NULL))
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, rank DESC, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_anon ON sessions(anon_token, rank DESC, created_at DESC);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role       TEXT    NOT NULL CHECK (role IN ('HUMAN', 'AI', 'TOOL')),
	sequence   INTEGER NOT NULL,
	content    TEXT    NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	UNIQUE (session_id, sequence)
);
`

// OpenDatabase opens (creating if needed) a SQLite database in read-write
// mode and applies the schema. maxOpenConns <= 0 means one connection,
// which is also forced for in-memory databases so every query sees the same data.
func OpenDatabase(path string, maxOpenConns int) (*sql.DB, error) {
	if path == "" {
		return nil, &ValidationError{Field: "database path", Reason: "empty"}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxOpenConns <= 0 || path == MemoryDatabase {
		maxOpenConns = 1
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(0)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func dsn(path string) string {
	params := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != MemoryDatabase {
		params += "&_pragma=journal_mode(WAL)"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return &StorageError{Op: "migrate", Err: err}
	}
	return nil
}

// PingDatabase checks that the database answers and reports table row counts.
func PingDatabase(ctx context.Context, db *sql.DB) (sessions, messages int, err error) {
	if err := db.PingContext(ctx); err != nil {
		return 0, 0, fmt.Errorf("database ping failed: %w", err)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&sessions); err != nil {
		return 0, 0, fmt.Errorf("query failed: %w", err)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&messages); err != nil {
		return 0, 0, fmt.Errorf("query failed: %w", err)
	}
	return sessions, messages, nil
}
