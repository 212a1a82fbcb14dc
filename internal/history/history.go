// Package history provides a SQLite-backed log of searches. Each query run
// against a store is appended with its outcome so operators can review what
// was asked and how long it took. The log is persisted across server
// restarts.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Entry is one recorded query.
type Entry struct {
	// Query is the query text.
	Query string `json:"query"`
	// Store is the vector store key searched.
	Store string `json:"vector_store_id"`
	// TopK is the requested result count.
	TopK int `json:"top_k"`
	// TotalResults is the number of results returned.
	TotalResults int `json:"total_results"`
	// Error is the failure message; empty on success.
	Error string `json:"error,omitempty"`
	// Duration is how long the query took.
	Duration time.Duration `json:"-"`
	// DurationMS mirrors Duration for JSON output.
	DurationMS int64 `json:"duration_ms"`
	// CreatedAt is when the entry was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// Recorder persists and retrieves search history. Implementations must be
// safe for concurrent use.
type Recorder interface {
	// Append persists one entry.
	Append(ctx context.Context, e Entry) error
	// Recent returns up to n entries, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
	// Close releases any resources held by the recorder.
	Close() error
}

// SQLiteStore is a Recorder backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// now stamps new entries.
	now func() time.Time
}

var _ Recorder = (*SQLiteStore)(nil)

// Open opens (or creates) a SQLiteStore at the given path, creating its
// parent directory, and runs the schema migration. Use ":memory:" for an
// in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: create dir for %s: %w", path, err)
		}
	}
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS searches (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    query           TEXT    NOT NULL,
    vector_store_id TEXT    NOT NULL,
    top_k           INTEGER NOT NULL,
    total_results   INTEGER NOT NULL,
    error           TEXT    NOT NULL DEFAULT '',
    duration_ms     INTEGER NOT NULL,
    created_at      INTEGER NOT NULL  -- Unix timestamp (milliseconds)
);
CREATE INDEX IF NOT EXISTS idx_searches_store_created
    ON searches (vector_store_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Append persists one entry. CreatedAt is set by the store.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	const q = `INSERT INTO searches (query, vector_store_id, top_k, total_results, error, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, e.Query, e.Store, e.TopK, e.TotalResults, e.Error,
		e.Duration.Milliseconds(), s.now().UnixMilli()); err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	const q = `
SELECT query, vector_store_id, top_k, total_results, error, duration_ms, created_at
FROM   searches
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.Query, &e.Store, &e.TopK, &e.TotalResults, &e.Error, &e.DurationMS, &ts); err != nil {
			return nil, fmt.Errorf("history: recent scan: %w", err)
		}
		e.Duration = time.Duration(e.DurationMS) * time.Millisecond
		e.CreatedAt = time.UnixMilli(ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent rows: %w", err)
	}
	return out, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("history: close: %w", err)
	}
	return nil
}
