// Package store provides the durable registry shared by every clutter
// process.
//
// The registry is an embedded SQLite database (ncruces/go-sqlite3) opened
// in WAL mode. It is the single coordination point between short-lived CLI
// invocations and the long-lived watcher daemon: there is no in-memory
// shared state, so every mutation is a read-modify-write transaction.
//
// Tables:
//   - tracked_items: one record per alias (the registry proper)
//   - changes:       append-only change log
//   - symlinks:      manually tracked symlinks (link command, verify pass)
//   - files:         the file index filled by scan, queried by find/stats
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clutter-sh/clutter/internal/schema"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// busyTimeout bounds how long SQLite waits on a competing writer before
// surfacing SQLITE_BUSY, which we map to ErrConcurrentModification.
const busyTimeout = 5 * time.Second

// Store wraps the registry database connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the registry at the given path.
//
// The caller MUST call Close() when done. WAL mode allows concurrent
// readers while a writer holds the store lock.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.conn.Exec(p); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return s, nil
}

// RawDB returns the underlying sql.DB connection for consumers (the file
// index) that run their own queries.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// InitSchema creates all tables and indexes. Idempotent.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS tracked_items (
		alias TEXT PRIMARY KEY,
		original_path TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		ever_pulled INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		last_pulled_at TEXT,
		last_committed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_items_path ON tracked_items(original_path);
	CREATE INDEX IF NOT EXISTS idx_items_status ON tracked_items(status);

	CREATE TABLE IF NOT EXISTS changes (
		id INTEGER PRIMARY KEY,
		timestamp TEXT NOT NULL,
		alias TEXT NOT NULL,
		action TEXT NOT NULL,
		outcome TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_changes_ts ON changes(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_changes_alias ON changes(alias);

	CREATE TABLE IF NOT EXISTS symlinks (
		symlink_path TEXT PRIMARY KEY,
		target_path TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_verified TEXT
	);

	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY,
		path TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		ext TEXT,
		size INTEGER,
		mtime REAL,
		indexed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_files_name ON files(name);
	CREATE INDEX IF NOT EXISTS idx_files_ext ON files(ext);
	CREATE INDEX IF NOT EXISTS idx_files_mtime ON files(mtime DESC);
	`

	if _, err := s.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	// FTS5 is optional: older builds without the extension fall back to
	// LIKE queries in the index package.
	fts := `
	CREATE VIRTUAL TABLE IF NOT EXISTS files_fts
	USING fts5(name, path, content='files', content_rowid='id');
	CREATE TRIGGER IF NOT EXISTS files_ai AFTER INSERT ON files
	BEGIN
		INSERT INTO files_fts(rowid, name, path) VALUES (new.id, new.name, new.path);
	END;
	CREATE TRIGGER IF NOT EXISTS files_ad AFTER DELETE ON files
	BEGIN
		DELETE FROM files_fts WHERE rowid = old.id;
	END;
	`
	if _, err := s.conn.ExecContext(ctx, fts); err != nil {
		if !strings.Contains(strings.ToLower(err.Error()), "fts5") {
			return fmt.Errorf("failed to create search index: %w", err)
		}
	}

	return nil
}

// busyToConcurrent maps SQLITE_BUSY style failures to the typed
// concurrency error so callers can retry.
func busyToConcurrent(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy") {
		return fmt.Errorf("%w: %v", schema.ErrConcurrentModification, err)
	}
	return err
}

// timeToNullString converts an optional time for SQL storage.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// nullStringToTime converts a nullable SQL string back to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
