package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clutter-sh/clutter/internal/schema"
)

// UpsertFiles replaces index rows for the given records in one transaction.
// Existing rows for the same path are overwritten.
func (s *Store) UpsertFiles(ctx context.Context, records []*schema.FileRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return busyToConcurrent(fmt.Errorf("failed to begin index transaction: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (path, name, ext, size, mtime, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			ext = excluded.ext,
			size = excluded.size,
			mtime = excluded.mtime,
			indexed_at = excluded.indexed_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare index insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range records {
		indexed := now
		if !r.IndexedAt.IsZero() {
			indexed = r.IndexedAt.UTC().Format(time.RFC3339)
		}
		if _, err := stmt.ExecContext(ctx, r.Path, r.Name, r.Ext, r.Size, r.ModTime, indexed); err != nil {
			return busyToConcurrent(fmt.Errorf("failed to index %s: %w", r.Path, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return busyToConcurrent(fmt.Errorf("failed to commit index transaction: %w", err))
	}
	return nil
}

// PruneFilesUnder removes index rows for paths below root that are not in
// the keep set. Used after a rescan to drop entries for deleted files.
func (s *Store) PruneFilesUnder(ctx context.Context, root string, keep map[string]bool) (int64, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, path FROM files WHERE path LIKE ? ESCAPE '\'`, likePrefix(root))
	if err != nil {
		return 0, fmt.Errorf("failed to scan index for pruning: %w", err)
	}
	var stale []int64
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan index row: %w", err)
		}
		if !keep[path] {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("error iterating index rows: %w", err)
	}
	rows.Close()

	var pruned int64
	for _, id := range stale {
		res, err := s.conn.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
		if err != nil {
			return pruned, busyToConcurrent(fmt.Errorf("failed to prune index row: %w", err))
		}
		n, _ := res.RowsAffected()
		pruned += n
	}
	return pruned, nil
}

// ClearFiles drops every row from the file index. The per-row delete
// trigger keeps the FTS table in sync.
func (s *Store) ClearFiles(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM files`)
	if err != nil {
		return 0, busyToConcurrent(fmt.Errorf("failed to clear index: %w", err))
	}
	cleared, _ := res.RowsAffected()
	return cleared, nil
}

// SearchFiles performs a full-text search over the index, falling back to a
// LIKE scan when the FTS5 extension is unavailable.
func (s *Store) SearchFiles(ctx context.Context, query string, limit int) ([]*schema.FileRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT f.id, f.path, f.name, f.ext, f.size, f.mtime, f.indexed_at
		FROM files_fts t JOIN files f ON f.id = t.rowid
		WHERE files_fts MATCH ?
		ORDER BY rank LIMIT ?`, query, limit)
	if err != nil {
		return s.searchFilesLike(ctx, query, limit)
	}
	defer rows.Close()
	return scanFileRows(rows)
}

// searchFilesLike is the degraded search path for builds without FTS5.
func (s *Store) searchFilesLike(ctx context.Context, query string, limit int) ([]*schema.FileRecord, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, path, name, ext, size, mtime, indexed_at
		FROM files
		WHERE name LIKE ? ESCAPE '\' OR path LIKE ? ESCAPE '\'
		ORDER BY mtime DESC LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	defer rows.Close()
	return scanFileRows(rows)
}

// RecentFiles returns the most recently modified indexed files.
func (s *Store) RecentFiles(ctx context.Context, limit int) ([]*schema.FileRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, path, name, ext, size, mtime, indexed_at
		FROM files ORDER BY mtime DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent files: %w", err)
	}
	defer rows.Close()
	return scanFileRows(rows)
}

// IndexStats summarizes the state of the filename index.
type IndexStats struct {
	TotalFiles int64
	TotalSize  int64
	ByExt      map[string]int64
	LastScan   *time.Time
}

// FileStats aggregates counts and sizes across the whole index.
func (s *Store) FileStats(ctx context.Context) (*IndexStats, error) {
	stats := &IndexStats{ByExt: make(map[string]int64)}

	row := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0), MAX(indexed_at) FROM files`)
	var last sql.NullString
	if err := row.Scan(&stats.TotalFiles, &stats.TotalSize, &last); err != nil {
		return nil, fmt.Errorf("failed to read index stats: %w", err)
	}
	stats.LastScan = nullStringToTime(last)

	rows, err := s.conn.QueryContext(ctx, `
		SELECT COALESCE(ext, ''), COUNT(*) FROM files
		GROUP BY ext ORDER BY COUNT(*) DESC LIMIT 20`)
	if err != nil {
		return nil, fmt.Errorf("failed to read extension stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ext string
		var n int64
		if err := rows.Scan(&ext, &n); err != nil {
			return nil, fmt.Errorf("failed to scan extension stats: %w", err)
		}
		stats.ByExt[ext] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating extension stats: %w", err)
	}
	return stats, nil
}

func scanFileRows(rows rowIterator) ([]*schema.FileRecord, error) {
	var records []*schema.FileRecord
	for rows.Next() {
		var r schema.FileRecord
		var indexed string
		if err := rows.Scan(&r.ID, &r.Path, &r.Name, &r.Ext, &r.Size, &r.ModTime, &indexed); err != nil {
			return nil, fmt.Errorf("failed to scan file record: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, indexed); err == nil {
			r.IndexedAt = t
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file records: %w", err)
	}
	return records, nil
}

// rowIterator is the subset of *sql.Rows the scanners need.
type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// likePrefix builds an escaped LIKE pattern matching everything under root.
func likePrefix(root string) string {
	return escapeLike(root) + "%"
}

// escapeLike escapes LIKE metacharacters with a backslash.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
