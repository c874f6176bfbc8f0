package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clutter-sh/clutter/internal/schema"
)

// AppendChange records one entry in the append-only change log. The core
// only ever appends; rows are never updated or deleted.
func (s *Store) AppendChange(entry *schema.ChangeEntry) error {
	return s.AppendChangeContext(context.Background(), entry)
}

// AppendChangeContext appends a change entry with context support.
func (s *Store) AppendChangeContext(ctx context.Context, entry *schema.ChangeEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid change entry: %w", err)
	}

	_, err := s.conn.ExecContext(ctx, `
	INSERT INTO changes (timestamp, alias, action, outcome)
	VALUES (?, ?, ?, ?)
	`,
		entry.Timestamp.UTC().Format(time.RFC3339),
		entry.Alias,
		string(entry.Action),
		entry.Outcome,
	)
	if err != nil {
		return busyToConcurrent(fmt.Errorf("failed to append change: %w", err))
	}
	return nil
}

// ChangesFilter configures RecentChanges.
type ChangesFilter struct {
	// Alias restricts to one alias (empty = all).
	Alias string
	// Since drops entries older than the given time (zero = no cutoff).
	Since time.Time
	// Limit restricts the number of results (0 = 50).
	Limit int
}

// RecentChanges returns change-log entries newest-first.
func (s *Store) RecentChanges(ctx context.Context, filter ChangesFilter) ([]*schema.ChangeEntry, error) {
	query := `
	SELECT id, timestamp, alias, action, outcome
	FROM changes
	`
	var conditions []string
	var args []any

	if filter.Alias != "" {
		conditions = append(conditions, "alias = ?")
		args = append(args, filter.Alias)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	var entries []*schema.ChangeEntry
	for rows.Next() {
		var e schema.ChangeEntry
		var ts, action string
		if err := rows.Scan(&e.ID, &ts, &e.Alias, &action, &e.Outcome); err != nil {
			return nil, fmt.Errorf("failed to scan change entry: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			e.Timestamp = t
		}
		e.Action = schema.ChangeAction(action)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating changes: %w", err)
	}
	return entries, nil
}
