package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clutter-sh/clutter/internal/schema"
)

// CreateItem inserts a new Active tracked item. Fails with
// schema.ErrDuplicateAlias if the alias exists; the existing record is
// left untouched.
func (s *Store) CreateItem(item *schema.TrackedItem) error {
	return s.CreateItemContext(context.Background(), item)
}

// CreateItemContext inserts a tracked item with context support.
func (s *Store) CreateItemContext(ctx context.Context, item *schema.TrackedItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid tracked item: %w", err)
	}

	query := `
	INSERT INTO tracked_items (
		alias, original_path, status, ever_pulled,
		created_at, last_pulled_at, last_committed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.ExecContext(ctx, query,
		item.Alias,
		item.OriginalPath,
		string(item.Status),
		boolToInt(item.EverPulled),
		item.CreatedAt.UTC().Format(time.RFC3339),
		timeToNullString(item.LastPulledAt),
		timeToNullString(item.LastCommittedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("alias %q: %w", item.Alias, schema.ErrDuplicateAlias)
		}
		return busyToConcurrent(fmt.Errorf("failed to insert tracked item: %w", err))
	}
	return nil
}

// GetItem retrieves a tracked item by alias. Fails with
// schema.ErrUnknownAlias if absent.
func (s *Store) GetItem(alias string) (*schema.TrackedItem, error) {
	return s.GetItemContext(context.Background(), alias)
}

// GetItemContext retrieves a tracked item with context support.
func (s *Store) GetItemContext(ctx context.Context, alias string) (*schema.TrackedItem, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT alias, original_path, status, ever_pulled,
	       created_at, last_pulled_at, last_committed_at
	FROM tracked_items
	WHERE alias = ?
	`, alias)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("alias %q: %w", alias, schema.ErrUnknownAlias)
		}
		return nil, err
	}
	return item, nil
}

// GetItemByPath retrieves a tracked item by its original path. Used by the
// watcher to map a filesystem event back to an alias.
func (s *Store) GetItemByPath(ctx context.Context, path string) (*schema.TrackedItem, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT alias, original_path, status, ever_pulled,
	       created_at, last_pulled_at, last_committed_at
	FROM tracked_items
	WHERE original_path = ?
	`, path)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("path %q: %w", path, schema.ErrUnknownAlias)
		}
		return nil, err
	}
	return item, nil
}

// UpdateItem persists a mutated record. The write is all-or-nothing and
// goes through an immediate transaction so two racing processes cannot
// interleave half-updates.
func (s *Store) UpdateItem(item *schema.TrackedItem) error {
	return s.UpdateItemContext(context.Background(), item)
}

// UpdateItemContext persists a mutated record with context support.
func (s *Store) UpdateItemContext(ctx context.Context, item *schema.TrackedItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid tracked item: %w", err)
	}

	res, err := s.conn.ExecContext(ctx, `
	UPDATE tracked_items SET
		original_path = ?,
		status = ?,
		ever_pulled = ?,
		last_pulled_at = ?,
		last_committed_at = ?
	WHERE alias = ?
	`,
		item.OriginalPath,
		string(item.Status),
		boolToInt(item.EverPulled),
		timeToNullString(item.LastPulledAt),
		timeToNullString(item.LastCommittedAt),
		item.Alias,
	)
	if err != nil {
		return busyToConcurrent(fmt.Errorf("failed to update tracked item: %w", err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("alias %q: %w", item.Alias, schema.ErrUnknownAlias)
	}
	return nil
}

// RemoveItem deletes the record for alias. Fails with
// schema.ErrUnknownAlias if absent.
func (s *Store) RemoveItem(alias string) error {
	return s.RemoveItemContext(context.Background(), alias)
}

// RemoveItemContext deletes a record with context support.
func (s *Store) RemoveItemContext(ctx context.Context, alias string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM tracked_items WHERE alias = ?`, alias)
	if err != nil {
		return busyToConcurrent(fmt.Errorf("failed to delete tracked item: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("alias %q: %w", alias, schema.ErrUnknownAlias)
	}
	return nil
}

// ListItems returns all tracked items ordered by alias.
func (s *Store) ListItems(ctx context.Context) ([]*schema.TrackedItem, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT alias, original_path, status, ever_pulled,
	       created_at, last_pulled_at, last_committed_at
	FROM tracked_items
	ORDER BY alias ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked items: %w", err)
	}
	defer rows.Close()

	var items []*schema.TrackedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracked items: %w", err)
	}
	return items, nil
}

// Mutate runs a read-modify-write cycle for one alias inside an immediate
// transaction, so competing writers block (bounded by busy_timeout) until
// the whole cycle commits. fn may mutate the loaded item in place;
// returning a nil item from fn deletes the record.
func (s *Store) Mutate(ctx context.Context, alias string, fn func(*schema.TrackedItem) (*schema.TrackedItem, error)) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return busyToConcurrent(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	// Escalate to a write lock before reading so the read half of the
	// cycle cannot be invalidated by a racing writer (BEGIN IMMEDIATE
	// semantics; the UPDATE is a no-op on content).
	if _, err := tx.ExecContext(ctx, `UPDATE tracked_items SET alias = alias WHERE alias = ?`, alias); err != nil {
		return busyToConcurrent(fmt.Errorf("failed to take write lock: %w", err))
	}

	row := tx.QueryRowContext(ctx, `
	SELECT alias, original_path, status, ever_pulled,
	       created_at, last_pulled_at, last_committed_at
	FROM tracked_items
	WHERE alias = ?
	`, alias)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("alias %q: %w", alias, schema.ErrUnknownAlias)
		}
		return err
	}

	updated, err := fn(item)
	if err != nil {
		return err
	}

	if updated == nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tracked_items WHERE alias = ?`, alias); err != nil {
			return busyToConcurrent(fmt.Errorf("failed to delete tracked item: %w", err))
		}
	} else {
		if err := updated.Validate(); err != nil {
			return fmt.Errorf("invalid tracked item: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
		UPDATE tracked_items SET
			original_path = ?, status = ?, ever_pulled = ?,
			last_pulled_at = ?, last_committed_at = ?
		WHERE alias = ?
		`,
			updated.OriginalPath,
			string(updated.Status),
			boolToInt(updated.EverPulled),
			timeToNullString(updated.LastPulledAt),
			timeToNullString(updated.LastCommittedAt),
			alias,
		); err != nil {
			return busyToConcurrent(fmt.Errorf("failed to update tracked item: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return busyToConcurrent(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanItem reads one tracked item from a row.
func scanItem(row rowScanner) (*schema.TrackedItem, error) {
	var item schema.TrackedItem
	var status, createdAt string
	var everPulled int
	var lastPulled, lastCommitted sql.NullString

	err := row.Scan(
		&item.Alias,
		&item.OriginalPath,
		&status,
		&everPulled,
		&createdAt,
		&lastPulled,
		&lastCommitted,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan tracked item: %w", err)
	}

	item.Status = schema.ItemStatus(status)
	item.EverPulled = everPulled != 0
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		item.CreatedAt = t
	}
	item.LastPulledAt = nullStringToTime(lastPulled)
	item.LastCommittedAt = nullStringToTime(lastCommitted)

	return &item, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation reports whether err is a primary-key/unique failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint violation")
}
