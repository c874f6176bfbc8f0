package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clutter-sh/clutter/internal/schema"
)

// RegisterSymlink records a manually managed link. Re-registering the same
// link path replaces its target.
func (s *Store) RegisterSymlink(link *schema.Symlink) error {
	return s.RegisterSymlinkContext(context.Background(), link)
}

// RegisterSymlinkContext registers a symlink with context support.
func (s *Store) RegisterSymlinkContext(ctx context.Context, link *schema.Symlink) error {
	if err := link.Validate(); err != nil {
		return fmt.Errorf("invalid symlink: %w", err)
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO symlinks (symlink_path, target_path, created_at, last_verified)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symlink_path) DO UPDATE SET
			target_path = excluded.target_path,
			created_at = excluded.created_at,
			last_verified = NULL`,
		link.LinkPath, link.TargetPath,
		link.CreatedAt.Format(time.RFC3339), timeToNullString(link.LastVerified))
	if err != nil {
		return busyToConcurrent(fmt.Errorf("failed to register symlink: %w", err))
	}
	return nil
}

// TouchSymlink stamps a link as verified at the given time.
func (s *Store) TouchSymlink(ctx context.Context, linkPath string, verified time.Time) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE symlinks SET last_verified = ? WHERE symlink_path = ?`,
		verified.UTC().Format(time.RFC3339), linkPath)
	if err != nil {
		return busyToConcurrent(fmt.Errorf("failed to update symlink: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check symlink update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("symlink %q is not registered", linkPath)
	}
	return nil
}

// RemoveSymlink deletes a registered link. Removing an unknown link is not
// an error.
func (s *Store) RemoveSymlink(ctx context.Context, linkPath string) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM symlinks WHERE symlink_path = ?`, linkPath)
	if err != nil {
		return busyToConcurrent(fmt.Errorf("failed to remove symlink: %w", err))
	}
	return nil
}

// ListSymlinks returns all registered links ordered by link path.
func (s *Store) ListSymlinks(ctx context.Context) ([]*schema.Symlink, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT symlink_path, target_path, created_at, last_verified
		FROM symlinks ORDER BY symlink_path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list symlinks: %w", err)
	}
	defer rows.Close()

	var links []*schema.Symlink
	for rows.Next() {
		var l schema.Symlink
		var created string
		var verified sql.NullString
		if err := rows.Scan(&l.LinkPath, &l.TargetPath, &created, &verified); err != nil {
			return nil, fmt.Errorf("failed to scan symlink: %w", err)
		}
		t, err := time.Parse(time.RFC3339, created)
		if err != nil {
			return nil, fmt.Errorf("corrupt symlink timestamp: %w", err)
		}
		l.CreatedAt = t
		l.LastVerified = nullStringToTime(verified)
		links = append(links, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symlinks: %w", err)
	}
	return links, nil
}
