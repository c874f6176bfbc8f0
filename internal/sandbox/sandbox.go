// Package sandbox implements the copy-on-demand working-copy lifecycle:
// track, pull, commit, untrack, and the restore used by ghost recovery.
//
// Every operation runs under the per-alias file lock for its whole
// duration, so independent processes racing on the same alias serialize
// instead of interleaving. Destructive copies are always preceded by a
// snapshot, and a failing snapshot aborts the operation before anything
// live is touched.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/clutter-sh/clutter/internal/fsutil"
	"github.com/clutter-sh/clutter/internal/lock"
	"github.com/clutter-sh/clutter/internal/refs"
	"github.com/clutter-sh/clutter/internal/schema"
	"github.com/clutter-sh/clutter/internal/snapshot"
	"github.com/clutter-sh/clutter/internal/store"
	"github.com/clutter-sh/clutter/internal/version"
)

// Manager wires the registry, reference layer, snapshot store, and lock
// manager into the sandbox lifecycle operations.
type Manager struct {
	store *store.Store
	refs  *refs.Manager
	snaps *snapshot.Store
	locks *lock.Manager
	dir   string
}

// NewManager returns a sandbox manager. dir is the directory that holds
// one sandbox subdirectory per alias.
func NewManager(st *store.Store, rm *refs.Manager, ss *snapshot.Store, lm *lock.Manager, dir string) *Manager {
	return &Manager{store: st, refs: rm, snaps: ss, locks: lm, dir: dir}
}

// Dir returns the sandbox directory for an alias.
func (m *Manager) Dir(alias string) string {
	return filepath.Join(m.dir, alias)
}

// markerPath returns the marker file path inside the sandbox for alias.
func (m *Manager) markerPath(alias string) string {
	return filepath.Join(m.Dir(alias), schema.MarkerName)
}

// Track registers path under alias. The sandbox is created holding only
// its marker record; no content is copied until the first pull.
func (m *Manager) Track(ctx context.Context, alias, path string) (*schema.TrackedItem, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("path %q: %w", abs, schema.ErrOriginalMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %q: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path %q is not a directory", abs)
	}

	item := &schema.TrackedItem{
		Alias:        alias,
		OriginalPath: abs,
		Status:       schema.StatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	err = m.locks.WithAlias(alias, func() error {
		if err := m.store.CreateItemContext(ctx, item); err != nil {
			return err
		}
		if err := m.initSandbox(item); err != nil {
			// Roll the record back so a failed track leaves nothing.
			if rmErr := m.store.RemoveItemContext(ctx, alias); rmErr != nil {
				return fmt.Errorf("%w (registry cleanup also failed: %v)", err, rmErr)
			}
			return err
		}
		if err := m.refs.Create(alias, abs); err != nil {
			return err
		}
		return m.logChange(ctx, alias, schema.ActionTrack, "tracked "+abs)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// initSandbox creates the empty sandbox directory with its marker.
func (m *Manager) initSandbox(item *schema.TrackedItem) error {
	dir := m.Dir(item.Alias)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create sandbox for %q: %w", item.Alias, err)
	}
	marker := &schema.SandboxMarker{
		Alias:        item.Alias,
		OriginalPath: item.OriginalPath,
		CreatedAt:    item.CreatedAt,
		Version:      version.Version,
	}
	return marker.WriteMarker(m.markerPath(item.Alias))
}

// Pull materializes the original into the sandbox. Prior sandbox content
// beyond the marker is snapshotted as pre_pull and then replaced, never
// silently discarded. The original is only read.
func (m *Manager) Pull(ctx context.Context, alias string) (*schema.TrackedItem, error) {
	var out *schema.TrackedItem
	err := m.locks.WithAlias(alias, func() error {
		item, err := m.store.GetItemContext(ctx, alias)
		if err != nil {
			return err
		}
		if _, err := os.Stat(item.OriginalPath); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("original %q: %w", item.OriginalPath, schema.ErrOriginalMissing)
		} else if err != nil {
			return fmt.Errorf("failed to stat original %q: %w", item.OriginalPath, err)
		}

		dir := m.Dir(alias)
		hasContent, err := fsutil.DirHasContent(dir, schema.MarkerName)
		if err != nil {
			return fmt.Errorf("failed to inspect sandbox for %q: %w", alias, err)
		}
		if hasContent {
			if _, err := m.snaps.Take(alias, schema.KindPrePull, dir); err != nil {
				return err
			}
			if err := fsutil.ClearDir(dir); err != nil {
				return fmt.Errorf("failed to clear sandbox for %q: %w", alias, err)
			}
		}

		if err := fsutil.CopyTree(item.OriginalPath, dir); err != nil {
			return fmt.Errorf("failed to copy original into sandbox for %q: %w", alias, err)
		}

		now := time.Now().UTC()
		marker := &schema.SandboxMarker{
			Alias:        alias,
			OriginalPath: item.OriginalPath,
			CreatedAt:    item.CreatedAt,
			PulledAt:     &now,
			Version:      version.Version,
		}
		if err := marker.WriteMarker(m.markerPath(alias)); err != nil {
			return err
		}

		item.EverPulled = true
		item.LastPulledAt = &now
		if err := m.store.UpdateItemContext(ctx, item); err != nil {
			return err
		}
		out = item
		return m.logChange(ctx, alias, schema.ActionPull, "pulled from "+item.OriginalPath)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Commit merges sandbox content back into the original. Every sandbox
// file overwrites or creates its counterpart; files present only in the
// original are left alone, so an accidental deletion in the working copy
// never propagates. A pre_commit snapshot of the original must succeed
// before any byte of the original changes.
func (m *Manager) Commit(ctx context.Context, alias string) (*schema.TrackedItem, error) {
	var out *schema.TrackedItem
	err := m.locks.WithAlias(alias, func() error {
		item, err := m.store.GetItemContext(ctx, alias)
		if err != nil {
			return err
		}
		if _, err := os.Stat(item.OriginalPath); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("original %q: %w", item.OriginalPath, schema.ErrOriginalMissing)
		} else if err != nil {
			return fmt.Errorf("failed to stat original %q: %w", item.OriginalPath, err)
		}

		dir := m.Dir(alias)
		hasContent, err := fsutil.DirHasContent(dir, schema.MarkerName)
		if err != nil {
			return fmt.Errorf("failed to inspect sandbox for %q: %w", alias, err)
		}
		if !hasContent {
			return fmt.Errorf("alias %q: %w", alias, schema.ErrEmptySandbox)
		}

		if _, err := m.snaps.Take(alias, schema.KindPreCommit, item.OriginalPath); err != nil {
			return err
		}

		if err := mergeOverwrite(dir, item.OriginalPath); err != nil {
			return fmt.Errorf("failed to merge sandbox for %q: %w", alias, err)
		}

		now := time.Now().UTC()
		item.LastCommittedAt = &now
		if err := m.store.UpdateItemContext(ctx, item); err != nil {
			return err
		}
		out = item
		return m.logChange(ctx, alias, schema.ActionCommit, "committed to "+item.OriginalPath)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Untrack removes the registry record, the reference, and the sandbox.
// Snapshots are retained for audit.
func (m *Manager) Untrack(ctx context.Context, alias string) error {
	return m.locks.WithAlias(alias, func() error {
		if _, err := m.store.GetItemContext(ctx, alias); err != nil {
			return err
		}
		if err := m.refs.Remove(alias); err != nil {
			return err
		}
		if err := os.RemoveAll(m.Dir(alias)); err != nil {
			return fmt.Errorf("failed to remove sandbox for %q: %w", alias, err)
		}
		if err := m.store.RemoveItemContext(ctx, alias); err != nil {
			return err
		}
		return m.logChange(ctx, alias, schema.ActionUntrack, "untracked")
	})
}

// Restore recreates the original from the sandbox after a delete event.
// Used by ghost recovery; the caller already holds the alias decision,
// so this takes the file lock itself like every other mutation.
func (m *Manager) Restore(ctx context.Context, alias string) (*schema.TrackedItem, error) {
	var out *schema.TrackedItem
	err := m.locks.WithAlias(alias, func() error {
		item, err := m.store.GetItemContext(ctx, alias)
		if err != nil {
			return err
		}
		if !item.EverPulled {
			return fmt.Errorf("alias %q: %w", alias, schema.ErrGhostUnrecoverable)
		}

		dir := m.Dir(alias)
		if err := copyWithoutMarker(dir, item.OriginalPath); err != nil {
			return fmt.Errorf("failed to restore original for %q: %w", alias, err)
		}
		if err := m.refs.Repair(alias, item.OriginalPath); err != nil {
			return err
		}

		item.Status = schema.StatusActive
		if err := m.store.UpdateItemContext(ctx, item); err != nil {
			return err
		}
		out = item
		return m.logChange(ctx, alias, schema.ActionRestore, "restored "+item.OriginalPath)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HasContent reports whether the sandbox for alias holds anything beyond
// its marker.
func (m *Manager) HasContent(alias string) (bool, error) {
	return fsutil.DirHasContent(m.Dir(alias), schema.MarkerName)
}

// Marker reads the sandbox marker for alias.
func (m *Manager) Marker(alias string) (*schema.SandboxMarker, error) {
	return schema.ReadMarker(m.markerPath(alias))
}

// logChange appends to the change log. Change logging is best-effort
// bookkeeping on top of an already-committed operation.
func (m *Manager) logChange(ctx context.Context, alias string, action schema.ChangeAction, outcome string) error {
	return m.store.AppendChangeContext(ctx, &schema.ChangeEntry{
		Alias:   alias,
		Action:  action,
		Outcome: outcome,
	})
}

// mergeOverwrite copies every file and symlink under src into dst at the
// same relative path, creating directories as needed. Nothing in dst is
// ever deleted. The sandbox marker is skipped.
func mergeOverwrite(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if rel == schema.MarkerName {
			return nil
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)
		default:
			return fsutil.CopyFile(path, target, info)
		}
	})
}

// copyWithoutMarker copies the sandbox tree to dst, omitting the marker.
// dst is created if missing.
func copyWithoutMarker(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return mergeOverwrite(src, dst)
}
