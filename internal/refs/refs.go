// Package refs maintains the symbolic reference layer: one symlink per
// tracked alias pointing at the item's current original path.
//
// References are derived state. They are repairable at any time from the
// registry record and are used for discoverability and verification, never
// for data access, so a broken or missing reference is an inconsistency to
// report and fix, not a data-loss event.
package refs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/clutter-sh/clutter/internal/schema"
)

// Manager creates, checks, and repairs reference symlinks under a single
// references directory.
type Manager struct {
	dir string
}

// NewManager returns a manager rooted at dir. The directory is created on
// first use.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Path returns the reference path for an alias.
func (m *Manager) Path(alias string) string {
	return filepath.Join(m.dir, alias)
}

// Create makes the reference symlink for alias pointing at target. An
// existing reference for the alias is replaced.
func (m *Manager) Create(alias, target string) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create references directory: %w", err)
	}
	link := m.Path(alias)
	if err := os.Remove(link); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear old reference for %q: %w", alias, err)
	}
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("failed to create reference for %q: %w", alias, err)
	}
	return nil
}

// Remove deletes the reference for alias. Removing a reference that does
// not exist is not an error.
func (m *Manager) Remove(alias string) error {
	if err := os.Remove(m.Path(alias)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove reference for %q: %w", alias, err)
	}
	return nil
}

// Check reports whether the reference for alias exists and points at
// expected. A missing reference returns ErrMissingReference; a reference
// with the wrong target returns a descriptive error wrapping it.
func (m *Manager) Check(alias, expected string) error {
	target, err := os.Readlink(m.Path(alias))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("alias %q: %w", alias, schema.ErrMissingReference)
	}
	if err != nil {
		return fmt.Errorf("failed to read reference for %q: %w", alias, err)
	}
	if target != expected {
		return fmt.Errorf("alias %q: reference points at %q, expected %q: %w",
			alias, target, expected, schema.ErrMissingReference)
	}
	return nil
}

// Repair recreates the reference for alias so it points at target,
// regardless of its current state. Create is already destructive on the
// link itself, so repair is just create.
func (m *Manager) Repair(alias, target string) error {
	return m.Create(alias, target)
}

// Target returns the current target of the reference for alias.
func (m *Manager) Target(alias string) (string, error) {
	target, err := os.Readlink(m.Path(alias))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("alias %q: %w", alias, schema.ErrMissingReference)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read reference for %q: %w", alias, err)
	}
	return target, nil
}
