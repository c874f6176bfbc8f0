// Package lock provides the per-alias advisory locks that serialize
// pull/commit/resolve across independent processes.
//
// Each alias owns one lock file under locks/. The lock is held for the
// whole read-copy-write cycle of an operation, so the watcher daemon and
// a CLI invocation racing on the same alias cannot interleave. Waiting is
// bounded: a process that cannot acquire the lock within the configured
// wait fails with schema.ErrConcurrentModification instead of blocking.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clutter-sh/clutter/internal/schema"
)

// retryInterval is how often acquisition is retried inside the wait
// budget. flock has no native timeout, so we poll with LOCK_NB.
const retryInterval = 50 * time.Millisecond

// Manager hands out per-alias locks.
type Manager struct {
	dir  string
	wait time.Duration
}

// NewManager creates a lock manager rooted at dir with a bounded wait.
func NewManager(dir string, wait time.Duration) *Manager {
	return &Manager{dir: dir, wait: wait}
}

// Handle is a held lock. Release it exactly once.
type Handle struct {
	file  *os.File
	alias string
}

// Acquire takes the exclusive lock for alias, waiting up to the manager's
// bounded wait. On timeout it returns schema.ErrConcurrentModification.
func (m *Manager) Acquire(alias string) (*Handle, error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	path := filepath.Join(m.dir, alias+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	deadline := time.Now().Add(m.wait)
	for {
		err := flock(f)
		if err == nil {
			return &Handle{file: f, alias: alias}, nil
		}
		if err != errWouldBlock {
			f.Close()
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("alias %q: %w", alias, schema.ErrConcurrentModification)
		}
		time.Sleep(retryInterval)
	}
}

// Release drops the lock. Safe to call on a nil handle.
func (h *Handle) Release() error {
	if h == nil || h.file == nil {
		return nil
	}
	err := funlock(h.file)
	closeErr := h.file.Close()
	h.file = nil
	if err != nil {
		return fmt.Errorf("unlock alias %q: %w", h.alias, err)
	}
	return closeErr
}

// WithAlias runs fn while holding the alias lock.
func (m *Manager) WithAlias(alias string, fn func() error) error {
	h, err := m.Acquire(alias)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn()
}

// AcquireFile takes the exclusive lock on an arbitrary file in a single
// non-blocking attempt. Used for the daemon pid file, where a held lock
// means another daemon is already running and waiting makes no sense.
func AcquireFile(path string) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := flock(f); err != nil {
		f.Close()
		if err == errWouldBlock {
			return nil, fmt.Errorf("%s: %w", path, schema.ErrConcurrentModification)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return &Handle{file: f, alias: filepath.Base(path)}, nil
}

// File exposes the locked file, e.g. to write a pid into it.
func (h *Handle) File() *os.File {
	return h.file
}
