// Package schema provides the persistent record types shared by the
// registry, the sandbox manager, and the watcher daemon.
package schema

import (
	"fmt"
	"path/filepath"
	"time"
)

// ItemStatus is the lifecycle state of a tracked item.
//
// Transitions out of StatusActive happen only through the ghost resolver
// (delete/move events) or untrack; transitions back happen through the
// restore and follow resolutions.
type ItemStatus string

const (
	// StatusActive means the original exists and tracking is healthy.
	StatusActive ItemStatus = "active"

	// StatusGhostDeleted means the original was deleted on disk and a
	// recovery decision is pending.
	StatusGhostDeleted ItemStatus = "ghost_deleted"

	// StatusGhostMoved means the original was moved on disk and a
	// recovery decision is pending.
	StatusGhostMoved ItemStatus = "ghost_moved"

	// StatusGhost means the user chose to keep the item as a ghost: the
	// recorded original path is known not to exist, the sandbox is
	// retained untouched.
	StatusGhost ItemStatus = "ghost"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusActive, StatusGhostDeleted, StatusGhostMoved, StatusGhost:
		return true
	}
	return false
}

// TrackedItem is a registry record for one tracked original.
//
// The alias is the identity; it is chosen by the user and globally unique.
// EverPulled is monotonic: once a pull succeeds it stays true for the life
// of the record, and it is the sole gate for ghost recoverability.
type TrackedItem struct {
	Alias        string     `json:"alias"`
	OriginalPath string     `json:"original_path"`
	Status       ItemStatus `json:"status"`
	EverPulled   bool       `json:"ever_pulled"`

	CreatedAt       time.Time  `json:"created_at"`
	LastPulledAt    *time.Time `json:"last_pulled_at,omitempty"`
	LastCommittedAt *time.Time `json:"last_committed_at,omitempty"`
}

// Validate checks that the record is internally consistent.
func (t *TrackedItem) Validate() error {
	if t.Alias == "" {
		return fmt.Errorf("alias is required")
	}
	if len(t.Alias) > 200 {
		return fmt.Errorf("alias must be 200 characters or less (got %d)", len(t.Alias))
	}
	if t.OriginalPath == "" {
		return fmt.Errorf("original path is required")
	}
	if !filepath.IsAbs(t.OriginalPath) {
		return fmt.Errorf("original path must be absolute (got %q)", t.OriginalPath)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("unknown status %q", t.Status)
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}
