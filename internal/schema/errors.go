package schema

import "errors"

// Errors returned by the tracking core.
//
// All of them are recoverable from the caller's perspective: an operation
// that fails with one of these leaves the registry in the state it was in
// before the operation began. Check with errors.Is():
//
//	if errors.Is(err, schema.ErrUnknownAlias) {
//	    // suggest `clutter track` to the user
//	}
var (
	// ErrDuplicateAlias is returned by track when the alias is already
	// registered. The existing record is never altered.
	ErrDuplicateAlias = errors.New("alias already in use")

	// ErrUnknownAlias is returned when no tracked item exists for the
	// requested alias.
	ErrUnknownAlias = errors.New("alias is not tracked")

	// ErrOriginalMissing is returned by pull when the recorded original
	// path no longer exists on disk. Callers should redirect the user to
	// ghost handling instead of retrying.
	ErrOriginalMissing = errors.New("original path missing")

	// ErrEmptySandbox is returned by commit when the sandbox holds
	// nothing beyond its marker. A merge-from-nothing never proceeds.
	ErrEmptySandbox = errors.New("sandbox is empty")

	// ErrGhostUnrecoverable is returned when a deleted original has no
	// sandbox copy to restore from because the item was never pulled.
	ErrGhostUnrecoverable = errors.New("no ghost available, item was never pulled")

	// ErrMissingReference is returned by the reference check when the
	// refs/<alias> symlink is absent or points at the wrong target.
	ErrMissingReference = errors.New("reference missing or stale")

	// ErrConcurrentModification is returned when the per-alias lock (or
	// the registry transaction) cannot be acquired within the bounded
	// wait. The caller may retry.
	ErrConcurrentModification = errors.New("record is locked by another process")

	// ErrSnapshotWrite is returned when a safety snapshot cannot be
	// fully written. The enclosing pull/commit aborts before touching
	// the sandbox or the original.
	ErrSnapshotWrite = errors.New("snapshot write failed")
)

// IsRetryable returns true if the error is likely to succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsUserActionRequired returns true if the error cannot be resolved
// without the user changing something first (tracking the alias, pulling,
// or resolving a ghost).
func IsUserActionRequired(err error) bool {
	switch {
	case errors.Is(err, ErrUnknownAlias),
		errors.Is(err, ErrOriginalMissing),
		errors.Is(err, ErrEmptySandbox),
		errors.Is(err, ErrGhostUnrecoverable):
		return true
	}
	return false
}
