// Package snapshot maintains the immutable safety snapshots taken before
// every destructive copy.
//
// A snapshot is a full copy of a directory tree staged under a temporary
// name and renamed into place, so a half-written snapshot is never visible
// under its final name. Snapshots are never modified or deleted by the
// core; untrack deliberately leaves them behind for audit.
package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/clutter-sh/clutter/internal/fsutil"
	"github.com/clutter-sh/clutter/internal/schema"
)

// Store writes and lists snapshots under a single snapshots directory,
// one subdirectory per alias.
type Store struct {
	dir string
}

// NewStore returns a snapshot store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// AliasDir returns the snapshot directory for an alias.
func (s *Store) AliasDir(alias string) string {
	return filepath.Join(s.dir, alias)
}

// Dir returns the absolute path of a snapshot from its info record.
func (s *Store) Dir(info *schema.SnapshotInfo) string {
	return filepath.Join(s.dir, info.Alias, info.Dir)
}

// Take copies src into a new snapshot for alias and returns its info.
// The copy is staged under a temporary name first; the snapshot only
// appears under its final name once the copy is complete. Any failure is
// reported as ErrSnapshotWrite so callers abort before touching live data.
func (s *Store) Take(alias string, kind schema.SnapshotKind, src string) (*schema.SnapshotInfo, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown snapshot kind %q", kind)
	}
	aliasDir := s.AliasDir(alias)
	if err := os.MkdirAll(aliasDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrSnapshotWrite, err)
	}

	staging, err := os.MkdirTemp(aliasDir, ".staging-")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrSnapshotWrite, err)
	}
	defer os.RemoveAll(staging)

	if err := fsutil.CopyTree(src, staging); err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrSnapshotWrite, err)
	}

	taken := time.Now()
	info := &schema.SnapshotInfo{Alias: alias, Kind: kind, Taken: taken}
	for seq := 0; ; seq++ {
		name := schema.SnapshotDirName(kind, taken, seq)
		final := filepath.Join(aliasDir, name)
		// Rename over an existing empty directory succeeds, which would
		// replace an existing empty snapshot. Probe the name first so
		// collisions always advance the sequence.
		if _, err := os.Lstat(final); err == nil {
			continue
		}
		err := os.Rename(staging, final)
		if err == nil {
			info.Seq = seq
			info.Dir = name
			break
		}
		// Another snapshot landed in the same second; bump the
		// sequence and try again.
		if errors.Is(err, fs.ErrExist) || isNotEmpty(err) {
			continue
		}
		return nil, fmt.Errorf("%w: %v", schema.ErrSnapshotWrite, err)
	}

	if err := fsutil.FsyncDir(aliasDir); err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrSnapshotWrite, err)
	}
	return info, nil
}

// List returns the snapshots for alias, newest first. Unknown entries in
// the alias directory are skipped. An alias with no snapshots yields an
// empty slice.
func (s *Store) List(alias string) ([]*schema.SnapshotInfo, error) {
	entries, err := os.ReadDir(s.AliasDir(alias))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots for %q: %w", alias, err)
	}

	var infos []*schema.SnapshotInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		kind, taken, seq, err := schema.ParseSnapshotDir(e.Name())
		if err != nil {
			continue
		}
		infos = append(infos, &schema.SnapshotInfo{
			Alias: alias,
			Kind:  kind,
			Taken: taken,
			Seq:   seq,
			Dir:   e.Name(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].Taken.Equal(infos[j].Taken) {
			return infos[i].Taken.After(infos[j].Taken)
		}
		return infos[i].Seq > infos[j].Seq
	})
	return infos, nil
}

// ListAll returns snapshots for every alias present in the store, newest
// first within each alias.
func (s *Store) ListAll() (map[string][]*schema.SnapshotInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string][]*schema.SnapshotInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot store: %w", err)
	}

	out := make(map[string][]*schema.SnapshotInfo)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		infos, err := s.List(e.Name())
		if err != nil {
			return nil, err
		}
		if len(infos) > 0 {
			out[e.Name()] = infos
		}
	}
	return out, nil
}

// isNotEmpty reports whether a rename failed because the destination
// directory already exists and is non-empty. Linux reports ENOTEMPTY for
// this case rather than EEXIST.
func isNotEmpty(err error) bool {
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return false
	}
	return linkErr.Err.Error() == "directory not empty" ||
		linkErr.Err.Error() == "file exists"
}
