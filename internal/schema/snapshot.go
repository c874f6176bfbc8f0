package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SnapshotKind distinguishes the two automatic safety snapshots.
type SnapshotKind string

const (
	// KindPreCommit is taken from the original immediately before a
	// commit overwrites it.
	KindPreCommit SnapshotKind = "pre_commit"

	// KindPrePull is taken from the sandbox immediately before a pull
	// replaces non-empty sandbox content.
	KindPrePull SnapshotKind = "pre_pull"
)

// Valid reports whether the kind is known.
func (k SnapshotKind) Valid() bool {
	return k == KindPreCommit || k == KindPrePull
}

// SnapshotInfo describes one immutable snapshot directory.
type SnapshotInfo struct {
	Alias string       `json:"alias"`
	Kind  SnapshotKind `json:"kind"`
	Taken time.Time    `json:"taken"`
	// Seq disambiguates snapshots that share a timestamp second.
	Seq int `json:"seq,omitempty"`
	// Dir is the directory name under snapshots/<alias>/.
	Dir string `json:"dir"`
}

// SnapshotDirName builds the directory name for a snapshot:
// <kind>_<unix-ts> or <kind>_<unix-ts>_<seq> when seq > 0.
func SnapshotDirName(kind SnapshotKind, taken time.Time, seq int) string {
	name := fmt.Sprintf("%s_%d", kind, taken.Unix())
	if seq > 0 {
		name = fmt.Sprintf("%s_%d", name, seq)
	}
	return name
}

// ParseSnapshotDir parses a snapshot directory name back into its parts.
// Returns an error for names that are not snapshot directories.
func ParseSnapshotDir(name string) (SnapshotKind, time.Time, int, error) {
	var kind SnapshotKind
	var rest string
	switch {
	case strings.HasPrefix(name, string(KindPreCommit)+"_"):
		kind = KindPreCommit
		rest = name[len(KindPreCommit)+1:]
	case strings.HasPrefix(name, string(KindPrePull)+"_"):
		kind = KindPrePull
		rest = name[len(KindPrePull)+1:]
	default:
		return "", time.Time{}, 0, fmt.Errorf("not a snapshot directory: %q", name)
	}

	parts := strings.SplitN(rest, "_", 2)
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return "", time.Time{}, 0, fmt.Errorf("bad snapshot timestamp in %q: %w", name, err)
	}

	seq := 0
	if len(parts) == 2 {
		seq, err = strconv.Atoi(parts[1])
		if err != nil {
			return "", time.Time{}, 0, fmt.Errorf("bad snapshot sequence in %q: %w", name, err)
		}
	}

	return kind, time.Unix(ts, 0), seq, nil
}
