package schema

import "time"

// FileRecord is one row in the filename index maintained by scan.
type FileRecord struct {
	ID        int64
	Path      string
	Name      string
	Ext       string
	Size      int64
	ModTime   float64
	IndexedAt time.Time
}
