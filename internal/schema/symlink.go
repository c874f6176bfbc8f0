package schema

import (
	"fmt"
	"path/filepath"
	"time"
)

// Symlink is a manually registered link that verification keeps an eye on,
// independent of the reference links the core manages itself.
type Symlink struct {
	LinkPath     string
	TargetPath   string
	CreatedAt    time.Time
	LastVerified *time.Time
}

// Validate checks that both ends of the link are absolute paths.
func (l *Symlink) Validate() error {
	if !filepath.IsAbs(l.LinkPath) {
		return fmt.Errorf("symlink path must be absolute, got %q", l.LinkPath)
	}
	if !filepath.IsAbs(l.TargetPath) {
		return fmt.Errorf("symlink target must be absolute, got %q", l.TargetPath)
	}
	return nil
}
