// Package verify implements the on-demand consistency check over the
// reference layer and the manually registered symlinks.
//
// Verification never detects deleted or moved originals; that is the
// watcher's job. It only repairs the derived reference artifacts, which
// are always safe to recreate from the registry.
package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/clutter-sh/clutter/internal/refs"
	"github.com/clutter-sh/clutter/internal/schema"
	"github.com/clutter-sh/clutter/internal/store"
)

// Confirmer is the yes/no prompt verification needs before repairing.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
	Report(message string)
}

// Result summarizes one verification pass.
type Result struct {
	Checked  int
	Healthy  int
	Repaired int
	Broken   int

	// SymlinksChecked and SymlinksBroken cover the secondary pass over
	// manually registered links.
	SymlinksChecked int
	SymlinksBroken  int
}

// Service runs verification passes.
type Service struct {
	store   *store.Store
	refs    *refs.Manager
	confirm Confirmer
}

// NewService wires a verify service.
func NewService(st *store.Store, rm *refs.Manager, c Confirmer) *Service {
	return &Service{store: st, refs: rm, confirm: c}
}

// Run checks every tracked item's reference against its recorded original
// path, offering to repair each broken one, then validates the manually
// registered symlinks.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, item := range items {
		res.Checked++
		err := s.refs.Check(item.Alias, item.OriginalPath)
		if err == nil {
			res.Healthy++
			continue
		}
		if !errors.Is(err, schema.ErrMissingReference) {
			return res, err
		}

		s.confirm.Report(fmt.Sprintf("%s: %v", item.Alias, err))
		ok, cerr := s.confirm.Confirm(ctx,
			fmt.Sprintf("Repair reference for %q to point at %s?", item.Alias, item.OriginalPath))
		if cerr != nil {
			return res, cerr
		}
		if !ok {
			res.Broken++
			continue
		}
		if err := s.refs.Repair(item.Alias, item.OriginalPath); err != nil {
			return res, err
		}
		res.Repaired++
	}

	if err := s.checkSymlinks(ctx, res); err != nil {
		return res, err
	}
	return res, nil
}

// checkSymlinks is the opaque secondary pass: each registered link is
// read back and its target existence checked; results are reported, not
// repaired.
func (s *Service) checkSymlinks(ctx context.Context, res *Result) error {
	links, err := s.store.ListSymlinks(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, l := range links {
		res.SymlinksChecked++
		target, err := os.Readlink(l.LinkPath)
		if err != nil {
			res.SymlinksBroken++
			s.confirm.Report(fmt.Sprintf("symlink %s: unreadable: %v", l.LinkPath, err))
			continue
		}
		if target != l.TargetPath {
			res.SymlinksBroken++
			s.confirm.Report(fmt.Sprintf("symlink %s: points at %s, registered target is %s",
				l.LinkPath, target, l.TargetPath))
			continue
		}
		if _, err := os.Stat(l.TargetPath); err != nil {
			res.SymlinksBroken++
			s.confirm.Report(fmt.Sprintf("symlink %s: target %s missing", l.LinkPath, l.TargetPath))
			continue
		}
		if err := s.store.TouchSymlink(ctx, l.LinkPath, now); err != nil {
			return err
		}
	}
	return nil
}
