// Package index maintains the filename index behind scan, find, and
// stats.
//
// The index is a registry-side convenience: it never participates in the
// tracking lifecycle and can be rebuilt from disk at any time.
package index

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clutter-sh/clutter/internal/config"
	"github.com/clutter-sh/clutter/internal/schema"
	"github.com/clutter-sh/clutter/internal/store"
)

// batchSize bounds how many records one insert transaction carries.
const batchSize = 500

// Indexer scans directory trees into the file index and answers queries.
type Indexer struct {
	store *store.Store
	rules *config.IgnoreRules
}

// New creates an indexer with the given ignore rules.
func New(st *store.Store, rules *config.IgnoreRules) *Indexer {
	if rules == nil {
		rules = config.DefaultIgnoreRules()
	}
	return &Indexer{store: st, rules: rules}
}

// ScanResult summarizes one scan pass.
type ScanResult struct {
	Indexed  int
	Skipped  int
	Pruned   int64
	Duration time.Duration
}

// Scan walks root and refreshes the index for everything under it.
// Entries for files that no longer exist under root are pruned.
func (ix *Indexer) Scan(ctx context.Context, root string) (*ScanResult, error) {
	start := time.Now()
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", root, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("failed to scan %q: %w", abs, err)
	}

	res := &ScanResult{}
	seen := make(map[string]bool)
	var batch []*schema.FileRecord

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ix.store.UpsertFiles(ctx, batch); err != nil {
			return err
		}
		res.Indexed += len(batch)
		batch = batch[:0]
		return nil
	}

	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			res.Skipped++
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name := d.Name()
		if d.IsDir() {
			if path != abs && ix.rules.Match(path, name) {
				res.Skipped++
				return filepath.SkipDir
			}
			return nil
		}
		if ix.rules.Match(path, name) {
			res.Skipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			res.Skipped++
			return nil
		}

		seen[path] = true
		batch = append(batch, &schema.FileRecord{
			Path:    path,
			Name:    name,
			Ext:     strings.ToLower(filepath.Ext(name)),
			Size:    info.Size(),
			ModTime: float64(info.ModTime().UnixNano()) / 1e9,
		})
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}

	pruned, err := ix.store.PruneFilesUnder(ctx, abs+string(filepath.Separator), seen)
	if err != nil {
		return nil, err
	}
	res.Pruned = pruned
	res.Duration = time.Since(start)
	return res, nil
}

// Find searches the index. The store uses full-text search when the
// build has it and falls back to substring matching otherwise.
func (ix *Indexer) Find(ctx context.Context, query string, limit int) ([]*schema.FileRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	return ix.store.SearchFiles(ctx, query, limit)
}

// Stats returns aggregate counts over the index.
func (ix *Indexer) Stats(ctx context.Context) (*store.IndexStats, error) {
	return ix.store.FileStats(ctx)
}

// Clear wipes the whole index and reports how many entries were dropped.
// Tracked items, snapshots, and the change log are untouched.
func (ix *Indexer) Clear(ctx context.Context) (int64, error) {
	return ix.store.ClearFiles(ctx)
}
