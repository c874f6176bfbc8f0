// Package daemon provides the long-running watcher that detects external
// deletion or relocation of tracked originals.
//
// The daemon:
//  1. Rescans all tracked items on startup and resolves already-missing
//     originals
//  2. Watches the parent directory of every tracked original
//  3. Correlates rename/create event pairs to distinguish moves from
//     deletions
//  4. Hands confirmed events to the ghost resolver
//  5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/clutter-sh/clutter/internal/ghost"
	"github.com/clutter-sh/clutter/internal/schema"
	"github.com/clutter-sh/clutter/internal/store"
)

// Config holds configuration for the daemon.
type Config struct {
	// Debounce is how long to wait before acting on a burst of events
	// for the same path.
	Debounce time.Duration

	// MoveWindow is how long a disappearance is held open waiting for
	// the matching create that would reclassify it as a move. A
	// disappearance with no matching create inside the window is
	// treated as a deletion.
	MoveWindow time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce:   100 * time.Millisecond,
		MoveWindow: 500 * time.Millisecond,
		Logger:     log.New(os.Stderr, "[clutterd] ", log.LstdFlags),
	}
}

// Event is a confirmed lifecycle event for a tracked original.
type Event struct {
	Alias string
	// Op is "delete" or "move".
	Op string
	// NewPath is set for moves.
	NewPath string
}

// Notifier receives confirmed events, e.g. for the dashboard broadcast.
type Notifier interface {
	Notify(Event)
}

// Daemon watches tracked originals and drives ghost resolution.
type Daemon struct {
	store    *store.Store
	resolver *ghost.Resolver
	config   *Config
	notify   Notifier

	watcher *fsnotify.Watcher

	// tracked maps original path to alias, rebuilt on every rescan.
	mu      sync.Mutex
	tracked map[string]string
	// pending holds disappearances waiting out the move window.
	pending map[string]*pendingGone

	// refresh wakes the watch-set refresher after events change the
	// tracked layout.
	refresh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// pendingGone is a tracked original that vanished and may yet turn out to
// have been moved.
type pendingGone struct {
	alias string
	// renamed records whether the disappearance arrived as a rename.
	// Only renames may pair with a create into a move; a plain remove
	// is a deletion no matter what gets created nearby.
	renamed bool
	timer   *time.Timer
}

// New creates a daemon over the given registry and resolver. notify may
// be nil.
func New(st *store.Store, resolver *ghost.Resolver, config *Config, notify Notifier) (*Daemon, error) {
	if config == nil {
		config = DefaultConfig()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		store:    st,
		resolver: resolver,
		config:   config,
		notify:   notify,
		watcher:  watcher,
		tracked:  make(map[string]string),
		pending:  make(map[string]*pendingGone),
		refresh:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start runs the daemon until ctx is cancelled. It blocks.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting watcher daemon")

	if err := d.Rescan(ctx); err != nil {
		return fmt.Errorf("initial rescan failed: %w", err)
	}

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.refreshLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping watcher daemon")
	d.cancel()
	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}
	d.wg.Wait()

	d.mu.Lock()
	for _, p := range d.pending {
		p.timer.Stop()
	}
	d.pending = make(map[string]*pendingGone)
	d.mu.Unlock()

	d.config.Logger.Println("Watcher daemon stopped")
	return nil
}

// Rescan rebuilds the watch set from the registry and resolves originals
// that went missing while the daemon was not running. An unresolved
// prompt from a previous run is not remembered; the current disk state is
// authoritative.
func (d *Daemon) Rescan(ctx context.Context) error {
	items, err := d.store.ListItems(ctx)
	if err != nil {
		return err
	}

	tracked := make(map[string]string)
	parents := make(map[string]bool)
	for _, item := range items {
		if item.Status != schema.StatusActive {
			continue
		}
		if _, err := os.Stat(item.OriginalPath); os.IsNotExist(err) {
			d.config.Logger.Printf("Rescan: original for %s is missing", item.Alias)
			d.dispatch(Event{Alias: item.Alias, Op: "delete"})
			continue
		}
		tracked[item.OriginalPath] = item.Alias
		parents[filepath.Dir(item.OriginalPath)] = true
	}

	d.mu.Lock()
	d.tracked = tracked
	d.mu.Unlock()

	for dir := range parents {
		if err := d.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	d.config.Logger.Printf("Watching %d directories for %d tracked items", len(parents), len(tracked))
	return nil
}

// watchFileEvents monitors filesystem events and classifies the ones
// matching tracked originals.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.handleRawEvent(event)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// handleRawEvent routes one fsnotify event through the move/delete
// classifier.
func (d *Daemon) handleRawEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	switch {
	case event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove):
		d.mu.Lock()
		alias, ok := d.tracked[path]
		d.mu.Unlock()
		if !ok {
			return
		}
		d.config.Logger.Printf("File event: %s %s (alias %s)", event.Op, path, alias)
		d.holdDisappearance(path, alias, event.Has(fsnotify.Rename))

	case event.Has(fsnotify.Create):
		d.matchCreate(path)
	}
}

// holdDisappearance starts the move window for a vanished original. If
// nothing reclassifies it in time, it is a deletion.
func (d *Daemon) holdDisappearance(path, alias string, renamed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.pending[path]; exists {
		return
	}
	p := &pendingGone{alias: alias, renamed: renamed}
	p.timer = time.AfterFunc(d.config.MoveWindow, func() {
		d.expireDisappearance(path)
	})
	d.pending[path] = p
	delete(d.tracked, path)
}

// expireDisappearance fires when the move window closes with no matching
// create: the original is gone for real.
func (d *Daemon) expireDisappearance(path string) {
	d.mu.Lock()
	p, ok := d.pending[path]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	d.mu.Unlock()

	// The directory may have been recreated in place (an atomic
	// replace); only a still-missing path counts as deleted.
	if _, err := os.Stat(path); err == nil {
		d.mu.Lock()
		d.tracked[path] = p.alias
		d.mu.Unlock()
		return
	}

	d.dispatch(Event{Alias: p.alias, Op: "delete"})
}

// matchCreate pairs a created directory with a pending disappearance,
// turning delete into move. With several pending disappearances the pair
// is ambiguous; the conservative classification (deletion, which keeps
// the sandbox and offers restore) is left to the window expiry.
func (d *Daemon) matchCreate(newPath string) {
	info, err := os.Stat(newPath)
	if err != nil || !info.IsDir() {
		return
	}

	d.mu.Lock()
	if len(d.pending) != 1 {
		d.mu.Unlock()
		return
	}
	var oldPath string
	var p *pendingGone
	for path, pg := range d.pending {
		oldPath, p = path, pg
	}
	if !p.renamed {
		// A removed original never pairs: the create is unrelated and
		// the window expiry will classify the removal as a deletion.
		d.mu.Unlock()
		return
	}
	if newPath == oldPath {
		// Recreated in place; not a move.
		d.mu.Unlock()
		return
	}
	p.timer.Stop()
	delete(d.pending, oldPath)
	d.tracked[newPath] = p.alias
	d.mu.Unlock()

	// Watch the new parent so future events for the moved original are
	// still observed.
	if err := d.watcher.Add(filepath.Dir(newPath)); err != nil {
		d.config.Logger.Printf("Failed to watch %s: %v", filepath.Dir(newPath), err)
	}

	d.dispatch(Event{Alias: p.alias, Op: "move", NewPath: newPath})
}

// refreshLoop re-derives the watch set from the registry after the
// tracked layout changes, with a short debounce so a burst of events
// triggers one rescan.
func (d *Daemon) refreshLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.refresh:
		}

		timer := time.NewTimer(d.config.Debounce)
		select {
		case <-d.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := d.Rescan(d.ctx); err != nil {
			d.config.Logger.Printf("Watch refresh failed: %v", err)
		}
	}
}

// requestRefresh schedules a debounced watch-set rescan.
func (d *Daemon) requestRefresh() {
	select {
	case d.refresh <- struct{}{}:
	default:
	}
}

// dispatch hands a confirmed event to the resolver. Resolution blocks on
// a user decision, so it runs in its own goroutine; the resolver
// serializes decisions per alias and drops duplicates.
func (d *Daemon) dispatch(ev Event) {
	if d.notify != nil {
		d.notify.Notify(ev)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		var err error
		switch ev.Op {
		case "delete":
			err = d.resolver.HandleDelete(d.ctx, ev.Alias)
		case "move":
			err = d.resolver.HandleMove(d.ctx, ev.Alias, ev.NewPath)
		}
		if err != nil {
			d.config.Logger.Printf("Failed to resolve %s for %s: %v", ev.Op, ev.Alias, err)
		}
		// The resolution may have changed paths or removed the item;
		// refresh the watch set to match.
		d.requestRefresh()
	}()
}
