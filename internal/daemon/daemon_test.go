package daemon

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/clutter-sh/clutter/internal/ghost"
	"github.com/clutter-sh/clutter/internal/lock"
	"github.com/clutter-sh/clutter/internal/refs"
	"github.com/clutter-sh/clutter/internal/sandbox"
	"github.com/clutter-sh/clutter/internal/schema"
	"github.com/clutter-sh/clutter/internal/snapshot"
	"github.com/clutter-sh/clutter/internal/store"
)

// recordingNotifier collects dispatched events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(ev Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func (n *recordingNotifier) snapshot() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

// scriptedPrompter always answers with the same choice.
type scriptedPrompter struct {
	choice ghost.Choice
}

func (p *scriptedPrompter) Choose(ctx context.Context, prompt string, options []ghost.Choice) (ghost.Choice, error) {
	return p.choice, nil
}

func (p *scriptedPrompter) Report(message string) {}

type fixture struct {
	daemon   *Daemon
	notifier *recordingNotifier
	store    *store.Store
	mgr      *sandbox.Manager
	base     string
}

func newFixture(t *testing.T, choice ghost.Choice) *fixture {
	t.Helper()
	base := t.TempDir()

	st, err := store.Open(filepath.Join(base, "clutter.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(); err != nil {
		t.Fatal(err)
	}

	rm := refs.NewManager(filepath.Join(base, "refs"))
	ss := snapshot.NewStore(filepath.Join(base, "snapshots"))
	lm := lock.NewManager(filepath.Join(base, "locks"), 2*time.Second)
	mgr := sandbox.NewManager(st, rm, ss, lm, filepath.Join(base, "sandboxes"))
	resolver := ghost.NewResolver(st, mgr, rm, &scriptedPrompter{choice: choice})

	notifier := &recordingNotifier{}
	cfg := &Config{
		Debounce:   10 * time.Millisecond,
		MoveWindow: 80 * time.Millisecond,
		Logger:     log.New(io.Discard, "", 0),
	}
	d, err := New(st, resolver, cfg, notifier)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { d.Stop() })

	return &fixture{daemon: d, notifier: notifier, store: st, mgr: mgr, base: base}
}

func (f *fixture) track(t *testing.T, alias string) string {
	t.Helper()
	original := filepath.Join(f.base, alias)
	if err := os.MkdirAll(original, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(original, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.Track(context.Background(), alias, original); err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	return original
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRescanResolvesAlreadyMissing(t *testing.T) {
	f := newFixture(t, ghost.ChoiceKeepGhost)
	original := f.track(t, "proj")
	if _, err := f.mgr.Pull(context.Background(), "proj"); err != nil {
		t.Fatal(err)
	}
	// The original disappears while no daemon is running.
	if err := os.RemoveAll(original); err != nil {
		t.Fatal(err)
	}

	if err := f.daemon.Rescan(context.Background()); err != nil {
		t.Fatalf("Rescan failed: %v", err)
	}

	waitFor(t, "ghost status", func() bool {
		item, err := f.store.GetItem("proj")
		return err == nil && item.Status == schema.StatusGhost
	})

	events := f.notifier.snapshot()
	if len(events) != 1 || events[0].Op != "delete" || events[0].Alias != "proj" {
		t.Errorf("events = %v, want one delete for proj", events)
	}
}

func TestRescanSkipsHealthyItems(t *testing.T) {
	f := newFixture(t, ghost.ChoiceKeepGhost)
	f.track(t, "proj")

	if err := f.daemon.Rescan(context.Background()); err != nil {
		t.Fatalf("Rescan failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if events := f.notifier.snapshot(); len(events) != 0 {
		t.Errorf("healthy rescan dispatched %v", events)
	}
}

func TestDisappearanceClassifiedAsDelete(t *testing.T) {
	f := newFixture(t, ghost.ChoiceKeepGhost)
	original := f.track(t, "proj")
	if _, err := f.mgr.Pull(context.Background(), "proj"); err != nil {
		t.Fatal(err)
	}
	if err := f.daemon.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := os.RemoveAll(original); err != nil {
		t.Fatal(err)
	}
	f.daemon.handleRawEvent(fsnotify.Event{Name: original, Op: fsnotify.Remove})

	waitFor(t, "delete event", func() bool {
		events := f.notifier.snapshot()
		return len(events) == 1 && events[0].Op == "delete"
	})
}

func TestRenamePairedWithCreateIsMove(t *testing.T) {
	f := newFixture(t, ghost.ChoiceFollow)
	original := f.track(t, "proj")
	if err := f.daemon.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}

	newPath := filepath.Join(f.base, "relocated")
	if err := os.Rename(original, newPath); err != nil {
		t.Fatal(err)
	}

	f.daemon.handleRawEvent(fsnotify.Event{Name: original, Op: fsnotify.Rename})
	f.daemon.handleRawEvent(fsnotify.Event{Name: newPath, Op: fsnotify.Create})

	waitFor(t, "move event", func() bool {
		events := f.notifier.snapshot()
		return len(events) == 1 && events[0].Op == "move" && events[0].NewPath == newPath
	})

	waitFor(t, "followed path", func() bool {
		item, err := f.store.GetItem("proj")
		return err == nil && item.OriginalPath == newPath && item.Status == schema.StatusActive
	})
}

func TestRemoveNeverPairsWithCreate(t *testing.T) {
	f := newFixture(t, ghost.ChoiceKeepGhost)
	original := f.track(t, "proj")
	if _, err := f.mgr.Pull(context.Background(), "proj"); err != nil {
		t.Fatal(err)
	}
	if err := f.daemon.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The original is deleted outright while an unrelated directory
	// appears inside the move window. That must not become a move.
	if err := os.RemoveAll(original); err != nil {
		t.Fatal(err)
	}
	unrelated := filepath.Join(f.base, "totally-unrelated")
	if err := os.MkdirAll(unrelated, 0o755); err != nil {
		t.Fatal(err)
	}

	f.daemon.handleRawEvent(fsnotify.Event{Name: original, Op: fsnotify.Remove})
	f.daemon.handleRawEvent(fsnotify.Event{Name: unrelated, Op: fsnotify.Create})

	waitFor(t, "delete event", func() bool {
		events := f.notifier.snapshot()
		return len(events) == 1 && events[0].Op == "delete"
	})

	item, err := f.store.GetItem("proj")
	if err != nil {
		t.Fatal(err)
	}
	if item.OriginalPath != original {
		t.Errorf("OriginalPath = %q, want %q untouched", item.OriginalPath, original)
	}
}

func TestRecreateInPlaceIsNoEvent(t *testing.T) {
	f := newFixture(t, ghost.ChoiceKeepGhost)
	original := f.track(t, "proj")
	if err := f.daemon.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}

	// An atomic replace: the path vanishes and reappears within the
	// move window.
	f.daemon.handleRawEvent(fsnotify.Event{Name: original, Op: fsnotify.Rename})
	f.daemon.handleRawEvent(fsnotify.Event{Name: original, Op: fsnotify.Create})

	time.Sleep(200 * time.Millisecond)
	if events := f.notifier.snapshot(); len(events) != 0 {
		t.Errorf("in-place recreate dispatched %v", events)
	}

	item, err := f.store.GetItem("proj")
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != schema.StatusActive {
		t.Errorf("status = %q, want active", item.Status)
	}
}

func TestUntrackedPathsIgnored(t *testing.T) {
	f := newFixture(t, ghost.ChoiceKeepGhost)
	f.track(t, "proj")
	if err := f.daemon.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.daemon.handleRawEvent(fsnotify.Event{Name: filepath.Join(f.base, "unrelated"), Op: fsnotify.Remove})
	time.Sleep(150 * time.Millisecond)
	if events := f.notifier.snapshot(); len(events) != 0 {
		t.Errorf("unrelated event dispatched %v", events)
	}
}

func TestPidFileSingleton(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")

	release, err := AcquirePidFile(path)
	if err != nil {
		t.Fatalf("AcquirePidFile failed: %v", err)
	}

	pid, err := ReadPidFile(path)
	if err != nil {
		t.Fatalf("ReadPidFile failed: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}

	if _, err := AcquirePidFile(path); !errors.Is(err, schema.ErrConcurrentModification) {
		t.Errorf("second acquire = %v, want ErrConcurrentModification", err)
	}

	if err := release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("pid file not removed on release")
	}

	release2, err := AcquirePidFile(path)
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	release2()
}
