package ghost

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/clutter-sh/clutter/internal/lock"
	"github.com/clutter-sh/clutter/internal/refs"
	"github.com/clutter-sh/clutter/internal/sandbox"
	"github.com/clutter-sh/clutter/internal/schema"
	"github.com/clutter-sh/clutter/internal/snapshot"
	"github.com/clutter-sh/clutter/internal/store"
)

// scriptedPrompter answers Choose calls from a fixed script and records
// everything it was shown.
type scriptedPrompter struct {
	mu       sync.Mutex
	answers  []Choice
	prompts  []string
	offered  [][]Choice
	messages []string
}

func (p *scriptedPrompter) Choose(ctx context.Context, prompt string, options []Choice) (Choice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	p.offered = append(p.offered, options)
	if len(p.answers) == 0 {
		return "", errors.New("prompter script exhausted")
	}
	choice := p.answers[0]
	p.answers = p.answers[1:]
	return choice, nil
}

func (p *scriptedPrompter) Report(message string) {
	p.mu.Lock()
	p.messages = append(p.messages, message)
	p.mu.Unlock()
}

type fixture struct {
	resolver *Resolver
	prompter *scriptedPrompter
	store    *store.Store
	mgr      *sandbox.Manager
	refs     *refs.Manager
	base     string
	original string
}

func newFixture(t *testing.T, answers ...Choice) *fixture {
	t.Helper()
	base := t.TempDir()

	st, err := store.Open(filepath.Join(base, "clutter.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	rm := refs.NewManager(filepath.Join(base, "refs"))
	ss := snapshot.NewStore(filepath.Join(base, "snapshots"))
	lm := lock.NewManager(filepath.Join(base, "locks"), 2*time.Second)
	mgr := sandbox.NewManager(st, rm, ss, lm, filepath.Join(base, "sandboxes"))

	p := &scriptedPrompter{answers: answers}
	original := filepath.Join(base, "original")
	if err := os.MkdirAll(original, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(original, "a.txt"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	return &fixture{
		resolver: NewResolver(st, mgr, rm, p),
		prompter: p,
		store:    st,
		mgr:      mgr,
		refs:     rm,
		base:     base,
		original: original,
	}
}

func (f *fixture) trackAndPull(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.mgr.Track(ctx, "proj", f.original); err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if _, err := f.mgr.Pull(ctx, "proj"); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
}

func TestDeleteChoicesDependOnPullHistory(t *testing.T) {
	never := &schema.TrackedItem{Alias: "a", EverPulled: false}
	got := DeleteChoices(never)
	if len(got) != 1 || got[0] != ChoiceUntrack {
		t.Errorf("choices for never-pulled item = %v, want [untrack]", got)
	}

	pulled := &schema.TrackedItem{Alias: "a", EverPulled: true}
	got = DeleteChoices(pulled)
	want := []Choice{ChoiceRestore, ChoiceKeepGhost, ChoiceDeleteForReal}
	if len(got) != len(want) {
		t.Fatalf("choices for pulled item = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("choices[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHandleDeleteRestore(t *testing.T) {
	f := newFixture(t, ChoiceRestore)
	f.trackAndPull(t)
	if err := os.RemoveAll(f.original); err != nil {
		t.Fatal(err)
	}

	if err := f.resolver.HandleDelete(context.Background(), "proj"); err != nil {
		t.Fatalf("HandleDelete failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(f.original, "a.txt"))
	if err != nil {
		t.Fatalf("original not restored: %v", err)
	}
	if string(data) != "data" {
		t.Errorf("restored content = %q, want %q", data, "data")
	}

	item, err := f.store.GetItem("proj")
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != schema.StatusActive {
		t.Errorf("status = %q, want active", item.Status)
	}
}

func TestHandleDeleteKeepGhost(t *testing.T) {
	f := newFixture(t, ChoiceKeepGhost)
	f.trackAndPull(t)
	if err := os.RemoveAll(f.original); err != nil {
		t.Fatal(err)
	}

	if err := f.resolver.HandleDelete(context.Background(), "proj"); err != nil {
		t.Fatalf("HandleDelete failed: %v", err)
	}

	item, err := f.store.GetItem("proj")
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != schema.StatusGhost {
		t.Errorf("status = %q, want ghost", item.Status)
	}
	// Sandbox retained untouched.
	if _, err := os.Stat(filepath.Join(f.mgr.Dir("proj"), "a.txt")); err != nil {
		t.Errorf("sandbox content lost: %v", err)
	}
	// Original stays gone.
	if _, err := os.Stat(f.original); !errors.Is(err, os.ErrNotExist) {
		t.Error("original should remain deleted")
	}
}

func TestHandleDeleteForReal(t *testing.T) {
	f := newFixture(t, ChoiceDeleteForReal)
	f.trackAndPull(t)
	if err := os.RemoveAll(f.original); err != nil {
		t.Fatal(err)
	}

	if err := f.resolver.HandleDelete(context.Background(), "proj"); err != nil {
		t.Fatalf("HandleDelete failed: %v", err)
	}

	if _, err := f.store.GetItem("proj"); !errors.Is(err, schema.ErrUnknownAlias) {
		t.Errorf("record survived delete-for-real: %v", err)
	}
	if _, err := os.Stat(f.mgr.Dir("proj")); !errors.Is(err, os.ErrNotExist) {
		t.Error("sandbox survived delete-for-real")
	}

	// The accepted deletion is recorded distinctly from a plain untrack.
	entries, err := f.store.RecentChanges(context.Background(), store.ChangesFilter{Alias: "proj"})
	if err != nil {
		t.Fatal(err)
	}
	var sawDelete bool
	for _, e := range entries {
		if e.Action == schema.ActionDelete {
			sawDelete = true
		}
	}
	if !sawDelete {
		t.Errorf("change log %v has no delete entry", entries)
	}
}

func TestHandleDeleteNeverPulled(t *testing.T) {
	f := newFixture(t, ChoiceUntrack)
	ctx := context.Background()
	if _, err := f.mgr.Track(ctx, "proj", f.original); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(f.original); err != nil {
		t.Fatal(err)
	}

	if err := f.resolver.HandleDelete(ctx, "proj"); err != nil {
		t.Fatalf("HandleDelete failed: %v", err)
	}

	// Only untrack may be offered.
	if len(f.prompter.offered) != 1 {
		t.Fatalf("got %d prompts, want 1", len(f.prompter.offered))
	}
	if len(f.prompter.offered[0]) != 1 || f.prompter.offered[0][0] != ChoiceUntrack {
		t.Errorf("offered choices = %v, want [untrack]", f.prompter.offered[0])
	}
	if _, err := f.store.GetItem("proj"); !errors.Is(err, schema.ErrUnknownAlias) {
		t.Error("record survived untrack of never-pulled item")
	}
}

func TestHandleMoveFollow(t *testing.T) {
	f := newFixture(t, ChoiceFollow)
	f.trackAndPull(t)

	newPath := filepath.Join(f.base, "relocated")
	if err := os.Rename(f.original, newPath); err != nil {
		t.Fatal(err)
	}

	if err := f.resolver.HandleMove(context.Background(), "proj", newPath); err != nil {
		t.Fatalf("HandleMove failed: %v", err)
	}

	item, err := f.store.GetItem("proj")
	if err != nil {
		t.Fatal(err)
	}
	if item.OriginalPath != newPath {
		t.Errorf("OriginalPath = %q, want %q", item.OriginalPath, newPath)
	}
	if item.Status != schema.StatusActive {
		t.Errorf("status = %q, want active", item.Status)
	}
	if err := f.refs.Check("proj", newPath); err != nil {
		t.Errorf("reference not repaired after follow: %v", err)
	}
}

func TestHandleMoveGhost(t *testing.T) {
	f := newFixture(t, ChoiceGhost)
	f.trackAndPull(t)
	oldPath := f.original

	if err := f.resolver.HandleMove(context.Background(), "proj", filepath.Join(f.base, "elsewhere")); err != nil {
		t.Fatalf("HandleMove failed: %v", err)
	}

	item, err := f.store.GetItem("proj")
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != schema.StatusGhost {
		t.Errorf("status = %q, want ghost", item.Status)
	}
	if item.OriginalPath != oldPath {
		t.Errorf("OriginalPath = %q, want old path %q", item.OriginalPath, oldPath)
	}
}

func TestResolveMoveGhostNeedsNoNewPath(t *testing.T) {
	f := newFixture(t)
	f.trackAndPull(t)
	oldPath := f.original

	// The ghost resolution keeps the old recorded path; the destination
	// of the move is irrelevant and may be unknown.
	if err := f.resolver.ResolveMove(context.Background(), "proj", "", ChoiceGhost); err != nil {
		t.Fatalf("ResolveMove failed: %v", err)
	}

	item, err := f.store.GetItem("proj")
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != schema.StatusGhost {
		t.Errorf("status = %q, want ghost", item.Status)
	}
	if item.OriginalPath != oldPath {
		t.Errorf("OriginalPath = %q, want old path %q", item.OriginalPath, oldPath)
	}
}

func TestHandleMoveCancel(t *testing.T) {
	f := newFixture(t, ChoiceCancel)
	f.trackAndPull(t)
	oldPath := f.original

	if err := f.resolver.HandleMove(context.Background(), "proj", filepath.Join(f.base, "elsewhere")); err != nil {
		t.Fatalf("HandleMove failed: %v", err)
	}

	// Cancel applies no resolution: the record keeps the old path and
	// the pending moved status.
	item, err := f.store.GetItem("proj")
	if err != nil {
		t.Fatal(err)
	}
	if item.OriginalPath != oldPath {
		t.Errorf("OriginalPath = %q, want %q", item.OriginalPath, oldPath)
	}
	if item.Status != schema.StatusGhostMoved {
		t.Errorf("status = %q, want ghost_moved", item.Status)
	}
}

func TestPendingDecisionCoalesces(t *testing.T) {
	f := newFixture(t)
	f.trackAndPull(t)
	if err := os.RemoveAll(f.original); err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	blocking := &blockingPrompter{
		release: release,
		answer:  ChoiceKeepGhost,
		entered: make(chan struct{}),
	}
	f.resolver.prompt = blocking

	done := make(chan error, 1)
	go func() {
		done <- f.resolver.HandleDelete(context.Background(), "proj")
	}()
	<-blocking.entered

	// A second event for the same alias while the prompt is open is
	// dropped, not dispatched as a second prompt.
	if err := f.resolver.HandleDelete(context.Background(), "proj"); err != nil {
		t.Fatalf("coalesced HandleDelete failed: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("HandleDelete failed: %v", err)
	}
	if blocking.calls != 1 {
		t.Errorf("prompter called %d times, want 1", blocking.calls)
	}
}

// blockingPrompter blocks inside Choose until released.
type blockingPrompter struct {
	release <-chan struct{}
	answer  Choice
	calls   int
	once    sync.Once
	entered chan struct{}
}

func (p *blockingPrompter) Choose(ctx context.Context, prompt string, options []Choice) (Choice, error) {
	p.calls++
	p.once.Do(func() { close(p.entered) })
	<-p.release
	return p.answer, nil
}

func (p *blockingPrompter) Report(message string) {}
