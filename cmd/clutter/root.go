package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clutter-sh/clutter/internal/config"
	"github.com/clutter-sh/clutter/internal/lock"
	"github.com/clutter-sh/clutter/internal/refs"
	"github.com/clutter-sh/clutter/internal/sandbox"
	"github.com/clutter-sh/clutter/internal/schema"
	"github.com/clutter-sh/clutter/internal/snapshot"
	"github.com/clutter-sh/clutter/internal/store"
	"github.com/clutter-sh/clutter/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:   "clutter",
	Short: "Zero-copy project tracking with safe working copies",
	Long: `Clutter tracks directories without copying them. A tracked project
gets an isolated working copy on demand (pull), edits happen in the
copy, and changes merge back to the original (commit) with automatic
safety snapshots. A background watcher notices when a tracked original
is deleted or moved and walks you through recovery.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "tracking", Title: "Tracking:"},
		&cobra.Group{ID: "index", Title: "File index:"},
		&cobra.Group{ID: "daemon", Title: "Watcher:"},
		&cobra.Group{ID: "maintenance", Title: "Maintenance:"},
	)
}

// app bundles the wired components a command invocation needs.
type app struct {
	cfg      *config.Config
	store    *store.Store
	refs     *refs.Manager
	snaps    *snapshot.Store
	locks    *lock.Manager
	sandbox  *sandbox.Manager
	prompter *ui.Prompter
	ignore   *config.IgnoreRules
}

// openApp loads configuration, prepares the base directory, and opens
// the registry.
func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureLayout(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(); err != nil {
		st.Close()
		return nil, err
	}

	rules, err := config.LoadIgnoreRules(cfg.IgnoreFile)
	if err != nil {
		st.Close()
		return nil, err
	}

	rm := refs.NewManager(cfg.RefsDir())
	ss := snapshot.NewStore(cfg.SnapshotsDir())
	lm := lock.NewManager(cfg.LocksDir(), cfg.LockWait)

	return &app{
		cfg:      cfg,
		store:    st,
		refs:     rm,
		snaps:    ss,
		locks:    lm,
		sandbox:  sandbox.NewManager(st, rm, ss, lm, cfg.SandboxesDir()),
		prompter: ui.NewPrompter(),
		ignore:   rules,
	}, nil
}

// Close releases the registry connection.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// fail prints a one-line explanation, with the remediating command where
// one exists, and exits.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("Error:"), err)
	if hint := remediation(err); hint != "" {
		fmt.Fprintf(os.Stderr, "%s\n", ui.RenderMuted(hint))
	}
	os.Exit(1)
}

// remediation maps the error taxonomy to next-step hints.
func remediation(err error) string {
	switch {
	case errors.Is(err, schema.ErrEmptySandbox):
		return "The sandbox holds nothing to commit. Run `clutter pull <alias>` first."
	case errors.Is(err, schema.ErrUnknownAlias):
		return "Run `clutter status` to list tracked aliases."
	case errors.Is(err, schema.ErrDuplicateAlias):
		return "Pick a different alias, or `clutter untrack` the existing one."
	case errors.Is(err, schema.ErrOriginalMissing):
		return "The original is gone from disk. If the watcher is running it will offer recovery; otherwise run `clutter watch` once."
	case errors.Is(err, schema.ErrConcurrentModification):
		return "Another clutter process holds this alias. Retry in a moment."
	case errors.Is(err, schema.ErrGhostUnrecoverable):
		return "This item was never pulled, so no sandbox copy exists to restore."
	case errors.Is(err, schema.ErrSnapshotWrite):
		return "The safety snapshot could not be written; nothing was changed. Check disk space and permissions."
	}
	return ""
}
