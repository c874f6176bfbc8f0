package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clutter-sh/clutter/internal/daemon"
	"github.com/clutter-sh/clutter/internal/schema"
	"github.com/clutter-sh/clutter/internal/ui"
	"github.com/clutter-sh/clutter/internal/version"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: "maintenance",
	Short:   "Check the installation for problems",
	Long: `Doctor inspects the base directory, the registry database, and the
running daemon, and reports anything that needs attention.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		failures := 0
		check := func(name string, err error) {
			if err != nil {
				failures++
				fmt.Printf("  %s %s: %v\n", ui.RenderError("✗"), name, err)
				return
			}
			fmt.Printf("  %s %s\n", ui.RenderSuccess("✓"), name)
		}
		warn := func(name, detail string) {
			fmt.Printf("  %s %s: %s\n", ui.RenderWarn("!"), name, detail)
		}

		fmt.Println(ui.RenderHeader("clutter doctor"))

		check("database integrity", checkDatabase(a))
		check("directory layout", checkLayout(a))
		check("symlink support", checkSymlinkSupport(a))

		if pid, running, err := daemonState(a); err != nil {
			warn("watcher daemon", err.Error())
		} else if running {
			fmt.Printf("  %s watcher daemon running (pid %d)\n", ui.RenderSuccess("✓"), pid)
		} else {
			warn("watcher daemon", "not running; deletions and moves of tracked originals go unnoticed")
		}

		brokenRefs, err := countBrokenRefs(cmd, a)
		if err != nil {
			check("references", err)
		} else if brokenRefs > 0 {
			warn("references", fmt.Sprintf("%d broken; run `clutter verify` to repair", brokenRefs))
		} else {
			fmt.Printf("  %s references\n", ui.RenderSuccess("✓"))
		}

		if newer := newestSandboxVersion(cmd, a); newer != "" {
			warn("version", fmt.Sprintf("a sandbox was written by clutter %s, this build is %s; upgrade", newer, version.Canonical()))
		}

		if failures > 0 {
			os.Exit(1)
		}
	},
}

// checkDatabase runs the sqlite integrity check.
func checkDatabase(a *app) error {
	var result string
	row := a.store.RawDB().QueryRow(`PRAGMA integrity_check`)
	if err := row.Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity_check reported %q", result)
	}
	return nil
}

// checkLayout verifies the base directory tree is present and writable.
func checkLayout(a *app) error {
	for _, dir := range []string{
		a.cfg.BaseDir,
		a.cfg.RefsDir(),
		a.cfg.SandboxesDir(),
		a.cfg.SnapshotsDir(),
		a.cfg.LocksDir(),
	} {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
	}
	probe := filepath.Join(a.cfg.BaseDir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("base directory not writable: %w", err)
	}
	return os.Remove(probe)
}

// checkSymlinkSupport probes whether the filesystem under the base
// directory accepts symlinks.
func checkSymlinkSupport(a *app) error {
	link := filepath.Join(a.cfg.BaseDir, ".doctor-symlink-probe")
	_ = os.Remove(link)
	if err := os.Symlink(a.cfg.BaseDir, link); err != nil {
		return fmt.Errorf("cannot create symlinks here: %w", err)
	}
	return os.Remove(link)
}

// daemonState reads the pid file and probes whether that process is
// alive.
func daemonState(a *app) (int, bool, error) {
	pid, err := daemon.ReadPidFile(a.cfg.PidFile())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, false, nil
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return pid, false, nil
	}
	return pid, true, nil
}

// countBrokenRefs checks each active item's reference without repairing.
func countBrokenRefs(cmd *cobra.Command, a *app) (int, error) {
	items, err := a.store.ListItems(cmd.Context())
	if err != nil {
		return 0, err
	}
	broken := 0
	for _, item := range items {
		if err := a.refs.Check(item.Alias, item.OriginalPath); err != nil {
			if errors.Is(err, schema.ErrMissingReference) {
				broken++
				continue
			}
			return 0, err
		}
	}
	return broken, nil
}

// newestSandboxVersion returns the version string of any sandbox marker
// written by a build newer than this one, empty when none is.
func newestSandboxVersion(cmd *cobra.Command, a *app) string {
	items, err := a.store.ListItems(cmd.Context())
	if err != nil {
		return ""
	}
	for _, item := range items {
		marker, err := a.sandbox.Marker(item.Alias)
		if err != nil {
			continue
		}
		if marker.Version != "" && version.OlderThan(marker.Version) {
			return marker.Version
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
