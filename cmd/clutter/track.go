package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/clutter-sh/clutter/internal/schema"
	"github.com/clutter-sh/clutter/internal/ui"
)

var trackCmd = &cobra.Command{
	Use:     "track PATH [ALIAS]",
	GroupID: "tracking",
	Short:   "Start tracking a directory without copying it",
	Long: `Track registers a directory under an alias. Nothing is copied:
the sandbox starts empty and stays empty until the first pull. A
symbolic reference is created under the base directory for
discoverability.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		path := args[0]
		alias := aliasForPath(path, args)

		item, err := a.sandbox.Track(cmd.Context(), alias, path)
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Tracking %s as %s\n",
			ui.RenderSuccess("✓"), item.OriginalPath, ui.RenderAccent(item.Alias))
		fmt.Println(ui.RenderMuted("Run `clutter pull " + item.Alias + "` to materialize a working copy."))
	},
}

var untrackCmd = &cobra.Command{
	Use:     "untrack ALIAS",
	GroupID: "tracking",
	Short:   "Stop tracking an alias",
	Long: `Untrack removes the registry record, the reference, and the sandbox
for an alias. Snapshots are kept for audit.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		if err := a.sandbox.Untrack(cmd.Context(), args[0]); err != nil {
			fail(err)
		}
		fmt.Printf("%s Untracked %s (snapshots retained)\n",
			ui.RenderSuccess("✓"), ui.RenderAccent(args[0]))
	},
}

var pullCmd = &cobra.Command{
	Use:     "pull ALIAS",
	GroupID: "tracking",
	Short:   "Materialize the original into the sandbox",
	Long: `Pull copies the original into the alias's sandbox. Existing sandbox
content is preserved in a pre_pull snapshot before being replaced. The
original is only read.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		item, err := a.sandbox.Pull(cmd.Context(), args[0])
		if err != nil {
			fail(err)
		}
		rememberWorked(a, item.Alias)
		fmt.Printf("%s Pulled %s into %s\n",
			ui.RenderSuccess("✓"), item.OriginalPath, a.sandbox.Dir(item.Alias))
	},
}

var commitCmd = &cobra.Command{
	Use:     "commit ALIAS",
	GroupID: "tracking",
	Short:   "Merge sandbox changes back into the original",
	Long: `Commit copies every file in the sandbox over its counterpart in the
original, creating new files as needed. Files that exist only in the
original are left alone; deletions never propagate. A pre_commit
snapshot of the original is taken first and must succeed before
anything is overwritten.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		item, err := a.sandbox.Commit(cmd.Context(), args[0])
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Committed %s to %s\n",
			ui.RenderSuccess("✓"), ui.RenderAccent(item.Alias), item.OriginalPath)
	},
}

var restoreCmd = &cobra.Command{
	Use:     "restore ALIAS",
	GroupID: "tracking",
	Short:   "Recreate a lost original from the sandbox copy",
	Long: `Restore rebuilds the original directory from the sandbox after the
original was deleted on disk. It only works for items that have been
pulled at least once.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		item, err := a.sandbox.Restore(cmd.Context(), args[0])
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Restored %s from its sandbox\n",
			ui.RenderSuccess("✓"), item.OriginalPath)
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "tracking",
	Short:   "List tracked items and their state",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		items, err := a.store.ListItems(cmd.Context())
		if err != nil {
			fail(err)
		}
		if len(items) == 0 {
			fmt.Println(ui.RenderMuted("Nothing tracked. Run `clutter track <path>` to start."))
			return
		}

		fmt.Println(ui.RenderHeader("Tracked items"))
		for _, item := range items {
			fmt.Printf("  %s  %s  %s\n",
				renderStatus(item.Status), ui.RenderAccent(item.Alias), item.OriginalPath)
			detail := "never pulled"
			if item.LastPulledAt != nil {
				detail = "pulled " + humanTime(*item.LastPulledAt)
			}
			if item.LastCommittedAt != nil {
				detail += ", committed " + humanTime(*item.LastCommittedAt)
			}
			fmt.Printf("      %s\n", ui.RenderMuted(detail))
		}
	},
}

var snapshotsCmd = &cobra.Command{
	Use:     "snapshots ALIAS",
	GroupID: "tracking",
	Short:   "List safety snapshots for an alias, newest first",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		infos, err := a.snaps.List(args[0])
		if err != nil {
			fail(err)
		}
		if len(infos) == 0 {
			fmt.Println(ui.RenderMuted("No snapshots for " + args[0] + "."))
			return
		}
		for _, info := range infos {
			fmt.Printf("  %s  %s  %s\n",
				info.Taken.Format(time.RFC3339), string(info.Kind), ui.RenderMuted(a.snaps.Dir(info)))
		}
	},
}

// renderStatus colors a lifecycle state.
func renderStatus(status schema.ItemStatus) string {
	switch status {
	case schema.StatusActive:
		return ui.RenderSuccess("active ")
	case schema.StatusGhost:
		return ui.RenderWarn("ghost  ")
	case schema.StatusGhostDeleted:
		return ui.RenderError("deleted")
	case schema.StatusGhostMoved:
		return ui.RenderError("moved  ")
	default:
		return string(status)
	}
}

// humanTime renders a timestamp the way status output wants it.
func humanTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

func init() {
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(untrackCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(snapshotsCmd)
}
