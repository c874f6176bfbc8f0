package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/clutter-sh/clutter/internal/schema"
	"github.com/clutter-sh/clutter/internal/ui"
)

var linkCmd = &cobra.Command{
	Use:     "link TARGET LINK",
	GroupID: "maintenance",
	Short:   "Create a symlink and register it for verification",
	Long: `Link creates a symbolic link and records it in the registry so that
` + "`clutter verify`" + ` can report when it breaks.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		target, err := filepath.Abs(args[0])
		if err != nil {
			fail(err)
		}
		linkPath, err := filepath.Abs(args[1])
		if err != nil {
			fail(err)
		}
		if _, err := os.Stat(target); err != nil {
			fail(fmt.Errorf("link target: %w", err))
		}
		if err := os.Symlink(target, linkPath); err != nil {
			fail(err)
		}
		link := &schema.Symlink{
			LinkPath:   linkPath,
			TargetPath: target,
			CreatedAt:  time.Now().UTC(),
		}
		if err := a.store.RegisterSymlinkContext(cmd.Context(), link); err != nil {
			fail(err)
		}
		fmt.Printf("%s %s -> %s\n", ui.RenderSuccess("✓"), linkPath, target)
	},
}

var unlinkCmd = &cobra.Command{
	Use:     "unlink LINK",
	GroupID: "maintenance",
	Short:   "Remove a registered symlink",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		linkPath, err := filepath.Abs(args[0])
		if err != nil {
			fail(err)
		}
		if err := os.Remove(linkPath); err != nil && !os.IsNotExist(err) {
			fail(err)
		}
		if err := a.store.RemoveSymlink(cmd.Context(), linkPath); err != nil {
			fail(err)
		}
		fmt.Printf("%s Removed %s\n", ui.RenderSuccess("✓"), linkPath)
	},
}

func init() {
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(unlinkCmd)
}
