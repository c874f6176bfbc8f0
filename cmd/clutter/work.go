package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clutter-sh/clutter/internal/schema"
	"github.com/clutter-sh/clutter/internal/ui"
)

var workCmd = &cobra.Command{
	Use:     "work [NAME_OR_PATH]",
	GroupID: "tracking",
	Short:   "Track (if needed) and pull in one step",
	Long: `Work is the fast path into a project. Given a path, it tracks the
directory when it is not tracked yet, pulls it, and remembers it as the
last worked item. Given an alias, it pulls that alias. With no
argument it reuses the last worked alias.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		ctx := cmd.Context()

		target := ""
		if len(args) == 1 {
			target = args[0]
		} else {
			target, err = lastWorked(a)
			if err != nil {
				fail(err)
			}
		}

		alias, err := resolveWorkTarget(a, cmd, target)
		if err != nil {
			fail(err)
		}

		item, err := a.sandbox.Pull(ctx, alias)
		if err != nil {
			fail(err)
		}
		rememberWorked(a, item.Alias)
		fmt.Printf("%s Working on %s\n", ui.RenderSuccess("✓"), ui.RenderAccent(item.Alias))
		fmt.Println(ui.RenderMuted("Sandbox: " + a.sandbox.Dir(item.Alias)))
	},
}

var resumeCmd = &cobra.Command{
	Use:     "resume",
	GroupID: "tracking",
	Short:   "Pull the last worked alias again",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		alias, err := lastWorked(a)
		if err != nil {
			fail(err)
		}
		item, err := a.sandbox.Pull(cmd.Context(), alias)
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Resumed %s\n", ui.RenderSuccess("✓"), ui.RenderAccent(item.Alias))
		fmt.Println(ui.RenderMuted("Sandbox: " + a.sandbox.Dir(item.Alias)))
	},
}

// resolveWorkTarget turns a work argument into a tracked alias, tracking
// the directory first when the argument is a path to an untracked one.
func resolveWorkTarget(a *app, cmd *cobra.Command, target string) (string, error) {
	ctx := cmd.Context()

	// Alias match wins over path interpretation.
	if _, err := a.store.GetItemContext(ctx, target); err == nil {
		return target, nil
	} else if !errors.Is(err, schema.ErrUnknownAlias) {
		return "", err
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	if item, err := a.store.GetItemByPath(ctx, abs); err == nil {
		return item.Alias, nil
	} else if !errors.Is(err, schema.ErrUnknownAlias) {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s is neither a tracked alias nor a directory", schema.ErrUnknownAlias, target)
	}

	alias := deriveAlias(abs)
	item, err := a.sandbox.Track(ctx, alias, abs)
	if err != nil {
		return "", err
	}
	fmt.Printf("%s Tracking %s as %s\n",
		ui.RenderSuccess("✓"), item.OriginalPath, ui.RenderAccent(item.Alias))
	return item.Alias, nil
}

// aliasForPath picks the alias for track: the explicit second argument
// when given, the sanitized base name otherwise.
func aliasForPath(path string, args []string) string {
	if len(args) == 2 {
		return args[1]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return deriveAlias(abs)
}

var aliasCleaner = regexp.MustCompile(`[^a-z0-9._-]+`)

// deriveAlias sanitizes a directory base name into an alias.
func deriveAlias(abs string) string {
	name := strings.ToLower(filepath.Base(abs))
	name = aliasCleaner.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if name == "" {
		name = "project"
	}
	return name
}

// rememberWorked records the alias for `resume`. Failure here never
// fails the command.
func rememberWorked(a *app, alias string) {
	if err := os.WriteFile(a.cfg.ResumeFile(), []byte(alias+"\n"), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not record last worked alias: %v\n", err)
	}
}

// lastWorked reads the alias recorded by the previous work/pull.
func lastWorked(a *app) (string, error) {
	data, err := os.ReadFile(a.cfg.ResumeFile())
	if err != nil {
		return "", fmt.Errorf("nothing to resume: no previous `clutter work` recorded")
	}
	alias := strings.TrimSpace(string(data))
	if alias == "" {
		return "", fmt.Errorf("nothing to resume: no previous `clutter work` recorded")
	}
	return alias, nil
}

func init() {
	rootCmd.AddCommand(workCmd)
	rootCmd.AddCommand(resumeCmd)
}
