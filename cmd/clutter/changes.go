package main

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/clutter-sh/clutter/internal/store"
	"github.com/clutter-sh/clutter/internal/ui"
)

var (
	changesLimit int
	changesSince string
)

var changesCmd = &cobra.Command{
	Use:     "changes [ALIAS]",
	GroupID: "tracking",
	Short:   "Show the change log, newest first",
	Long: `Changes lists the recorded lifecycle events. With an alias only that
alias's history is shown. --since accepts natural language, for
example "yesterday", "3 days ago", or "last monday".`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		filter := store.ChangesFilter{Limit: changesLimit}
		if len(args) == 1 {
			filter.Alias = args[0]
		}
		if changesSince != "" {
			since, err := parseSince(changesSince)
			if err != nil {
				fail(err)
			}
			filter.Since = since
		}

		entries, err := a.store.RecentChanges(cmd.Context(), filter)
		if err != nil {
			fail(err)
		}
		if len(entries) == 0 {
			fmt.Println(ui.RenderMuted("No changes recorded."))
			return
		}
		for _, e := range entries {
			line := fmt.Sprintf("  %s  %-8s %s",
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				string(e.Action), ui.RenderAccent(e.Alias))
			if e.Outcome != "" {
				line += "  " + ui.RenderMuted(e.Outcome)
			}
			fmt.Println(line)
		}
	},
}

// parseSince accepts natural-language cutoffs like "2 days ago".
func parseSince(text string) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(text, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --since %q: %w", text, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("parse --since %q: no time expression recognized", text)
	}
	return result.Time, nil
}

func init() {
	changesCmd.Flags().IntVar(&changesLimit, "limit", 50, "maximum entries to show")
	changesCmd.Flags().StringVar(&changesSince, "since", "", "only entries after this moment (natural language)")
	rootCmd.AddCommand(changesCmd)
}
