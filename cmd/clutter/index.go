package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/clutter-sh/clutter/internal/index"
	"github.com/clutter-sh/clutter/internal/schema"
	"github.com/clutter-sh/clutter/internal/ui"
)

var (
	findLimit int
	findAI    bool
	findModel string
)

var scanCmd = &cobra.Command{
	Use:     "scan PATH...",
	GroupID: "index",
	Short:   "Index files under the given directories",
	Long: `Scan walks each directory and records every readable file in the
index. Ignore rules from the configuration apply. Index entries for
files that disappeared since the last scan are pruned.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		ix := index.New(a.store, a.ignore)
		for _, root := range args {
			res, err := ix.Scan(cmd.Context(), root)
			if err != nil {
				fail(err)
			}
			fmt.Printf("%s %s: %d indexed, %d skipped, %d pruned in %s\n",
				ui.RenderSuccess("✓"), root, res.Indexed, res.Skipped, res.Pruned,
				res.Duration.Round(time.Millisecond))
		}
	},
}

var findCmd = &cobra.Command{
	Use:     "find QUERY",
	GroupID: "index",
	Short:   "Search the file index",
	Long: `Find searches the index with full-text matching on names and paths.
With --ai the candidates are reranked by a language model against the
whole query, which helps with descriptive searches like
"the screenshot from the demo last week".`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		ix := index.New(a.store, a.ignore)

		if findAI {
			searcher := index.NewAISearcher(findModel)
			hits, err := searcher.Search(cmd.Context(), ix, args[0])
			if err != nil {
				fail(err)
			}
			printHits(hits)
			return
		}

		hits, err := ix.Find(cmd.Context(), args[0], findLimit)
		if err != nil {
			fail(err)
		}
		printHits(hits)
	},
}

var clearForce bool

var clearCmd = &cobra.Command{
	Use:     "clear",
	GroupID: "index",
	Short:   "Wipe the file index",
	Long: `Clear removes every entry from the file index. Tracked items,
snapshots, and the change log are untouched. Asks for confirmation
unless --force is given.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		if !clearForce {
			ok, err := a.prompter.Confirm(cmd.Context(), "Clear the whole file index?")
			if err != nil {
				fail(err)
			}
			if !ok {
				fmt.Println(ui.RenderMuted("Cancelled."))
				return
			}
		}

		ix := index.New(a.store, a.ignore)
		cleared, err := ix.Clear(cmd.Context())
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Index cleared (%d entries)\n", ui.RenderSuccess("✓"), cleared)
	},
}

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "index",
	Short:   "Show file index statistics",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		ix := index.New(a.store, a.ignore)
		stats, err := ix.Stats(cmd.Context())
		if err != nil {
			fail(err)
		}

		fmt.Println(ui.RenderHeader("File index"))
		fmt.Printf("  Files: %d\n", stats.TotalFiles)
		fmt.Printf("  Size:  %s\n", humanSize(stats.TotalSize))
		if stats.LastScan != nil {
			fmt.Printf("  Last scan: %s\n", humanTime(*stats.LastScan))
		}
		if len(stats.ByExt) > 0 {
			fmt.Println("  By extension:")
			for _, ext := range sortedExts(stats.ByExt) {
				fmt.Printf("    %-10s %d\n", ext, stats.ByExt[ext])
			}
		}
	},
}

func printHits(hits []*schema.FileRecord) {
	if len(hits) == 0 {
		fmt.Println(ui.RenderMuted("No matches."))
		return
	}
	for _, h := range hits {
		fmt.Printf("  %s  %s\n", h.Path, ui.RenderMuted(humanSize(h.Size)))
	}
}

// sortedExts orders extensions by descending count, ties by name.
func sortedExts(byExt map[string]int64) []string {
	exts := make([]string, 0, len(byExt))
	for ext := range byExt {
		exts = append(exts, ext)
	}
	sort.Slice(exts, func(i, j int) bool {
		if byExt[exts[i]] != byExt[exts[j]] {
			return byExt[exts[i]] > byExt[exts[j]]
		}
		return exts[i] < exts[j]
	})
	return exts
}

// humanSize renders a byte count with a binary unit.
func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	findCmd.Flags().IntVar(&findLimit, "limit", 25, "maximum results")
	findCmd.Flags().BoolVar(&findAI, "ai", false, "rerank results with a language model")
	findCmd.Flags().StringVar(&findModel, "model", "", "model for --ai (default claude-sonnet-4-0)")
	clearCmd.Flags().BoolVar(&clearForce, "force", false, "skip the confirmation prompt")
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(statsCmd)
}
