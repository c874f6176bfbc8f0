package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clutter-sh/clutter/internal/ui"
	"github.com/clutter-sh/clutter/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:     "verify",
	GroupID: "maintenance",
	Short:   "Check references and registered symlinks",
	Long: `Verify walks every tracked item, checks that its reference points at
the recorded original, and offers to repair broken ones. Manually
registered symlinks are validated in a second pass; broken ones are
reported but never repaired automatically.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		svc := verify.NewService(a.store, a.refs, a.prompter)
		res, err := svc.Run(cmd.Context())
		if err != nil {
			fail(err)
		}

		fmt.Printf("%s %d checked, %d healthy, %d repaired, %d broken\n",
			ui.RenderHeader("References:"), res.Checked, res.Healthy, res.Repaired, res.Broken)
		if res.SymlinksChecked > 0 {
			fmt.Printf("%s %d checked, %d broken\n",
				ui.RenderHeader("Symlinks:"), res.SymlinksChecked, res.SymlinksBroken)
		}
		if res.Broken > 0 || res.SymlinksBroken > 0 {
			fmt.Println(ui.RenderWarn("Some problems remain. See the report above."))
		}
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
