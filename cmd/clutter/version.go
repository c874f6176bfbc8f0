package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/clutter-sh/clutter/internal/version"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	GroupID: "maintenance",
	Short:   "Print the clutter version",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("clutter %s (%s/%s)\n", version.Canonical(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
