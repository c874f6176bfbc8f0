// Command clutter tracks project directories without copying them,
// materializes isolated working copies on demand, and merges changes
// back with automatic safety snapshots.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
