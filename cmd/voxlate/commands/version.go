package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set via -ldflags at release time.
var (
	version = "dev"
	commit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("voxlate %s (%s)\n", version, commit)
		if verbose {
			fmt.Printf("  go:     %s\n", runtime.Version())
			if store, err := getStore(); err == nil {
				fmt.Printf("  config: %s\n", store.Dir())
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
