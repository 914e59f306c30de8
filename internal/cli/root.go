// Package cli wires the sichter commands.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sichter",
	Short: "Single-node control plane for repository inspection",
	Long:  "Accepts repository-inspection jobs over HTTP, drains them through a durable filesystem queue, and publishes results as append-only events plus optional pull requests.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
