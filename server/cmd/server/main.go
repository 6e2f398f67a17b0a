// Package main is the entry point for the livefeed CLI.
//
// Usage:
//
//	livefeed serve -c config.yaml       # Start the service
//	livefeed validate -c config.yaml    # Validate configuration
//	livefeed stats --url http://host    # Summarize a running server's metrics
//	livefeed tail --url http://host     # Print live events
//	livefeed version                    # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time via -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "livefeed",
	Short: "Synthetic live-data service",
	Long: `livefeed keeps a collection of timestamped text records, mutates it at
random, serves it over GET /data and pushes every change to WebSocket
subscribers connected on /data.

Quick start:
  livefeed serve                 # defaults, port 3000
  curl localhost:3000/data?start=0
  livefeed tail --url http://localhost:3000`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "livefeed %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command. Cobra prints the error; we only set the exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
