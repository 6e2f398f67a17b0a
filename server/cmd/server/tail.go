package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/livefeed/livefeed/pkg/types"
	"github.com/livefeed/livefeed/server/internal/probe"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print live events from a running server",
	Long: `Subscribe to a running livefeed server and print every event as one
JSON line until interrupted.

Example:
  livefeed tail --url http://localhost:3000
  livefeed tail --url http://localhost:3000 --path /data`,
	RunE: runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)

	tailCmd.Flags().String("url", "http://localhost:3000", "base URL of the server")
	tailCmd.Flags().String("path", "/data", "subscription path")
}

func runTail(cmd *cobra.Command, args []string) error {
	base, _ := cmd.Flags().GetString("url")
	path, _ := cmd.Flags().GetString("path")

	u, err := probe.SubscribeURL(base, path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	return probe.Tail(ctx, u, func(ev types.Event) {
		line, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintln(out, string(line))
	})
}
