package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/livefeed/livefeed/server/internal/probe"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize a running server's metrics",
	Long: `Scrape /metrics from a running livefeed server and print the record
count, subscriber count and per-operation totals.

Example:
  livefeed stats --url http://localhost:3000`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().String("url", "http://localhost:3000", "base URL of the server")
}

func runStats(cmd *cobra.Command, args []string) error {
	base, _ := cmd.Flags().GetString("url")
	st, err := probe.FetchStats(cmd.Context(), nil, base)
	if err != nil {
		return fmt.Errorf("scrape %s: %w", base, err)
	}
	printStats(cmd.OutOrStdout(), st)
	return nil
}

func printStats(w io.Writer, st *probe.Stats) {
	fmt.Fprintf(w, "records:          %.0f\n", st.Records)
	fmt.Fprintf(w, "subscribers:      %.0f\n", st.Subscribers)
	fmt.Fprintf(w, "ticks:            %.0f\n", st.Ticks)
	fmt.Fprintf(w, "slow disconnects: %.0f\n", st.SlowDisconnects)
	printSplit(w, "operations", st.Operations)
	printSplit(w, "events", st.Events)
}

func printSplit(w io.Writer, title string, m map[string]float64) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-8s %.0f\n", k, m[k])
	}
}
