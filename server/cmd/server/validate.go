package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/livefeed/livefeed/server/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a livefeed configuration file without starting the server.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  livefeed validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	g := cfg.Generator
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Server.HTTPPort)
	fmt.Fprintf(out, "  Store:         %s\n", cfg.Store.Backend)
	fmt.Fprintf(out, "  Warm-up:       %d records\n", g.WarmupCount)
	fmt.Fprintf(out, "  Tick:          %s, up to %d ops\n", g.TickInterval, g.MaxOpsPerTick)
	fmt.Fprintf(out, "  Weights:       insert %d, mutate %d, delete %d\n",
		g.Weights.Insert, g.Weights.Mutate, g.Weights.Delete)
	fmt.Fprintf(out, "  Subscribe on:  %s\n", cfg.Hub.Path)

	return nil
}
