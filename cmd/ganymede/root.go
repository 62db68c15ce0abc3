package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ganymede",
	Short: "Ganymede - Mercator agent governance core",
	Long: `Ganymede is the governance core for autonomous agent fleets.

It validates every agent action against a read-only policy rule set,
records decisions in an append-only revisioned state store, watches
agent and dependency health, and owns containment:
  - Policy validation with weighted compliance scoring
  - Append-only state with per-key revision history and rollback
  - Agent, dependency, drift, and resource health monitoring
  - Agent isolation and system-wide emergency halt

For more information, visit: https://github.com/mercator-hq/ganymede`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.CompletionOptions.DisableDefaultCmd = false
}
