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
	Use:   "meridian",
	Short: "Meridian - geo-distributed residential proxy sharding engine",
	Long: `Meridian routes outbound HTTP traffic through a geographically sharded
pool of residential proxy endpoints, choosing the best proxy for a
request while respecting per-region quotas, observed health, and domain
stickiness.

It provides:
  - Per-region proxy pools with health and latency tracking
  - Weighted proxy selection with nearest-region failover
  - Pluggable cross-region balancing strategies
  - Prometheus metrics and a JSON admin API`,
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
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
