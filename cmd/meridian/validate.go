package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/meridian/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without starting the server.
Exits non-zero if the configuration is invalid.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}

		regions := 0
		endpoints := 0
		for _, specs := range cfg.Proxies {
			regions++
			endpoints += len(specs)
		}

		fmt.Printf("Configuration OK: %s\n", cfgFile)
		fmt.Printf("  strategy:  %s\n", cfg.Balancer.Strategy)
		fmt.Printf("  regions:   %d configured\n", regions)
		fmt.Printf("  endpoints: %d configured\n", endpoints)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
