// Package commands implements the twinsync command line.
package commands

import (
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "twinsync",
	Short: "Oura twin sync - connect two Oura accounts and compare their daily data",
	Long: `twinsync connects two Oura accounts ("twin_a" and "twin_b") through OAuth2,
keeps their tokens fresh and fetches a normalized per-day dataset for each.

Examples:
  twinsync credentials set --client-id ID --client-secret SECRET
  twinsync login twin_a
  twinsync fetch --twin twin_a
  twinsync serve`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (default $TWINSYNC_CONFIG)")
}
