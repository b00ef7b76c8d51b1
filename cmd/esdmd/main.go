// Command esdmd is the entropy source and DRNG manager daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "esdmd",
	Short: "Entropy source and DRNG manager daemon",
	Long: `esdmd collects entropy from heterogeneous noise sources, tracks a
conservative estimate of what has been gathered, and drives one or
more deterministic random number generators through the
uninitialized -> minimally-seeded -> fully-seeded -> operational
lifecycle.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: platform config dir)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
