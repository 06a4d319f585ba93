package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "horizon",
	Short: "Streaming pattern engine for tagged event feeds",
	Long: "Horizon watches a stream of tagged, weighted events, finds recurring patterns, " +
		"tracks decaying resonance per tag and reports emerging trends, quiet periods and anomalies.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (TOML, YAML or JSON)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(pushCmd)
}
