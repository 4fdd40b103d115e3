package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "menuguard",
	Short: "Menu resilience layer",
	Long: `Menuguard keeps a two-panel TV menu responsive: it tracks UI resources,
reclaims them under memory pressure, arbitrates focus between panels and
recovers from classified errors.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}
