// Command marketlens serves and queries aggregated market data.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Persistent flags shared by every subcommand.
var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "marketlens",
	Short: "Multi-provider market data aggregation and analysis",
	Long: `marketlens pulls quotes, indicators, news and sentiment from Polygon,
Alpha Vantage, Finnhub, Twelve Data and Twitter, falls back between them
when one fails, and serves combined analyses over a JSON API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "path to the YAML config (default: built-in defaults)")
	flags.BoolVarP(&debug, "debug", "d", false, "debug logging and development encoder")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "marketlens:", err)
		os.Exit(1)
	}
}
