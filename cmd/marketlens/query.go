package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/newthinker/marketlens/internal/app"
	"github.com/newthinker/marketlens/internal/market"
)

var (
	narrative   bool
	routeSignal bool
)

var quoteCmd = &cobra.Command{
	Use:   "quote SYMBOL",
	Short: "Fetch a quote through the provider fallback chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := build(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer rt.Close()

		q, err := rt.market.Quote(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, q)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze SYMBOL",
	Short: "Run the combined analysis for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := build(cmd.Context(), routeSignal)
		if err != nil {
			return err
		}
		defer rt.Close()

		a, err := rt.market.Analysis(cmd.Context(), args[0], market.AnalysisOptions{Narrative: narrative})
		if err != nil {
			return err
		}
		if err := printJSON(cmd, a); err != nil {
			return err
		}
		if !routeSignal {
			return nil
		}

		sig, ok := app.SignalFrom(a, time.Now())
		switch {
		case !ok:
			fmt.Fprintln(cmd.ErrOrStderr(), "no signal: recommendation is hold")
		case rt.router.Route(cmd.Context(), sig):
			fmt.Fprintf(cmd.ErrOrStderr(), "routed %s %s\n", sig.Action, sig.Symbol)
		default:
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s held back by the router\n", sig.Action, sig.Symbol)
		}
		return nil
	},
}

var newsCmd = &cobra.Command{
	Use:   "news [SYMBOL]",
	Short: "Show scored news for a symbol, or general market news",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := build(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer rt.Close()

		category, _ := cmd.Flags().GetString("category")
		if len(args) == 0 {
			items, err := rt.market.MarketNews(cmd.Context(), category)
			if err != nil {
				return err
			}
			return printJSON(cmd, items)
		}
		items, err := rt.market.News(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, items)
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop cached payloads (all, one symbol, or one key prefix)",
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol, _ := cmd.Flags().GetString("symbol")
		prefix, _ := cmd.Flags().GetString("prefix")
		if symbol != "" && prefix != "" {
			return fmt.Errorf("--symbol and --prefix are mutually exclusive")
		}

		rt, err := build(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer rt.Close()

		var n int
		switch {
		case symbol != "":
			n, err = rt.market.ClearSymbolCache(cmd.Context(), symbol)
		case prefix != "":
			n, err = rt.market.ClearCachePrefix(cmd.Context(), prefix)
		default:
			n, err = rt.market.ClearCache(cmd.Context())
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries\n", n)
		return nil
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	analyzeCmd.Flags().BoolVar(&narrative, "narrative", false, "ask the configured LLM for a written summary")
	analyzeCmd.Flags().BoolVar(&routeSignal, "route", false, "send the resulting signal through the router and notifiers")
	newsCmd.Flags().String("category", "general", "market news category when no symbol is given")
	cacheClearCmd.Flags().String("symbol", "", "only drop entries of this symbol")
	cacheClearCmd.Flags().String("prefix", "", "only drop entries under this key prefix")

	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(quoteCmd, analyzeCmd, newsCmd, cacheCmd)
}

