package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "SolRun"
	version = "v0.6.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     "solrun",
		Short:   "Risk-gated trading agent for the Solana network",
		Version: version,
		Long: `🤖 SolRun is a risk-gated trading agent for the Solana network.

Each cycle it snapshots the watchlist, scores market sentiment, turns
price momentum into trade signals, walks every admitted signal through
the Jupiter swap pipeline, and sweeps open positions for stop-loss and
take-profit exits.

TRADING IS DISABLED BY DEFAULT
   Set TRADING_ENABLED=true (or policy.trading_enabled in the YAML) to
   arm live execution. Without it the agent runs every cycle dry: data,
   sentiment and signals flow, and the risk gate rejects each trade.

The signing key only ever arrives via SOLRUN_PRIVATE_KEY. It is held in
memory and purged on disconnect; it is never written to disk or logs.`,
	}

	rootCmd.PersistentFlags().String("config", "config/solrun.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading loop",
		Long:  "Run the fixed-interval trading loop until interrupted; SIGINT/SIGTERM stop it at the next cycle boundary",
		RunE:  runAgent,
	}
	runCmd.Flags().Bool("api", false, "Serve the control API alongside the loop even when disabled in config")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the control API without the trading loop",
		Long:  "Start the local HTTP control surface only: wallet session, manual swaps, portfolio, event stream, metrics",
		RunE:  runServe,
	}

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Fetch a one-shot swap quote",
		Long:  "Ask the Jupiter router for a route estimate without signing or submitting anything",
		RunE:  runQuote,
	}
	quoteCmd.Flags().String("in", "USDC", "Input token symbol")
	quoteCmd.Flags().String("out", "SOL", "Output token symbol")
	quoteCmd.Flags().Float64("amount", 1, "Input amount in human units")
	quoteCmd.Flags().Int("slippage-bps", 0, "Slippage tolerance in basis points (0 uses the configured default)")

	balanceCmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the connected wallet balance",
		Long:  "Resolve the wallet's SOL balance through the RPC pool, with a best-effort USD valuation",
		RunE:  runBalance,
	}

	rootCmd.AddCommand(runCmd, serveCmd, quoteCmd, balanceCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyLogLevel sets the global level from config, --verbose winning.
func applyLogLevel(level string, verbose bool) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
