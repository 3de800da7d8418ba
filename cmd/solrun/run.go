package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/solrun/internal/api"
	"github.com/sawpanic/solrun/internal/config"
)

// loadConfig resolves the --config path and applies the log level before
// anything else runs.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	applyLogLevel(cfg.Log.Level, verbose)
	return cfg, nil
}

// runAgent starts the trading loop, with the control API alongside when
// enabled. SIGINT/SIGTERM stop the loop at the next cycle boundary.
func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if withAPI, _ := cmd.Flags().GetBool("api"); withAPI {
		cfg.API.Enabled = true
	}

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	log.Info().Str("version", version).Str("venue", cfg.Market.Venue).Msg(appName + " starting")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.API.Enabled {
		srv, err := api.NewServer(cfg.API, app.apiDeps())
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Start(); err != nil {
				log.Error().Err(err).Msg("Control API failed")
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	return app.engine.Run(ctx)
}

// runServe starts only the control API: wallet session, manual swaps,
// portfolio and market reads, the event stream, the metrics scrape.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.API.Enabled = true

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv, err := api.NewServer(cfg.API, app.apiDeps())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	return srv.Start()
}

// runQuote fetches one route estimate and prints it. Nothing is signed
// or submitted.
func runQuote(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	in, _ := cmd.Flags().GetString("in")
	out, _ := cmd.Flags().GetString("out")
	amount, _ := cmd.Flags().GetFloat64("amount")
	bps, _ := cmd.Flags().GetInt("slippage-bps")
	in, out = strings.ToUpper(in), strings.ToUpper(out)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	quote, err := app.executor.GetQuote(ctx, in, out, amount, bps)
	if err != nil {
		return fmt.Errorf("quote failed: %w", err)
	}

	inTok, err := app.registry.Resolve(in)
	if err != nil {
		return err
	}
	outTok, err := app.registry.Resolve(out)
	if err != nil {
		return err
	}

	fmt.Printf("Route: %s → %s\n", in, out)
	fmt.Printf("In:    %s %s\n", formatAmount(inTok.FromBaseUnits(quote.InputAmount)), in)
	fmt.Printf("Out:   %s %s (estimate)\n", formatAmount(outTok.FromBaseUnits(quote.OutputAmount)), out)
	fmt.Printf("Slippage: %d bps\n", quote.SlippageBps)
	return nil
}

// runBalance prints the connected wallet's SOL balance with a
// best-effort USD valuation.
func runBalance(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	addr, ok := app.wallet.Address()
	if !ok {
		return fmt.Errorf("wallet not connected: set SOLRUN_PRIVATE_KEY")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	sol, err := app.wallet.BalanceSOL(ctx)
	if err != nil {
		return fmt.Errorf("balance lookup failed: %w", err)
	}

	fmt.Printf("Address: %s\n", addr)
	fmt.Printf("Balance: %.9f SOL", sol)
	if price, err := app.feed.Price(ctx, "SOL"); err == nil {
		fmt.Printf(" (≈ $%.2f)", sol*price)
	}
	fmt.Println()
	return nil
}

func formatAmount(v float64) string {
	s := fmt.Sprintf("%.9f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
