// Package engine runs the trading loop: one fixed-interval cycle that
// fetches market data, scores sentiment, generates signals, walks each
// admitted signal through sizing and the swap pipeline, and sweeps open
// positions for stop-loss and take-profit exits.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/solrun/internal/config"
	"github.com/sawpanic/solrun/internal/domain"
	"github.com/sawpanic/solrun/internal/market"
	"github.com/sawpanic/solrun/internal/metrics"
	"github.com/sawpanic/solrun/internal/persistence"
	"github.com/sawpanic/solrun/internal/positions"
	"github.com/sawpanic/solrun/internal/risk"
	"github.com/sawpanic/solrun/internal/sentiment"
	"github.com/sawpanic/solrun/internal/signal"
	"github.com/sawpanic/solrun/internal/stream"
	"github.com/sawpanic/solrun/internal/swap"
	"github.com/sawpanic/solrun/internal/wallet"
)

// Deps are the engine's collaborators, wired once at startup.
type Deps struct {
	Feed      market.Feed
	Probe     sentiment.Probe
	Generator *signal.Generator
	Gate      *risk.Gate
	Wallet    *wallet.Wallet
	Executor  *swap.Executor
	Book      *positions.Book
	Monitor   *positions.Monitor
	Counter   *domain.DailyTradeCounter
	Store     persistence.TradeStore
	Hub       *stream.Hub
	Metrics   *metrics.Metrics
}

// Config pins the loop cadence and the policy the engine trades under.
// The policy is fixed for the engine's lifetime; changing limits means
// restarting the loop.
type Config struct {
	Loop       config.LoopConfig
	Policy     domain.TradingPolicy
	Watchlist  []string
	QuoteToken string
}

// Engine owns the cycle clock and the trading policy. All pipeline work
// is delegated; the engine decides only what runs and in which order.
type Engine struct {
	deps Deps
	cfg  Config

	mu        sync.Mutex
	running   bool
	cycles    int
	lastCycle time.Time
}

func New(deps Deps, cfg Config) *Engine {
	return &Engine{deps: deps, cfg: cfg}
}

// Run drives cycles until ctx is canceled. A stop request is honored
// only between cycles: an in-flight pipeline always reaches a safe state
// (CONFIRMED or FAILED) before the loop exits. Failed cycles log, then
// retry after the shorter backoff interval.
func (e *Engine) Run(ctx context.Context) error {
	e.setRunning(true)
	defer e.setRunning(false)

	log.Info().
		Dur("interval", e.cfg.Loop.Interval()).
		Strs("watchlist", e.cfg.Watchlist).
		Bool("trading_enabled", e.cfg.Policy.TradingEnabled).
		Bool("sentiment", e.deps.Probe.Available()).
		Msg("Trading loop started")

	for {
		if ctx.Err() != nil {
			log.Info().Msg("Trading loop stopped")
			return nil
		}

		err := e.Cycle()

		wait := e.cfg.Loop.Interval()
		if err != nil {
			log.Error().Err(err).Dur("retry_in", e.cfg.Loop.Backoff()).Msg("Trading cycle failed")
			wait = e.cfg.Loop.Backoff()
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Trading loop stopped")
			return nil
		case <-time.After(wait):
		}
	}
}

// Cycle runs exactly one pass: snapshots, sentiment, signals, execution,
// position sweep. It carries its own deadline, detached from the loop's
// stop signal, so cancellation can never interrupt a pipeline mid-step.
func (e *Engine) Cycle() error {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Loop.Interval())
	defer cancel()

	timer := e.deps.Metrics.StartCycle()
	err := e.cycle(ctx)

	e.mu.Lock()
	e.cycles++
	e.lastCycle = time.Now()
	e.mu.Unlock()

	if err != nil {
		timer.Stop(metrics.ResultError)
		return err
	}
	timer.Stop(metrics.ResultSuccess)
	return nil
}

func (e *Engine) cycle(ctx context.Context) error {
	snaps, err := e.deps.Feed.Snapshots(ctx, e.cfg.Watchlist)
	if err != nil {
		return fmt.Errorf("market snapshots: %w", err)
	}

	sentiments := e.deps.Probe.Scores(ctx, e.cfg.Watchlist)

	signals := e.deps.Generator.Generate(snaps, sentiments, e.cfg.Policy.MaxTradeAmount, time.Now())
	log.Info().
		Int("symbols", len(snaps)).
		Int("sentiments", len(sentiments)).
		Int("signals", len(signals)).
		Msg("Cycle evaluated")

	for _, sig := range signals {
		e.deps.Metrics.RecordSignal(string(sig.Action))
		e.deps.Hub.Broadcast(stream.SignalEvent(sig))
		e.handleSignal(ctx, sig, snaps)
	}

	e.sweep(ctx, snaps)

	e.deps.Metrics.SetOpenPositions(e.deps.Book.Count())
	return nil
}

// handleSignal walks one signal through the gate, sizing, and the swap
// pipeline. Every early return drops the signal for this cycle only; a
// dropped or failed signal never aborts the cycle.
func (e *Engine) handleSignal(ctx context.Context, sig domain.TradeSignal, snaps map[string]domain.MarketSnapshot) {
	logger := log.With().Str("symbol", sig.Symbol).Str("action", string(sig.Action)).Logger()

	if sig.Symbol == e.cfg.QuoteToken {
		logger.Debug().Msg("Signal on the settlement token, skipped")
		return
	}
	if e.deps.Book.Has(sig.Symbol) {
		logger.Debug().Msg("Position already open, signal skipped")
		return
	}

	verdict := e.deps.Gate.Admit(sig, e.cfg.Policy, time.Now())
	if !verdict.Admitted {
		e.deps.Metrics.RecordRejection(verdict.Reason)
		logger.Info().Str("reason", verdict.Reason).Float64("confidence", sig.Confidence).Msg("Signal rejected")
		return
	}

	balance, err := e.deps.Wallet.BalanceSOL(ctx)
	if err != nil {
		// An unreadable balance sizes to zero: skip the trade, keep the cycle.
		logger.Warn().Err(err).Msg("Balance unavailable, trade skipped")
		return
	}
	e.deps.Metrics.SetWalletBalance(balance)

	size := risk.SizeTrade(sig.SuggestedAmount, balance, e.cfg.Policy)
	if size <= 0 {
		logger.Info().Float64("balance", balance).Msg("Sized to zero, trade skipped")
		return
	}

	order := swap.Order{
		Signal:      sig,
		InputToken:  e.cfg.QuoteToken,
		OutputToken: sig.Symbol,
		Amount:      size,
		Price:       snaps[sig.Symbol].Price,
	}
	if sig.Action == domain.ActionSell {
		order.InputToken, order.OutputToken = sig.Symbol, e.cfg.QuoteToken
	}

	receipt, err := e.deps.Executor.Execute(ctx, order, e.cfg.Policy)
	if err != nil {
		var perr *swap.PipelineError
		if errors.As(err, &perr) {
			e.deps.Metrics.RecordSwapFailure(perr.Stage.String(), perr.Reason)
		}
		logger.Error().Err(err).Msg("Swap failed, signal dropped")
		return
	}

	e.deps.Metrics.RecordTrade(string(receipt.Trade.Type), "signal")
	e.deps.Hub.Broadcast(stream.TradeEvent(receipt.Trade))
	if receipt.Position != nil {
		e.deps.Hub.Broadcast(stream.PositionOpenedEvent(*receipt.Position))
	}
	logger.Info().
		Str("signature", receipt.Signature).
		Float64("amount", size).
		Float64("confidence", sig.Confidence).
		Strs("reasoning", sig.Reasoning).
		Msg("Trade executed")
}

// sweep closes every position whose stop or target this cycle's prices
// crossed. A close is bookkeeping: the position leaves the book, the
// exit is journaled as a closing trade and broadcast, and the symbol is
// free for re-entry next cycle.
func (e *Engine) sweep(ctx context.Context, snaps map[string]domain.MarketSnapshot) {
	prices := make(map[string]float64, len(snaps))
	for sym, snap := range snaps {
		prices[sym] = snap.Price
	}

	now := time.Now()
	for _, exit := range e.deps.Monitor.Sweep(prices, now) {
		pos, ok := e.deps.Book.Close(exit.Position.Symbol)
		if !ok {
			continue
		}

		closing := domain.Trade{
			ID:       uuid.New().String(),
			Pair:     domain.PairSymbol(pos.Symbol, e.cfg.QuoteToken),
			Type:     domain.ActionSell,
			Price:    exit.Price,
			Amount:   pos.Amount,
			ValueUSD: pos.Amount * exit.Price,
			Time:     now,
		}
		if pos.Action == domain.ActionSell {
			closing.Type = domain.ActionBuy
		}
		if err := e.deps.Store.Record(ctx, closing); err != nil {
			log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Exit journal write failed")
		}

		e.deps.Metrics.RecordExit(exit.Trigger.String())
		e.deps.Hub.Broadcast(stream.PositionClosedEvent(pos, exit.Trigger.String(), exit.Price, exit.UnrealizedPnL))
		log.Info().
			Str("symbol", pos.Symbol).
			Str("trigger", exit.Trigger.String()).
			Str("detail", exit.TriggeredBy).
			Float64("entry", pos.EntryPrice).
			Float64("exit", exit.Price).
			Float64("pnl", exit.UnrealizedPnL).
			Msg("Position closed")
	}
}

// Status reports the loop's externally visible state for the API and CLI.
func (e *Engine) Status() domain.AgentStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.AgentStatus{
		Running:         e.running,
		TradingEnabled:  e.cfg.Policy.TradingEnabled,
		WalletConnected: e.deps.Wallet.Connected(),
		CycleCount:      e.cycles,
		LastCycleAt:     e.lastCycle,
		DailyTrades:     e.deps.Counter.Count(time.Now()),
		MaxDailyTrades:  e.cfg.Policy.MaxDailyTrades,
		OpenPositions:   e.deps.Book.Count(),
	}
}

func (e *Engine) setRunning(v bool) {
	e.mu.Lock()
	e.running = v
	e.mu.Unlock()
}
