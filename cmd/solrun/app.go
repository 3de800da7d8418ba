package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/solrun/internal/advisor"
	"github.com/sawpanic/solrun/internal/api"
	"github.com/sawpanic/solrun/internal/cache"
	"github.com/sawpanic/solrun/internal/config"
	"github.com/sawpanic/solrun/internal/domain"
	"github.com/sawpanic/solrun/internal/engine"
	"github.com/sawpanic/solrun/internal/market"
	"github.com/sawpanic/solrun/internal/metrics"
	"github.com/sawpanic/solrun/internal/persistence"
	"github.com/sawpanic/solrun/internal/portfolio"
	"github.com/sawpanic/solrun/internal/positions"
	"github.com/sawpanic/solrun/internal/risk"
	"github.com/sawpanic/solrun/internal/rpc"
	"github.com/sawpanic/solrun/internal/sentiment"
	"github.com/sawpanic/solrun/internal/signal"
	"github.com/sawpanic/solrun/internal/stream"
	"github.com/sawpanic/solrun/internal/swap"
	"github.com/sawpanic/solrun/internal/tokens"
	"github.com/sawpanic/solrun/internal/wallet"
)

// app owns every long-lived component. Construction follows the
// dependency graph once at startup; nothing is wired lazily.
type app struct {
	cfg      config.Config
	pool     *rpc.Pool
	wallet   *wallet.Wallet
	registry *tokens.Registry
	feed     market.Feed
	probe    sentiment.Probe
	store    persistence.TradeStore
	book     *positions.Book
	monitor  *positions.Monitor
	counter  *domain.DailyTradeCounter
	executor *swap.Executor
	valuer   *portfolio.Valuer
	advisor  *advisor.Advisor
	hub      *stream.Hub
	metrics  *metrics.Metrics
	engine   *engine.Engine
}

func buildApp(cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	a.pool = rpc.NewPool(cfg.RPC)
	a.wallet = wallet.New(a.pool)
	a.registry = tokens.DefaultRegistry()

	feed, err := market.New(cfg.Market, a.registry, cache.New(cfg.Cache.RedisAddr))
	if err != nil {
		return nil, fmt.Errorf("market feed: %w", err)
	}
	a.feed = feed

	a.probe = sentiment.New(cfg.Sentiment)

	store, err := persistence.New(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("trade journal: %w", err)
	}
	a.store = store

	a.book = positions.NewBook()
	a.monitor = positions.NewMonitor(a.book)
	a.counter = domain.NewDailyTradeCounter(time.Now())
	a.metrics = metrics.New()
	a.hub = stream.NewHub()
	a.advisor = advisor.New(cfg.Advisor)
	a.valuer = portfolio.NewValuer(a.wallet, a.feed, a.book)

	a.executor = swap.NewExecutor(swap.Deps{
		Router:   swap.NewJupiterClient(cfg.Swap),
		Signer:   a.wallet,
		Chain:    a.pool,
		Registry: a.registry,
		Book:     a.book,
		Counter:  a.counter,
		Journal:  a.store,
	}, cfg.Swap)

	a.engine = engine.New(engine.Deps{
		Feed:      a.feed,
		Probe:     a.probe,
		Generator: signal.NewGenerator(signal.DefaultConfig()),
		Gate:      risk.NewGate(a.counter),
		Wallet:    a.wallet,
		Executor:  a.executor,
		Book:      a.book,
		Monitor:   a.monitor,
		Counter:   a.counter,
		Store:     a.store,
		Hub:       a.hub,
		Metrics:   a.metrics,
	}, engine.Config{
		Loop:       cfg.Loop,
		Policy:     cfg.Policy,
		Watchlist:  cfg.Watchlist,
		QuoteToken: cfg.Swap.QuoteToken,
	})

	a.autoConnect()
	return a, nil
}

// autoConnect arms signing from SOLRUN_PRIVATE_KEY. A missing or bad key
// leaves the agent observing; every read-only capability still works.
func (a *app) autoConnect() {
	if !a.cfg.Wallet.AutoConnect {
		return
	}
	key := os.Getenv("SOLRUN_PRIVATE_KEY")
	if key == "" {
		log.Warn().Msg("SOLRUN_PRIVATE_KEY not set, starting without a wallet")
		return
	}
	if _, err := a.wallet.Connect(key); err != nil {
		log.Warn().Err(err).Msg("Wallet auto-connect failed, starting without a wallet")
	}
}

func (a *app) apiDeps() api.Deps {
	return api.Deps{
		Wallet:     a.wallet,
		Feed:       a.feed,
		Registry:   a.registry,
		Executor:   a.executor,
		Valuer:     a.valuer,
		Store:      a.store,
		Advisor:    a.advisor,
		Book:       a.book,
		Hub:        a.hub,
		Metrics:    a.metrics,
		Policy:     a.cfg.Policy,
		Watchlist:  a.cfg.Watchlist,
		QuoteToken: a.cfg.Swap.QuoteToken,
		Version:    version,
		Status:     a.engine.Status,
	}
}

// Close releases components in reverse dependency order, purging the
// signing credential last.
func (a *app) Close() {
	a.hub.Close()
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Trade journal close failed")
	}
	a.wallet.Disconnect()
}
