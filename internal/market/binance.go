package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/solrun/internal/config"
	"github.com/sawpanic/solrun/internal/domain"
	"github.com/sawpanic/solrun/internal/tokens"
)

// Binance prices the watchlist from spot 24h ticker statistics. Public
// market data needs no API keys. Market cap is not available on this
// venue and stays zero.
type Binance struct {
	client   *binance.Client
	suffix   string
	registry *tokens.Registry
}

// NewBinance builds the Binance venue client.
func NewBinance(cfg config.MarketConfig, reg *tokens.Registry) *Binance {
	return &Binance{
		client:   binance.NewClient("", ""),
		suffix:   cfg.BinanceSuffix,
		registry: reg,
	}
}

// Snapshots fetches 24h ticker stats per symbol in parallel. Failed
// symbols are dropped; the error is non-nil only when every symbol fails.
func (b *Binance) Snapshots(ctx context.Context, symbols []string) (map[string]domain.MarketSnapshot, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]domain.MarketSnapshot, len(symbols))
	)
	g, gctx := errgroup.WithContext(ctx)

	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			snap, err := b.fetchOne(gctx, sym)
			if err != nil {
				log.Warn().Err(err).Str("symbol", sym).Msg("market: binance fetch failed, dropping symbol")
				return nil
			}
			mu.Lock()
			out[sym] = snap
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(out) == 0 && len(symbols) > 0 {
		return nil, fmt.Errorf("binance returned no data for %d symbols", len(symbols))
	}
	return out, nil
}

func (b *Binance) fetchOne(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	if _, err := b.registry.Resolve(symbol); err != nil {
		return domain.MarketSnapshot{}, err
	}
	pair := strings.ToUpper(symbol) + b.suffix
	stats, err := b.client.NewListPriceChangeStatsService().Symbol(pair).Do(ctx)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("ticker stats for %s: %w", pair, err)
	}
	for _, s := range stats {
		if s.Symbol != pair {
			continue
		}
		price, err := strconv.ParseFloat(s.LastPrice, 64)
		if err != nil {
			return domain.MarketSnapshot{}, fmt.Errorf("parsing last price %q: %w", s.LastPrice, err)
		}
		change, _ := strconv.ParseFloat(s.PriceChangePercent, 64)
		volume, _ := strconv.ParseFloat(s.QuoteVolume, 64)
		return domain.MarketSnapshot{
			Symbol:         symbol,
			Price:          price,
			PriceChange24h: change,
			Volume:         volume,
			CapturedAt:     time.Now().UTC(),
		}, nil
	}
	return domain.MarketSnapshot{}, fmt.Errorf("no ticker for %s", pair)
}

// Price resolves one symbol from the spot price list.
func (b *Binance) Price(ctx context.Context, symbol string) (float64, error) {
	pair := strings.ToUpper(symbol) + b.suffix
	prices, err := b.client.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("price for %s: %w", pair, err)
	}
	for _, p := range prices {
		if p.Symbol == pair {
			return strconv.ParseFloat(p.Price, 64)
		}
	}
	return 0, fmt.Errorf("no price for %s", pair)
}
