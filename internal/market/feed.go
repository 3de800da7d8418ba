// Package market produces price/volume/24h-change snapshots from an
// external venue. CoinGecko is the stock venue; Binance spot tickers are
// the alternative. All lookups go through one blocking, context-aware
// interface; snapshots for a cycle are cached with a short TTL.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/solrun/internal/cache"
	"github.com/sawpanic/solrun/internal/config"
	"github.com/sawpanic/solrun/internal/domain"
	"github.com/sawpanic/solrun/internal/tokens"
)

// Feed is the unified market data lookup.
type Feed interface {
	// Snapshots returns one snapshot per symbol it could price this
	// cycle. Symbols the venue fails on are absent, not errors.
	Snapshots(ctx context.Context, symbols []string) (map[string]domain.MarketSnapshot, error)
	// Price is the single-symbol convenience lookup.
	Price(ctx context.Context, symbol string) (float64, error)
}

// New builds the configured venue wrapped in the snapshot cache.
func New(cfg config.MarketConfig, reg *tokens.Registry, c cache.Cache) (Feed, error) {
	var inner Feed
	switch cfg.Venue {
	case "coingecko":
		inner = NewCoinGecko(cfg, reg)
	case "binance":
		inner = NewBinance(cfg, reg)
	default:
		return nil, fmt.Errorf("unknown market venue %q", cfg.Venue)
	}
	return &cachedFeed{inner: inner, cache: c, ttl: cfg.CacheTTL()}, nil
}

type cachedFeed struct {
	inner Feed
	cache cache.Cache
	ttl   time.Duration
}

func snapshotKey(symbol string) string { return "market:snap:" + symbol }

func (f *cachedFeed) Snapshots(ctx context.Context, symbols []string) (map[string]domain.MarketSnapshot, error) {
	out := make(map[string]domain.MarketSnapshot, len(symbols))
	var missing []string

	for _, sym := range symbols {
		if raw, ok := f.cache.Get(ctx, snapshotKey(sym)); ok {
			var snap domain.MarketSnapshot
			if err := json.Unmarshal(raw, &snap); err == nil {
				out[sym] = snap
				continue
			}
		}
		missing = append(missing, sym)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := f.inner.Snapshots(ctx, missing)
	if err != nil {
		if len(out) > 0 {
			// Cached symbols still feed the cycle; the rest drop.
			log.Warn().Err(err).Msg("market: venue fetch failed, serving cached symbols only")
			return out, nil
		}
		return nil, err
	}
	for sym, snap := range fresh {
		out[sym] = snap
		if raw, err := json.Marshal(snap); err == nil {
			f.cache.Set(ctx, snapshotKey(sym), raw, f.ttl)
		}
	}
	return out, nil
}

func (f *cachedFeed) Price(ctx context.Context, symbol string) (float64, error) {
	snaps, err := f.Snapshots(ctx, []string{symbol})
	if err != nil {
		return 0, err
	}
	snap, ok := snaps[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return snap.Price, nil
}
