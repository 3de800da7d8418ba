package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sawpanic/solrun/internal/config"
	"github.com/sawpanic/solrun/internal/domain"
	"github.com/sawpanic/solrun/internal/tokens"
)

// CoinGecko prices the watchlist through the simple/price endpoint in a
// single call per cycle.
type CoinGecko struct {
	baseURL  string
	currency string
	client   *http.Client
	limiter  *rate.Limiter
	registry *tokens.Registry
}

// NewCoinGecko builds the CoinGecko venue client.
func NewCoinGecko(cfg config.MarketConfig, reg *tokens.Registry) *CoinGecko {
	return &CoinGecko{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		currency: cfg.QuoteCurrency,
		client:   &http.Client{Timeout: cfg.Timeout()},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		registry: reg,
	}
}

// Snapshots fetches price, 24h change, 24h volume and market cap for
// every resolvable symbol. Symbols missing from the response are dropped
// with a warning.
func (c *CoinGecko) Snapshots(ctx context.Context, symbols []string) (map[string]domain.MarketSnapshot, error) {
	ids := make([]string, 0, len(symbols))
	idToSymbol := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		id, err := c.registry.CoinGeckoID(sym)
		if err != nil {
			log.Warn().Str("symbol", sym).Msg("market: symbol not in registry, dropping")
			continue
		}
		ids = append(ids, id)
		idToSymbol[id] = sym
	}
	if len(ids) == 0 {
		return map[string]domain.MarketSnapshot{}, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", c.currency)
	q.Set("include_24hr_change", "true")
	q.Set("include_24hr_vol", "true")
	q.Set("include_market_cap", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("coingecko status %d", resp.StatusCode)
	}

	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("coingecko decode: %w", err)
	}

	now := time.Now().UTC()
	out := make(map[string]domain.MarketSnapshot, len(payload))
	for id, fields := range payload {
		sym, ok := idToSymbol[id]
		if !ok {
			continue
		}
		out[sym] = domain.MarketSnapshot{
			Symbol:         sym,
			Price:          fields[c.currency],
			PriceChange24h: fields[c.currency+"_24h_change"],
			Volume:         fields[c.currency+"_24h_vol"],
			MarketCap:      fields[c.currency+"_market_cap"],
			CapturedAt:     now,
		}
	}
	for _, id := range ids {
		if _, ok := out[idToSymbol[id]]; !ok {
			log.Warn().Str("symbol", idToSymbol[id]).Msg("market: venue returned no data for symbol")
		}
	}
	return out, nil
}

// Price resolves one symbol through the same endpoint.
func (c *CoinGecko) Price(ctx context.Context, symbol string) (float64, error) {
	snaps, err := c.Snapshots(ctx, []string{symbol})
	if err != nil {
		return 0, err
	}
	snap, ok := snaps[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return snap.Price, nil
}
