package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/solrun/internal/cache"
	"github.com/sawpanic/solrun/internal/config"
	"github.com/sawpanic/solrun/internal/tokens"
)

func marketCfg(baseURL string) config.MarketConfig {
	return config.MarketConfig{
		Venue:         "coingecko",
		BaseURL:       baseURL,
		TimeoutSecs:   2,
		RPS:           1000,
		Burst:         100,
		CacheTTLSecs:  60,
		QuoteCurrency: "usd",
		BinanceSuffix: "USDT",
	}
}

func TestCoinGecko_Snapshots(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query().Encode())
		json.NewEncoder(w).Encode(map[string]map[string]float64{
			"solana": {
				"usd":            185.4,
				"usd_24h_change": 6.2,
				"usd_24h_vol":    1.2e9,
				"usd_market_cap": 8.6e10,
			},
			"jupiter-exchange-solana": {
				"usd":            0.92,
				"usd_24h_change": -1.4,
			},
		})
	}))
	defer srv.Close()

	cg := NewCoinGecko(marketCfg(srv.URL), tokens.DefaultRegistry())
	snaps, err := cg.Snapshots(context.Background(), []string{"SOL", "JUP"})
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	sol := snaps["SOL"]
	assert.Equal(t, 185.4, sol.Price)
	assert.Equal(t, 6.2, sol.PriceChange24h)
	assert.Equal(t, 1.2e9, sol.Volume)
	assert.False(t, sol.CapturedAt.IsZero())

	query := gotQuery.Load().(string)
	assert.Contains(t, query, "solana")
	assert.Contains(t, query, "include_24hr_change=true")
}

func TestCoinGecko_UnknownSymbolDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]map[string]float64{
			"solana": {"usd": 185.4},
		})
	}))
	defer srv.Close()

	cg := NewCoinGecko(marketCfg(srv.URL), tokens.DefaultRegistry())
	snaps, err := cg.Snapshots(context.Background(), []string{"SOL", "NOTATOKEN"})
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
	assert.Contains(t, snaps, "SOL")
}

func TestCoinGecko_VenueErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cg := NewCoinGecko(marketCfg(srv.URL), tokens.DefaultRegistry())
	_, err := cg.Snapshots(context.Background(), []string{"SOL"})
	require.Error(t, err)
}

func TestCachedFeed_ServesFromCacheWithinTTL(t *testing.T) {
	var venueCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&venueCalls, 1)
		json.NewEncoder(w).Encode(map[string]map[string]float64{
			"solana": {"usd": 185.4, "usd_24h_change": 6.2},
		})
	}))
	defer srv.Close()

	feed, err := New(marketCfg(srv.URL), tokens.DefaultRegistry(), cache.NewMemory())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = feed.Snapshots(ctx, []string{"SOL"})
	require.NoError(t, err)
	_, err = feed.Snapshots(ctx, []string{"SOL"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&venueCalls), "second cycle should hit the cache")
}

func TestCachedFeed_WarmCacheSurvivesVenueOutage(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]map[string]float64{
			"solana": {"usd": 185.4},
		})
	}))
	defer srv.Close()

	feed, err := New(marketCfg(srv.URL), tokens.DefaultRegistry(), cache.NewMemory())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = feed.Snapshots(ctx, []string{"SOL"})
	require.NoError(t, err)

	fail.Store(true)
	snaps, err := feed.Snapshots(ctx, []string{"SOL", "JUP"})
	require.NoError(t, err, "cached SOL should still be served")
	assert.Contains(t, snaps, "SOL")
	assert.NotContains(t, snaps, "JUP", "uncached symbol drops during outage")
}

func TestCachedFeed_Price(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]map[string]float64{
			"bonk": {"usd": 0.000032},
		})
	}))
	defer srv.Close()

	feed, err := New(marketCfg(srv.URL), tokens.DefaultRegistry(), cache.NewMemory())
	require.NoError(t, err)

	price, err := feed.Price(context.Background(), "BONK")
	require.NoError(t, err)
	assert.Equal(t, 0.000032, price)
}

func TestBinance_Snapshots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		assert.Equal(t, "SOLUSDT", r.URL.Query().Get("symbol"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"symbol":             "SOLUSDT",
			"lastPrice":          "186.10",
			"priceChangePercent": "5.80",
			"quoteVolume":        "987654321.0",
		})
	}))
	defer srv.Close()

	b := NewBinance(marketCfg(""), tokens.DefaultRegistry())
	b.client.BaseURL = srv.URL

	snaps, err := b.Snapshots(context.Background(), []string{"SOL"})
	require.NoError(t, err)
	require.Contains(t, snaps, "SOL")

	snap := snaps["SOL"]
	assert.Equal(t, 186.10, snap.Price)
	assert.Equal(t, 5.80, snap.PriceChange24h)
	assert.Equal(t, float64(0), snap.MarketCap, "market cap unavailable on this venue")
}

func TestNew_VenueSelection(t *testing.T) {
	reg := tokens.DefaultRegistry()
	mem := cache.NewMemory()

	cfg := marketCfg("http://x")
	_, err := New(cfg, reg, mem)
	require.NoError(t, err)

	cfg.Venue = "binance"
	_, err = New(cfg, reg, mem)
	require.NoError(t, err)

	cfg.Venue = "kraken"
	_, err = New(cfg, reg, mem)
	require.Error(t, err)
}
