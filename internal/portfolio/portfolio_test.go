package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/solrun/internal/domain"
	"github.com/sawpanic/solrun/internal/positions"
)

type fakeBalance struct {
	sol float64
	err error
}

func (f *fakeBalance) BalanceSOL(context.Context) (float64, error) { return f.sol, f.err }

type fakeFeed struct {
	prices map[string]float64
	err    error
}

func (f *fakeFeed) Snapshots(_ context.Context, symbols []string) (map[string]domain.MarketSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.MarketSnapshot)
	for _, sym := range symbols {
		if price, ok := f.prices[sym]; ok {
			out[sym] = domain.MarketSnapshot{Symbol: sym, Price: price, CapturedAt: time.Now()}
		}
	}
	return out, nil
}

func TestSnapshotBalanceOnly(t *testing.T) {
	v := NewValuer(&fakeBalance{sol: 2}, &fakeFeed{prices: map[string]float64{"SOL": 150}}, positions.NewBook())

	snap, err := v.Snapshot(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 300.0, snap.TotalValue, 1e-9)
	assert.InDelta(t, 0.0, snap.TotalPnL, 1e-9)
	assert.InDelta(t, 0.0, snap.PnLPercentage, 1e-9)
	require.Len(t, snap.Holdings, 1)
	assert.Equal(t, "SOL", snap.Holdings[0].Token)
	assert.InDelta(t, 2.0, snap.Holdings[0].Amount, 1e-9)
}

func TestSnapshotValuesOpenPositions(t *testing.T) {
	book := positions.NewBook()
	require.NoError(t, book.Open(domain.NewPosition("JUP", domain.ActionBuy, 12.5, 0.80, 0.05, 0.10, time.Now())))

	v := NewValuer(
		&fakeBalance{sol: 2},
		&fakeFeed{prices: map[string]float64{"SOL": 150, "JUP": 1.00}},
		book,
	)

	snap, err := v.Snapshot(context.Background())
	require.NoError(t, err)

	// 2 SOL at 150 plus 12.5 JUP at 1.00.
	assert.InDelta(t, 312.5, snap.TotalValue, 1e-9)
	// JUP moved 0.80 -> 1.00 on 12.5 tokens.
	assert.InDelta(t, 2.5, snap.TotalPnL, 1e-9)
	assert.InDelta(t, 2.5/310.0*100, snap.PnLPercentage, 1e-9)

	require.Len(t, snap.Holdings, 2)
	jup := snap.Holdings[1]
	assert.Equal(t, "JUP", jup.Token)
	assert.InDelta(t, 12.5, jup.Value, 1e-9)
	assert.InDelta(t, 2.5, jup.PnL, 1e-9)
}

func TestSnapshotShortPositionLosesOnRally(t *testing.T) {
	book := positions.NewBook()
	require.NoError(t, book.Open(domain.NewPosition("JUP", domain.ActionSell, 10, 1.00, 0.05, 0.10, time.Now())))

	v := NewValuer(
		&fakeBalance{sol: 0},
		&fakeFeed{prices: map[string]float64{"SOL": 150, "JUP": 1.20}},
		book,
	)

	snap, err := v.Snapshot(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, -2.0, snap.TotalPnL, 1e-9)
}

func TestSnapshotMissingPriceKeepsAmount(t *testing.T) {
	book := positions.NewBook()
	require.NoError(t, book.Open(domain.NewPosition("BONK", domain.ActionBuy, 1_000_000, 0.00002, 0.05, 0.10, time.Now())))

	v := NewValuer(
		&fakeBalance{sol: 1},
		&fakeFeed{prices: map[string]float64{"SOL": 150}}, // no BONK price
		book,
	)

	snap, err := v.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Holdings, 2)
	bonk := snap.Holdings[1]
	assert.InDelta(t, 1_000_000, bonk.Amount, 1e-9)
	assert.InDelta(t, 0.0, bonk.Value, 1e-9)
	assert.InDelta(t, 0.0, bonk.PnL, 1e-9)
}

func TestSnapshotErrors(t *testing.T) {
	t.Run("wallet not connected", func(t *testing.T) {
		v := NewValuer(&fakeBalance{err: errors.New("wallet not connected")}, &fakeFeed{}, positions.NewBook())
		_, err := v.Snapshot(context.Background())
		require.Error(t, err)
	})
	t.Run("feed outage", func(t *testing.T) {
		v := NewValuer(&fakeBalance{sol: 1}, &fakeFeed{err: errors.New("status 502")}, positions.NewBook())
		_, err := v.Snapshot(context.Background())
		require.Error(t, err)
	})
}
