// Package portfolio values the wallet and open positions against the
// latest market prices.
package portfolio

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/sawpanic/solrun/internal/domain"
	"github.com/sawpanic/solrun/internal/positions"
)

// BalanceSource yields the wallet's native balance.
type BalanceSource interface {
	BalanceSOL(ctx context.Context) (float64, error)
}

// PriceSource yields market snapshots for a symbol set.
type PriceSource interface {
	Snapshots(ctx context.Context, symbols []string) (map[string]domain.MarketSnapshot, error)
}

// Valuer assembles portfolio snapshots.
type Valuer struct {
	wallet BalanceSource
	feed   PriceSource
	book   *positions.Book
}

// NewValuer wires the portfolio over wallet, feed, and position book.
func NewValuer(wallet BalanceSource, feed PriceSource, book *positions.Book) *Valuer {
	return &Valuer{wallet: wallet, feed: feed, book: book}
}

// Snapshot values the native balance plus every open position. PnL is
// the unrealized sum over open positions; the percentage is against the
// cost basis. A position whose symbol has no price this call keeps its
// amount but values at zero.
func (v *Valuer) Snapshot(ctx context.Context) (domain.PortfolioSnapshot, error) {
	balance, err := v.wallet.BalanceSOL(ctx)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}

	open := v.book.List()
	symbols := lo.Uniq(append([]string{"SOL"}, lo.Map(open, func(p domain.Position, _ int) string {
		return p.Symbol
	})...))

	snaps, err := v.feed.Snapshots(ctx, symbols)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}

	solPrice := snaps["SOL"].Price
	holdings := []domain.Holding{{
		Token:  "SOL",
		Amount: balance,
		Value:  balance * solPrice,
	}}
	for _, pos := range open {
		snap, ok := snaps[pos.Symbol]
		if !ok {
			log.Warn().Str("symbol", pos.Symbol).Msg("Portfolio: no price for open position")
			holdings = append(holdings, domain.Holding{Token: pos.Symbol, Amount: pos.Amount})
			continue
		}
		if pos.Symbol == "SOL" {
			// The native balance already carries the amount; the open
			// position only contributes its unrealized PnL.
			holdings[0].PnL = pos.UnrealizedPnL(snap.Price)
			continue
		}
		holdings = append(holdings, domain.Holding{
			Token:  pos.Symbol,
			Amount: pos.Amount,
			Value:  pos.Amount * snap.Price,
			PnL:    pos.UnrealizedPnL(snap.Price),
		})
	}

	totalValue := lo.SumBy(holdings, func(h domain.Holding) float64 { return h.Value })
	totalPnL := lo.SumBy(holdings, func(h domain.Holding) float64 { return h.PnL })

	pct := 0.0
	if basis := totalValue - totalPnL; basis > 0 {
		pct = totalPnL / basis * 100
	}

	return domain.PortfolioSnapshot{
		TotalValue:    totalValue,
		TotalPnL:      totalPnL,
		PnLPercentage: pct,
		Holdings:      holdings,
		CapturedAt:    time.Now().UTC(),
	}, nil
}
