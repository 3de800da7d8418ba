package domain

import (
	"time"

	"github.com/google/uuid"
)

// Position is an open, risk-monitored exposure created by a confirmed
// swap. Exactly one open position may exist per symbol; re-entry is
// blocked while it lives.
type Position struct {
	ID              string      `json:"id"`
	Symbol          string      `json:"symbol"`
	Action          TradeAction `json:"action"`
	Amount          float64     `json:"amount"`
	EntryPrice      float64     `json:"entry_price"`
	StopLossPrice   float64     `json:"stop_loss_price"`
	TakeProfitPrice float64     `json:"take_profit_price"`
	OpenedAt        time.Time   `json:"opened_at"`
	TxSig           string      `json:"tx_signature,omitempty"`
}

// NewPosition derives stop and take thresholds from the policy fractions.
// For a BUY the stop sits below entry and the take above; a SELL inverts
// both.
func NewPosition(symbol string, action TradeAction, amount, entryPrice, stopLossFraction, takeProfitFraction float64, openedAt time.Time) Position {
	stop := entryPrice * (1 - stopLossFraction)
	take := entryPrice * (1 + takeProfitFraction)
	if action == ActionSell {
		stop = entryPrice * (1 + stopLossFraction)
		take = entryPrice * (1 - takeProfitFraction)
	}
	return Position{
		ID:              uuid.New().String(),
		Symbol:          symbol,
		Action:          action,
		Amount:          amount,
		EntryPrice:      entryPrice,
		StopLossPrice:   stop,
		TakeProfitPrice: take,
		OpenedAt:        openedAt,
	}
}

// UnrealizedPnL values the position against the given price. A SELL
// position profits when price falls.
func (p Position) UnrealizedPnL(price float64) float64 {
	diff := price - p.EntryPrice
	if p.Action == ActionSell {
		diff = -diff
	}
	return diff * p.Amount
}
