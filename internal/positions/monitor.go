package positions

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/solrun/internal/domain"
)

// ExitTrigger identifies which threshold forced a close, in precedence
// order: the protective stop always wins over the profit target.
type ExitTrigger int

const (
	NoTrigger ExitTrigger = iota
	StopLoss
	TakeProfit
)

func (t ExitTrigger) String() string {
	switch t {
	case StopLoss:
		return "stop-loss"
	case TakeProfit:
		return "take-profit"
	default:
		return "none"
	}
}

// Exit is a detected close decision for one position. Detection is
// separate from settlement: the trading loop journals each exit as a
// closing trade and only then removes the position from the book.
type Exit struct {
	Position      domain.Position `json:"position"`
	Trigger       ExitTrigger     `json:"trigger"`
	Price         float64         `json:"price"`
	TriggeredBy   string          `json:"triggered_by"`
	UnrealizedPnL float64         `json:"unrealized_pnl"`
	DetectedAt    time.Time       `json:"detected_at"`
}

// Monitor sweeps the book against fresh prices.
type Monitor struct {
	book *Book
}

// NewMonitor attaches a monitor to the book it watches.
func NewMonitor(book *Book) *Monitor {
	return &Monitor{book: book}
}

// Sweep evaluates every open position against the given prices and
// returns the positions that must close, ordered by symbol. Exits are
// always full size. A symbol with no price this cycle is left alone.
func (m *Monitor) Sweep(prices map[string]float64, now time.Time) []Exit {
	var exits []Exit
	for _, pos := range m.book.List() {
		price, ok := prices[pos.Symbol]
		if !ok {
			log.Debug().Str("symbol", pos.Symbol).Msg("No price this cycle, position untouched")
			continue
		}
		trigger, detail := evaluate(pos, price)
		if trigger == NoTrigger {
			continue
		}
		exits = append(exits, Exit{
			Position:      pos,
			Trigger:       trigger,
			Price:         price,
			TriggeredBy:   detail,
			UnrealizedPnL: pos.UnrealizedPnL(price),
			DetectedAt:    now,
		})
	}
	return exits
}

// evaluate checks one position against one price. A BUY is stopped out
// below its stop and takes profit above its target; a SELL inverts both
// comparisons.
func evaluate(pos domain.Position, price float64) (ExitTrigger, string) {
	if pos.Action == domain.ActionSell {
		switch {
		case price >= pos.StopLossPrice:
			return StopLoss, fmt.Sprintf("price %.6f >= stop %.6f", price, pos.StopLossPrice)
		case price <= pos.TakeProfitPrice:
			return TakeProfit, fmt.Sprintf("price %.6f <= target %.6f", price, pos.TakeProfitPrice)
		}
		return NoTrigger, ""
	}
	switch {
	case price <= pos.StopLossPrice:
		return StopLoss, fmt.Sprintf("price %.6f <= stop %.6f", price, pos.StopLossPrice)
	case price >= pos.TakeProfitPrice:
		return TakeProfit, fmt.Sprintf("price %.6f >= target %.6f", price, pos.TakeProfitPrice)
	}
	return NoTrigger, ""
}
