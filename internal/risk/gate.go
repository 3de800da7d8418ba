// Package risk is the admission layer between signal generation and
// execution. A rejection here is ordinary control flow, not an error:
// the loop logs it, counts it, and moves on.
package risk

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/solrun/internal/domain"
)

// Rejection reasons, stable strings used in logs and metrics labels.
const (
	ReasonTradingDisabled = "trading-disabled"
	ReasonDailyLimit      = "daily-limit"
	ReasonLowConfidence   = "low-confidence"
)

// Verdict is the outcome of gating a single signal.
type Verdict struct {
	Admitted bool   `json:"admitted"`
	Symbol   string `json:"symbol"`
	Reason   string `json:"reason,omitempty"` // set only when not admitted
}

// Gate admits or rejects trade signals against the active policy and
// the rolling daily trade count.
type Gate struct {
	counter *domain.DailyTradeCounter
}

// NewGate wires the gate to the shared daily counter.
func NewGate(counter *domain.DailyTradeCounter) *Gate {
	return &Gate{counter: counter}
}

// Admit checks the signal in fixed order: kill switch, daily budget,
// confidence floor. First failing check names the verdict; checks never
// return errors.
func (g *Gate) Admit(sig domain.TradeSignal, policy domain.TradingPolicy, now time.Time) Verdict {
	v := Verdict{Admitted: true, Symbol: sig.Symbol}

	switch {
	case !policy.TradingEnabled:
		v.Admitted = false
		v.Reason = ReasonTradingDisabled
	case g.counter.Count(now) >= policy.MaxDailyTrades:
		v.Admitted = false
		v.Reason = ReasonDailyLimit
	case sig.Confidence < policy.MinConfidence:
		v.Admitted = false
		v.Reason = ReasonLowConfidence
	}

	if !v.Admitted {
		log.Debug().
			Str("symbol", sig.Symbol).
			Str("action", string(sig.Action)).
			Float64("confidence", sig.Confidence).
			Str("reason", v.Reason).
			Msg("Signal rejected by risk gate")
	}
	return v
}
