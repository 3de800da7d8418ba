package domain

import (
	"fmt"
	"time"
)

// TradeAction is the direction of a trade signal or position.
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
	// ActionHold is internal to signal evaluation; a TradeSignal is never
	// emitted with it.
	ActionHold TradeAction = "HOLD"
)

// MarketSnapshot is one observation of a symbol from a price venue.
// Immutable once produced; one per symbol per fetch cycle.
type MarketSnapshot struct {
	Symbol         string    `json:"symbol"`
	Price          float64   `json:"price"`
	Volume         float64   `json:"volume"`
	PriceChange24h float64   `json:"price_change_24h"`
	MarketCap      float64   `json:"market_cap,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}

// SentimentScore is an optional per-symbol sentiment reading in [0,1].
// Absence of a score for a symbol is a valid state (no opinion).
type SentimentScore struct {
	Symbol     string    `json:"symbol"`
	Score      float64   `json:"score"`
	Source     string    `json:"source,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// TradeSignal is a directional call produced by the signal generator.
type TradeSignal struct {
	Symbol          string      `json:"symbol"`
	Action          TradeAction `json:"action"`
	Confidence      float64     `json:"confidence"`
	Reasoning       []string    `json:"reasoning"`
	SuggestedAmount float64     `json:"suggested_amount"`
	CreatedAt       time.Time   `json:"created_at"`
}

// SwapQuote is an advisory, time-limited estimate from the swap router.
// Quotes go stale; execution must re-validate age before submission.
type SwapQuote struct {
	InputMint    string    `json:"input_mint"`
	OutputMint   string    `json:"output_mint"`
	InputAmount  uint64    `json:"input_amount"`
	OutputAmount uint64    `json:"output_amount"`
	PriceImpact  float64   `json:"price_impact"`
	SlippageBps  int       `json:"slippage_bps"`
	FetchedAt    time.Time `json:"fetched_at"`
	// Raw carries the router's quote payload verbatim; the swap build
	// endpoint requires it echoed back unmodified.
	Raw []byte `json:"-"`
}

// Age reports how old the quote is at the given instant.
func (q *SwapQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.FetchedAt)
}

// Stale reports whether the quote exceeded the allowed age.
func (q *SwapQuote) Stale(now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && q.Age(now) > maxAge
}

// SwapResult is the terminal outcome of a submitted swap.
type SwapResult struct {
	Signature    string  `json:"signature"`
	Success      bool    `json:"success"`
	FilledInput  float64 `json:"filled_input"`
	FilledOutput float64 `json:"filled_output"`
}

// Trade is one executed swap, as journaled and as reported by the
// recent-trades interface.
type Trade struct {
	ID       string      `json:"id"`
	Pair     string      `json:"pair"`
	Type     TradeAction `json:"type"`
	Price    float64     `json:"price"`
	Amount   float64     `json:"amount"`
	ValueUSD float64     `json:"value_usd,omitempty"`
	Time     time.Time   `json:"time"`
	TxSig    string      `json:"tx_signature,omitempty"`
}

// Holding is one portfolio line: a token amount valued at the latest price.
type Holding struct {
	Token  string  `json:"token"`
	Amount float64 `json:"amount"`
	Value  float64 `json:"value"`
	PnL    float64 `json:"pnl"`
}

// PortfolioSnapshot aggregates wallet holdings and open-position PnL.
type PortfolioSnapshot struct {
	TotalValue    float64   `json:"total_value"`
	TotalPnL      float64   `json:"total_pnl"`
	PnLPercentage float64   `json:"pnl_percentage"`
	Holdings      []Holding `json:"holdings"`
	CapturedAt    time.Time `json:"captured_at"`
}

// PairSymbol renders the conventional "IN/OUT" pair label for a swap.
func PairSymbol(input, output string) string {
	return fmt.Sprintf("%s/%s", input, output)
}
