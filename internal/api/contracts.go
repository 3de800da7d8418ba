package api

import (
	"time"

	"github.com/sawpanic/solrun/internal/domain"
)

// Request bodies.

type connectWalletRequest struct {
	PrivateKey string `json:"privateKey"`
}

type swapRequest struct {
	InputToken  string  `json:"inputToken"`
	OutputToken string  `json:"outputToken"`
	Amount      float64 `json:"amount"`
	SlippageBps int     `json:"slippageBps"`
}

// Response bodies. Key casing follows the dashboard contract: portfolio
// uses camelCase aggregates, trade legs use value_usd.

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type connectWalletResponse struct {
	Success bool   `json:"success"`
	Address string `json:"address,omitempty"`
	Message string `json:"message"`
}

type walletBalanceResponse struct {
	Address    string  `json:"address"`
	Balance    float64 `json:"balance"`
	BalanceUSD float64 `json:"balance_usd"`
}

type tokenPriceResponse struct {
	Token string  `json:"token"`
	Price float64 `json:"price"`
}

// marketPair is one dashboard market row, keyed by "SYM/USDC" pair.
type marketPair struct {
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
	Volume24h float64 `json:"volume24h"`
}

type tradeLeg struct {
	Token    string  `json:"token"`
	Amount   float64 `json:"amount"`
	ValueUSD float64 `json:"value_usd"`
}

type tradeSummary struct {
	Pair   string  `json:"pair"`
	Type   string  `json:"type"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Time   string  `json:"time"`
}

type swapResponse struct {
	Success bool         `json:"success"`
	Trade   tradeSummary `json:"trade"`
	Input   tradeLeg     `json:"input"`
	Output  tradeLeg     `json:"output"`
	TxSig   string       `json:"tx_signature,omitempty"`
}

type portfolioResponse struct {
	TotalValue    float64          `json:"totalValue"`
	TotalPnL      float64          `json:"totalPnL"`
	PnLPercentage float64          `json:"pnlPercentage"`
	Holdings      []domain.Holding `json:"holdings"`
}

type healthResponse struct {
	Status    string                `json:"status"`
	Timestamp time.Time             `json:"timestamp"`
	Uptime    string                `json:"uptime"`
	Version   string                `json:"version"`
	System    systemInfo            `json:"system"`
	Checks    map[string]checkState `json:"checks"`
	Activity  map[string]float64    `json:"activity"`
}

type systemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAllocBytes uint64 `json:"mem_alloc_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

type checkState struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// newTradeSummary renders the dashboard trade row. The clock-only time
// format is what the dashboard's ticker column expects.
func newTradeSummary(trade domain.Trade) tradeSummary {
	return tradeSummary{
		Pair:   trade.Pair,
		Type:   string(trade.Type),
		Price:  trade.Price,
		Amount: trade.Amount,
		Time:   trade.Time.Format("15:04:05"),
	}
}
