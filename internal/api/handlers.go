package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/solrun/internal/advisor"
	"github.com/sawpanic/solrun/internal/domain"
	"github.com/sawpanic/solrun/internal/market"
	"github.com/sawpanic/solrun/internal/metrics"
	"github.com/sawpanic/solrun/internal/persistence"
	"github.com/sawpanic/solrun/internal/portfolio"
	"github.com/sawpanic/solrun/internal/positions"
	"github.com/sawpanic/solrun/internal/stream"
	"github.com/sawpanic/solrun/internal/swap"
	"github.com/sawpanic/solrun/internal/tokens"
	"github.com/sawpanic/solrun/internal/wallet"
)

// Deps are the handler collaborators, wired once at startup.
type Deps struct {
	Wallet     *wallet.Wallet
	Feed       market.Feed
	Registry   *tokens.Registry
	Executor   *swap.Executor
	Valuer     *portfolio.Valuer
	Store      persistence.TradeStore
	Advisor    *advisor.Advisor
	Book       *positions.Book
	Hub        *stream.Hub
	Metrics    *metrics.Metrics
	Policy     domain.TradingPolicy
	Watchlist  []string
	QuoteToken string
	Version    string
	// Status is supplied by the trading loop; nil means no loop is
	// attached and the handler synthesizes a stopped status.
	Status func() domain.AgentStatus
}

// Handlers carries every endpoint implementation.
type Handlers struct {
	deps    Deps
	started time.Time
}

// NewHandlers builds the handler set.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps, started: time.Now()}
}

// MetricsHandler serves the Prometheus exposition endpoint.
func (h *Handlers) MetricsHandler() http.Handler {
	return h.deps.Metrics.Handler()
}

// StreamHandler serves the dashboard websocket.
func (h *Handlers) StreamHandler() http.Handler {
	return h.deps.Hub
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Response encode failed")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.writeJSON(w, status, errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestID(r),
	})
}

// decodeBody parses a JSON request body into dst, rejecting unknown
// garbage early.
func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "malformed_body", "Request body is not valid JSON")
		return false
	}
	return true
}

// NotFound answers unmatched routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found", "The requested endpoint does not exist")
}

// ConnectWallet loads a signing credential into the wallet.
func (h *Handlers) ConnectWallet(w http.ResponseWriter, r *http.Request) {
	var req connectWalletRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	address, err := h.deps.Wallet.Connect(req.PrivateKey)
	if err != nil {
		log.Warn().Err(err).Msg("Wallet connect rejected")
		h.writeJSON(w, http.StatusBadRequest, connectWalletResponse{
			Success: false,
			Message: "Failed to connect wallet",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, connectWalletResponse{
		Success: true,
		Address: address,
		Message: "Wallet connected successfully",
	})
}

// DisconnectWallet purges the credential. Idempotent.
func (h *Handlers) DisconnectWallet(w http.ResponseWriter, r *http.Request) {
	h.deps.Wallet.Disconnect()
	h.writeJSON(w, http.StatusOK, connectWalletResponse{
		Success: true,
		Message: "Wallet disconnected",
	})
}

// WalletBalance reports the native balance, valued in USD when a price
// is reachable.
func (h *Handlers) WalletBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.deps.Wallet.BalanceSOL(r.Context())
	if err != nil {
		if errors.Is(err, wallet.ErrNotConnected) {
			h.writeError(w, r, http.StatusBadRequest, "wallet_not_connected", "Wallet not connected")
			return
		}
		h.writeError(w, r, http.StatusBadGateway, "balance_unavailable", "Balance query failed")
		return
	}

	address, _ := h.deps.Wallet.Address()

	valueUSD := 0.0
	if price, err := h.deps.Feed.Price(r.Context(), "SOL"); err == nil {
		valueUSD = balance * price
	} else {
		log.Warn().Err(err).Msg("SOL price unavailable for balance valuation")
	}

	h.writeJSON(w, http.StatusOK, walletBalanceResponse{
		Address:    address,
		Balance:    balance,
		BalanceUSD: valueUSD,
	})
}

// MarketData reports the watchlist snapshots keyed by pair, the shape
// the dashboard ticker renders directly.
func (h *Handlers) MarketData(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.deps.Feed.Snapshots(r.Context(), h.deps.Watchlist)
	if err != nil {
		h.writeError(w, r, http.StatusBadGateway, "market_unavailable", "Market data fetch failed")
		return
	}

	data := make(map[string]marketPair, len(snaps))
	for sym, snap := range snaps {
		data[domain.PairSymbol(sym, h.deps.QuoteToken)] = marketPair{
			Price:     snap.Price,
			Change24h: snap.PriceChange24h,
			Volume24h: snap.Volume,
		}
	}
	h.writeJSON(w, http.StatusOK, data)
}

// TokenPrice resolves one symbol and returns its latest price.
func (h *Handlers) TokenPrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.URL.Query().Get("token"))
	if symbol == "" {
		h.writeError(w, r, http.StatusBadRequest, "missing_token", "Query parameter 'token' is required")
		return
	}
	token, err := h.deps.Registry.Resolve(symbol)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "unknown_token", err.Error())
		return
	}

	price, err := h.deps.Feed.Price(r.Context(), token.Symbol)
	if err != nil {
		h.writeError(w, r, http.StatusBadGateway, "price_unavailable", "Price fetch failed")
		return
	}
	h.writeJSON(w, http.StatusOK, tokenPriceResponse{Token: token.Symbol, Price: price})
}

// PortfolioData values the wallet and open positions.
func (h *Handlers) PortfolioData(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.deps.Valuer.Snapshot(r.Context())
	if err != nil {
		if errors.Is(err, wallet.ErrNotConnected) {
			h.writeError(w, r, http.StatusBadRequest, "wallet_not_connected", "Wallet not connected")
			return
		}
		h.writeError(w, r, http.StatusBadGateway, "portfolio_unavailable", "Portfolio valuation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, portfolioResponse{
		TotalValue:    snapshot.TotalValue,
		TotalPnL:      snapshot.TotalPnL,
		PnLPercentage: snapshot.PnLPercentage,
		Holdings:      snapshot.Holdings,
	})
}

// AIRecommendations serves advisor output for the current market state.
// The advisor degrades to canned advice on its own; only a market data
// outage fails the endpoint.
func (h *Handlers) AIRecommendations(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.deps.Feed.Snapshots(r.Context(), h.deps.Watchlist)
	if err != nil {
		h.writeError(w, r, http.StatusBadGateway, "market_unavailable", "Market data fetch failed")
		return
	}

	var pf *domain.PortfolioSnapshot
	if snapshot, err := h.deps.Valuer.Snapshot(r.Context()); err == nil {
		pf = &snapshot
	}

	h.writeJSON(w, http.StatusOK, h.deps.Advisor.Recommend(r.Context(), snaps, pf))
}

// GetQuote validates the pair and returns a route estimate without
// executing anything.
func (h *Handlers) GetQuote(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if !h.validateSwapRequest(w, r, req) {
		return
	}

	quote, err := h.deps.Executor.GetQuote(r.Context(), req.InputToken, req.OutputToken, req.Amount, req.SlippageBps)
	if err != nil {
		var unknown *tokens.ErrUnknownToken
		if errors.As(err, &unknown) {
			h.writeError(w, r, http.StatusBadRequest, "unknown_token", unknown.Error())
			return
		}
		h.writeError(w, r, http.StatusBadGateway, "quote_unavailable", "Quote fetch failed")
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}

// ExecuteTrade runs a manual swap through the full pipeline. Manual
// swaps bypass the risk gate and the daily counter; they are journaled
// and streamed like any other fill.
func (h *Handlers) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if !h.validateSwapRequest(w, r, req) {
		return
	}

	// The journal entry carries the output token's price; both legs are
	// valued best-effort and read zero when the feed is down.
	inPrice := h.priceOrZero(r, req.InputToken)
	outPrice := h.priceOrZero(r, req.OutputToken)

	order := swap.Order{
		InputToken:  req.InputToken,
		OutputToken: req.OutputToken,
		Amount:      req.Amount,
		SlippageBps: req.SlippageBps,
		Price:       outPrice,
		Manual:      true,
	}
	receipt, err := h.deps.Executor.Execute(r.Context(), order, h.deps.Policy)
	if err != nil {
		var perr *swap.PipelineError
		if errors.As(err, &perr) {
			h.deps.Metrics.RecordSwapFailure(perr.Stage.String(), perr.Reason)
			h.writeError(w, r, http.StatusBadGateway, perr.Reason, perr.Error())
			return
		}
		h.writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	h.deps.Metrics.RecordTrade(string(receipt.Trade.Type), "manual")
	h.deps.Hub.Broadcast(stream.TradeEvent(receipt.Trade))

	h.writeJSON(w, http.StatusOK, swapResponse{
		Success: true,
		Trade:   newTradeSummary(receipt.Trade),
		Input: tradeLeg{
			Token:    req.InputToken,
			Amount:   receipt.FilledInput,
			ValueUSD: receipt.FilledInput * inPrice,
		},
		Output: tradeLeg{
			Token:    req.OutputToken,
			Amount:   receipt.FilledOutput,
			ValueUSD: receipt.FilledOutput * outPrice,
		},
		TxSig: receipt.Signature,
	})
}

// RecentTrades lists journaled trades newest first, as a bare array.
func (h *Handlers) RecentTrades(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, r, http.StatusBadRequest, "invalid_limit", "Query parameter 'limit' must be a positive integer")
			return
		}
		limit = n
	}

	trades, err := h.deps.Store.Recent(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, http.StatusBadGateway, "journal_unavailable", "Trade journal read failed")
		return
	}

	rows := make([]tradeSummary, 0, len(trades))
	for _, trade := range trades {
		rows = append(rows, newTradeSummary(trade))
	}
	h.writeJSON(w, http.StatusOK, rows)
}

// Positions lists the open position book.
func (h *Handlers) Positions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.deps.Book.List())
}

// AgentStatus reports the trading loop's state. Without a loop attached
// the handler synthesizes a stopped status from its own collaborators.
func (h *Handlers) AgentStatus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Status != nil {
		h.writeJSON(w, http.StatusOK, h.deps.Status())
		return
	}
	h.writeJSON(w, http.StatusOK, domain.AgentStatus{
		Running:         false,
		TradingEnabled:  h.deps.Policy.TradingEnabled,
		WalletConnected: h.deps.Wallet.Connected(),
		MaxDailyTrades:  h.deps.Policy.MaxDailyTrades,
		OpenPositions:   h.deps.Book.Count(),
	})
}

// Health reports process health, cheap local checks, and the counter
// totals a dashboard poll wants without scraping /metrics.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]checkState{}

	if h.deps.Wallet.Connected() {
		checks["wallet"] = checkState{Status: "ok"}
	} else {
		checks["wallet"] = checkState{Status: "degraded", Message: "wallet not connected"}
	}
	if h.deps.Policy.TradingEnabled {
		checks["trading"] = checkState{Status: "ok"}
	} else {
		checks["trading"] = checkState{Status: "degraded", Message: "trading disabled by policy"}
	}
	checks["stream"] = checkState{
		Status:  "ok",
		Message: strconv.Itoa(h.deps.Hub.ClientCount()) + " clients",
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	h.writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Version:   h.deps.Version,
		System: systemInfo{
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			MemAllocBytes: mem.Alloc,
			NumGC:         mem.NumGC,
		},
		Checks:   checks,
		Activity: h.deps.Metrics.Snapshot(),
	})
}

// validateSwapRequest enforces the boundary checks shared by quote and
// execute: tokens present, positive amount, non-negative slippage.
func (h *Handlers) validateSwapRequest(w http.ResponseWriter, r *http.Request, req swapRequest) bool {
	switch {
	case strings.TrimSpace(req.InputToken) == "" || strings.TrimSpace(req.OutputToken) == "":
		h.writeError(w, r, http.StatusBadRequest, "missing_token", "inputToken and outputToken are required")
	case req.Amount <= 0:
		h.writeError(w, r, http.StatusBadRequest, "invalid_amount", "amount must be positive")
	case req.SlippageBps < 0:
		h.writeError(w, r, http.StatusBadRequest, "invalid_slippage", "slippageBps cannot be negative")
	default:
		return true
	}
	return false
}

// priceOrZero values a token best-effort for display legs.
func (h *Handlers) priceOrZero(r *http.Request, symbol string) float64 {
	price, err := h.deps.Feed.Price(r.Context(), symbol)
	if err != nil {
		log.Warn().Err(err).Str("token", symbol).Msg("Price unavailable for trade valuation")
		return 0
	}
	return price
}
