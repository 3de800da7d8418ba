package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/solrun/internal/config"
	"github.com/sawpanic/solrun/internal/domain"
	"github.com/sawpanic/solrun/internal/positions"
	"github.com/sawpanic/solrun/internal/tokens"
)

// State is the position of a swap attempt in the pipeline.
type State int

const (
	StateQuoteRequested State = iota
	StateQuoteReceived
	StateTxPrepared
	StateTxSigned
	StateSubmitted
	StateConfirmed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQuoteRequested:
		return "QUOTE_REQUESTED"
	case StateQuoteReceived:
		return "QUOTE_RECEIVED"
	case StateTxPrepared:
		return "TX_PREPARED"
	case StateTxSigned:
		return "TX_SIGNED"
	case StateSubmitted:
		return "SUBMITTED"
	case StateConfirmed:
		return "CONFIRMED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Failure reasons, one per pipeline stage that can abort.
const (
	FailQuote   = "quote-error"
	FailPrepare = "prepare-error"
	FailSign    = "sign-error"
	FailSubmit  = "submit-error"
	FailConfirm = "confirm-timeout"
)

// PipelineError is the terminal failure of a swap attempt. The pipeline
// aborts at the failing stage with no position, counter, or wallet
// mutation.
type PipelineError struct {
	Stage  State
	Reason string
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("swap failed at %s (%s): %v", e.Stage, e.Reason, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Signer is the wallet surface the executor needs.
type Signer interface {
	Address() (string, bool)
	SignTransaction(raw []byte) ([]byte, error)
}

// Chain submits signed transactions and awaits confirmation.
type Chain interface {
	SendTransaction(ctx context.Context, signedTx []byte) (string, error)
	WaitForConfirmation(ctx context.Context, signature string, poll time.Duration) error
}

// Journal records executed trades.
type Journal interface {
	Record(ctx context.Context, trade domain.Trade) error
}

// Order is one swap request. Signal orders carry bookkeeping (position,
// daily counter); manual orders run the bare pipeline and are only
// journaled.
type Order struct {
	Signal      domain.TradeSignal
	InputToken  string
	OutputToken string
	Amount      float64 // input token, human units
	SlippageBps int     // 0 means the configured default
	Price       float64 // USD price used for the trade record / position entry
	Manual      bool
}

// Receipt is the outcome of a confirmed swap.
type Receipt struct {
	State        State             `json:"state"`
	Quote        *domain.SwapQuote `json:"quote"`
	Signature    string            `json:"signature"`
	Trade        domain.Trade      `json:"trade"`
	Position     *domain.Position  `json:"position,omitempty"`
	FilledInput  float64           `json:"filled_input"`
	FilledOutput float64           `json:"filled_output"`
	ConfirmedAt  time.Time         `json:"confirmed_at"`
}

// Deps are the executor's collaborators, wired once at startup.
type Deps struct {
	Router   Router
	Signer   Signer
	Chain    Chain
	Registry *tokens.Registry
	Book     *positions.Book
	Counter  *domain.DailyTradeCounter
	Journal  Journal
}

// Executor drives quote → prepare → sign → submit → confirm. It is the
// only component that opens positions and spends the daily trade budget.
type Executor struct {
	deps Deps
	cfg  config.SwapConfig
}

// NewExecutor builds the executor.
func NewExecutor(deps Deps, cfg config.SwapConfig) *Executor {
	return &Executor{deps: deps, cfg: cfg}
}

// GetQuote validates the pair and fetches a route estimate without
// executing anything.
func (e *Executor) GetQuote(ctx context.Context, inputToken, outputToken string, amount float64, slippageBps int) (*domain.SwapQuote, error) {
	in, out, baseAmount, slippage, err := e.resolveOrder(inputToken, outputToken, amount, slippageBps)
	if err != nil {
		return nil, err
	}
	qctx, cancel := context.WithTimeout(ctx, e.cfg.QuoteTimeout())
	defer cancel()
	return e.deps.Router.Quote(qctx, in.Mint, out.Mint, baseAmount, slippage)
}

// Execute runs one order through the full pipeline. On CONFIRMED it
// journals the trade and, for signal orders, opens the position and
// increments the daily counter. On FAILED nothing is mutated.
func (e *Executor) Execute(ctx context.Context, order Order, policy domain.TradingPolicy) (*Receipt, error) {
	in, out, baseAmount, slippage, err := e.resolveOrder(order.InputToken, order.OutputToken, order.Amount, order.SlippageBps)
	if err != nil {
		return nil, err
	}
	if !order.Manual {
		if order.Signal.Action != domain.ActionBuy && order.Signal.Action != domain.ActionSell {
			return nil, fmt.Errorf("signal order without direction")
		}
		if e.deps.Book.Has(order.Signal.Symbol) {
			return nil, &positions.ErrSymbolBusy{Symbol: order.Signal.Symbol}
		}
	}

	logger := log.With().
		Str("pair", domain.PairSymbol(order.InputToken, order.OutputToken)).
		Float64("amount", order.Amount).
		Bool("manual", order.Manual).
		Logger()

	// Quote, prepare, and sign are all local or read-only; they rerun
	// once if the quote went stale before submission.
	var (
		quote  *domain.SwapQuote
		signed []byte
	)
	for attempt := 0; ; attempt++ {
		quote, signed, err = e.prepareSigned(ctx, in.Mint, out.Mint, baseAmount, slippage, logger)
		if err != nil {
			return nil, err
		}
		if !quote.Stale(time.Now(), e.cfg.MaxQuoteAge()) || attempt > 0 {
			break
		}
		logger.Info().Dur("age", quote.Age(time.Now())).Msg("Quote went stale before submission, re-fetching")
	}

	// Submit.
	sctx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout())
	sig, err := e.deps.Chain.SendTransaction(sctx, signed)
	cancel()
	if err != nil {
		return nil, e.fail(logger, StateTxSigned, FailSubmit, err)
	}
	logger.Info().Str("signature", sig).Msg("Swap submitted")

	// Confirm.
	cctx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout())
	err = e.deps.Chain.WaitForConfirmation(cctx, sig, e.cfg.ConfirmPoll())
	cancel()
	if err != nil {
		reason := FailSubmit
		if errors.Is(err, context.DeadlineExceeded) {
			reason = FailConfirm
		}
		return nil, e.fail(logger, StateSubmitted, reason, err)
	}

	now := time.Now()
	receipt := &Receipt{
		State:        StateConfirmed,
		Quote:        quote,
		Signature:    sig,
		FilledInput:  in.FromBaseUnits(quote.InputAmount),
		FilledOutput: out.FromBaseUnits(quote.OutputAmount),
		ConfirmedAt:  now,
	}
	receipt.Trade, receipt.Position = e.settle(ctx, order, receipt, policy, now)

	logger.Info().
		Str("signature", sig).
		Float64("filled_input", receipt.FilledInput).
		Float64("filled_output", receipt.FilledOutput).
		Msg("Swap confirmed")
	return receipt, nil
}

// prepareSigned runs the read-only half of the pipeline: quote, build,
// sign. Nothing here touches the chain or the books.
func (e *Executor) prepareSigned(ctx context.Context, inMint, outMint string, baseAmount uint64, slippage int, logger zerolog.Logger) (*domain.SwapQuote, []byte, error) {
	qctx, cancel := context.WithTimeout(ctx, e.cfg.QuoteTimeout())
	quote, err := e.deps.Router.Quote(qctx, inMint, outMint, baseAmount, slippage)
	cancel()
	if err != nil {
		return nil, nil, e.fail(logger, StateQuoteRequested, FailQuote, err)
	}
	logger.Debug().
		Uint64("out_amount", quote.OutputAmount).
		Float64("price_impact", quote.PriceImpact).
		Msg("Quote received")

	address, ok := e.deps.Signer.Address()
	if !ok {
		return nil, nil, e.fail(logger, StateQuoteReceived, FailPrepare, errors.New("wallet not connected"))
	}
	bctx, cancel := context.WithTimeout(ctx, e.cfg.QuoteTimeout())
	raw, err := e.deps.Router.BuildTransaction(bctx, quote, address)
	cancel()
	if err != nil {
		return nil, nil, e.fail(logger, StateQuoteReceived, FailPrepare, err)
	}
	logger.Debug().Int("tx_bytes", len(raw)).Msg("Transaction prepared")

	signed, err := e.deps.Signer.SignTransaction(raw)
	if err != nil {
		return nil, nil, e.fail(logger, StateTxPrepared, FailSign, err)
	}
	return quote, signed, nil
}

// settle performs the post-confirmation bookkeeping. The swap already
// happened on chain; journal failures are logged, never propagated.
func (e *Executor) settle(ctx context.Context, order Order, receipt *Receipt, policy domain.TradingPolicy, now time.Time) (domain.Trade, *domain.Position) {
	trade := domain.Trade{
		ID:     uuid.New().String(),
		Pair:   domain.PairSymbol(order.InputToken, order.OutputToken),
		Price:  order.Price,
		Amount: order.Amount,
		Time:   now,
		TxSig:  receipt.Signature,
	}

	var pos *domain.Position
	if order.Manual {
		// Spending the native asset reads as selling it.
		trade.Type = domain.ActionBuy
		if order.InputToken == "SOL" {
			trade.Type = domain.ActionSell
		}
		trade.ValueUSD = order.Amount * order.Price
	} else {
		trade.Type = order.Signal.Action
		posAmount := order.Amount
		if order.Signal.Action == domain.ActionBuy {
			posAmount = receipt.FilledOutput
		}
		trade.Amount = posAmount
		trade.ValueUSD = posAmount * order.Price

		p := domain.NewPosition(order.Signal.Symbol, order.Signal.Action, posAmount, order.Price,
			policy.StopLossFraction, policy.TakeProfitFraction, now)
		p.TxSig = receipt.Signature
		if err := e.deps.Book.Open(p); err != nil {
			log.Error().Err(err).Str("symbol", order.Signal.Symbol).Msg("Confirmed swap could not register its position")
		} else {
			pos = &p
		}
		e.deps.Counter.Increment(now)
	}

	if err := e.deps.Journal.Record(ctx, trade); err != nil {
		log.Warn().Err(err).Str("trade_id", trade.ID).Msg("Trade journal write failed")
	}
	return trade, pos
}

// resolveOrder validates tokens and amounts at the boundary, before any
// pipeline stage runs.
func (e *Executor) resolveOrder(inputToken, outputToken string, amount float64, slippageBps int) (in, out tokens.Token, baseAmount uint64, slippage int, err error) {
	if amount <= 0 {
		return in, out, 0, 0, fmt.Errorf("amount must be positive, got %f", amount)
	}
	if slippageBps < 0 {
		return in, out, 0, 0, fmt.Errorf("slippage_bps cannot be negative, got %d", slippageBps)
	}
	in, err = e.deps.Registry.Resolve(inputToken)
	if err != nil {
		return in, out, 0, 0, err
	}
	out, err = e.deps.Registry.Resolve(outputToken)
	if err != nil {
		return in, out, 0, 0, err
	}
	slippage = slippageBps
	if slippage == 0 {
		slippage = e.cfg.SlippageBps
	}
	baseAmount = in.ToBaseUnits(amount)
	if baseAmount == 0 {
		return in, out, 0, 0, fmt.Errorf("amount %f is below one base unit of %s", amount, in.Symbol)
	}
	return in, out, baseAmount, slippage, nil
}

func (e *Executor) fail(logger zerolog.Logger, stage State, reason string, err error) error {
	perr := &PipelineError{Stage: stage, Reason: reason, Err: err}
	logger.Warn().Err(err).Str("stage", stage.String()).Str("reason", reason).Msg("Swap pipeline aborted")
	return perr
}
