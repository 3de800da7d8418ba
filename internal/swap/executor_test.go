package swap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/solrun/internal/config"
	"github.com/sawpanic/solrun/internal/domain"
	"github.com/sawpanic/solrun/internal/positions"
	"github.com/sawpanic/solrun/internal/tokens"
)

type fakeRouter struct {
	quoteErr  error
	buildErr  error
	quotes    int
	builds    int
	outAmount uint64
	quoteAge  time.Duration
	gotBps    int
}

func (f *fakeRouter) Quote(_ context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*domain.SwapQuote, error) {
	f.quotes++
	f.gotBps = slippageBps
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return &domain.SwapQuote{
		InputMint:    inputMint,
		OutputMint:   outputMint,
		InputAmount:  amount,
		OutputAmount: f.outAmount,
		SlippageBps:  slippageBps,
		FetchedAt:    time.Now().Add(-f.quoteAge),
		Raw:          []byte(`{"outAmount":"1"}`),
	}, nil
}

func (f *fakeRouter) BuildTransaction(_ context.Context, _ *domain.SwapQuote, _ string) ([]byte, error) {
	f.builds++
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return []byte("raw-tx"), nil
}

type fakeSigner struct {
	connected bool
	signErr   error
	signs     int
}

func (f *fakeSigner) Connected() bool { return f.connected }

func (f *fakeSigner) Address() (string, bool) {
	if !f.connected {
		return "", false
	}
	return "FakePubkey11111111111111111111111111111111", true
}

func (f *fakeSigner) SignTransaction(raw []byte) ([]byte, error) {
	f.signs++
	if f.signErr != nil {
		return nil, f.signErr
	}
	return append([]byte("signed:"), raw...), nil
}

type fakeChain struct {
	sendErr    error
	confirmErr error
	sends      int
	confirms   int
}

func (f *fakeChain) SendTransaction(_ context.Context, _ []byte) (string, error) {
	f.sends++
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return "FakeSig1111", nil
}

func (f *fakeChain) WaitForConfirmation(_ context.Context, _ string, _ time.Duration) error {
	f.confirms++
	return f.confirmErr
}

type memJournal struct {
	trades []domain.Trade
	err    error
}

func (m *memJournal) Record(_ context.Context, t domain.Trade) error {
	if m.err != nil {
		return m.err
	}
	m.trades = append(m.trades, t)
	return nil
}

type harness struct {
	exec    *Executor
	router  *fakeRouter
	signer  *fakeSigner
	chain   *fakeChain
	journal *memJournal
	book    *positions.Book
	counter *domain.DailyTradeCounter
}

func newHarness() *harness {
	h := &harness{
		router:  &fakeRouter{outAmount: 12_500_000}, // 12.5 JUP at 6 decimals
		signer:  &fakeSigner{connected: true},
		chain:   &fakeChain{},
		journal: &memJournal{},
		book:    positions.NewBook(),
		counter: domain.NewDailyTradeCounter(time.Now()),
	}
	cfg := config.SwapConfig{
		JupiterBaseURL:     "http://router.invalid",
		SlippageBps:        100,
		QuoteTimeoutSecs:   5,
		SubmitTimeoutSecs:  5,
		ConfirmTimeoutSecs: 5,
		ConfirmPollMS:      10,
		MaxQuoteAgeSecs:    30,
		QuoteToken:         "USDC",
	}
	h.exec = NewExecutor(Deps{
		Router:   h.router,
		Signer:   h.signer,
		Chain:    h.chain,
		Registry: tokens.DefaultRegistry(),
		Book:     h.book,
		Counter:  h.counter,
		Journal:  h.journal,
	}, cfg)
	return h
}

func buyOrder() Order {
	return Order{
		Signal: domain.TradeSignal{
			Symbol:     "JUP",
			Action:     domain.ActionBuy,
			Confidence: 0.9,
			CreatedAt:  time.Now(),
		},
		InputToken:  "USDC",
		OutputToken: "JUP",
		Amount:      10,
		Price:       0.80,
	}
}

// assertUntouched verifies the at-most-one-side-effect guarantee after
// a failed pipeline.
func assertUntouched(t *testing.T, h *harness) {
	t.Helper()
	assert.Equal(t, 0, h.book.Count(), "position created by failed pipeline")
	assert.Equal(t, 0, h.counter.Count(time.Now()), "counter moved by failed pipeline")
	assert.Empty(t, h.journal.trades, "trade journaled by failed pipeline")
}

func TestExecuteBuySignalConfirmed(t *testing.T) {
	h := newHarness()
	policy := domain.DefaultTradingPolicy()

	receipt, err := h.exec.Execute(context.Background(), buyOrder(), policy)
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, receipt.State)
	assert.Equal(t, "FakeSig1111", receipt.Signature)
	assert.InDelta(t, 10.0, receipt.FilledInput, 1e-9)
	assert.InDelta(t, 12.5, receipt.FilledOutput, 1e-9)

	// Exactly one position, stop and take derived from entry price.
	require.NotNil(t, receipt.Position)
	pos, ok := h.book.Get("JUP")
	require.True(t, ok)
	assert.Equal(t, domain.ActionBuy, pos.Action)
	assert.InDelta(t, 12.5, pos.Amount, 1e-9)
	assert.InDelta(t, 0.80, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 0.76, pos.StopLossPrice, 1e-9)
	assert.InDelta(t, 0.88, pos.TakeProfitPrice, 1e-9)
	assert.Equal(t, "FakeSig1111", pos.TxSig)

	// Counter moved by exactly one; trade journaled once.
	assert.Equal(t, 1, h.counter.Count(time.Now()))
	require.Len(t, h.journal.trades, 1)
	trade := h.journal.trades[0]
	assert.Equal(t, "USDC/JUP", trade.Pair)
	assert.Equal(t, domain.ActionBuy, trade.Type)
	assert.InDelta(t, 12.5, trade.Amount, 1e-9)
	assert.InDelta(t, 10.0, trade.ValueUSD, 1e-9)
	assert.Equal(t, "FakeSig1111", trade.TxSig)
}

func TestExecuteSellSignalInvertsThresholds(t *testing.T) {
	h := newHarness()
	order := Order{
		Signal: domain.TradeSignal{
			Symbol:     "JUP",
			Action:     domain.ActionSell,
			Confidence: 0.9,
			CreatedAt:  time.Now(),
		},
		InputToken:  "JUP",
		OutputToken: "USDC",
		Amount:      12.5,
		Price:       0.80,
	}

	receipt, err := h.exec.Execute(context.Background(), order, domain.DefaultTradingPolicy())
	require.NoError(t, err)
	require.NotNil(t, receipt.Position)
	pos := *receipt.Position
	assert.Equal(t, domain.ActionSell, pos.Action)
	assert.InDelta(t, 12.5, pos.Amount, 1e-9)
	assert.InDelta(t, 0.84, pos.StopLossPrice, 1e-9)
	assert.InDelta(t, 0.72, pos.TakeProfitPrice, 1e-9)
	assert.Equal(t, domain.ActionSell, h.journal.trades[0].Type)
}

func TestExecuteQuoteError(t *testing.T) {
	h := newHarness()
	h.router.quoteErr = errors.New("status 502")

	_, err := h.exec.Execute(context.Background(), buyOrder(), domain.DefaultTradingPolicy())
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailQuote, perr.Reason)
	assert.Equal(t, StateQuoteRequested, perr.Stage)

	// Nothing downstream ran, nothing mutated.
	assert.Equal(t, 0, h.router.builds)
	assert.Equal(t, 0, h.chain.sends)
	assertUntouched(t, h)
}

func TestExecutePrepareErrorWhenDisconnected(t *testing.T) {
	h := newHarness()
	h.signer.connected = false

	_, err := h.exec.Execute(context.Background(), buyOrder(), domain.DefaultTradingPolicy())
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailPrepare, perr.Reason)
	assert.Equal(t, 0, h.router.builds, "build attempted without a wallet")
	assertUntouched(t, h)
}

func TestExecutePrepareErrorOnBuildFailure(t *testing.T) {
	h := newHarness()
	h.router.buildErr = errors.New("route expired")

	_, err := h.exec.Execute(context.Background(), buyOrder(), domain.DefaultTradingPolicy())
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailPrepare, perr.Reason)
	assert.Equal(t, 0, h.signer.signs)
	assertUntouched(t, h)
}

func TestExecuteSignErrorAfterDisconnect(t *testing.T) {
	h := newHarness()
	// Disconnect landed between prepare and sign: the credential is
	// gone and signing must fail fast.
	h.signer.signErr = errors.New("no signing credential held")

	_, err := h.exec.Execute(context.Background(), buyOrder(), domain.DefaultTradingPolicy())
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailSign, perr.Reason)
	assert.Equal(t, StateTxPrepared, perr.Stage)
	assert.Equal(t, 0, h.chain.sends, "signed nothing yet submitted")
	assertUntouched(t, h)
}

func TestExecuteSubmitError(t *testing.T) {
	h := newHarness()
	h.chain.sendErr = errors.New("all rpc endpoints failed")

	_, err := h.exec.Execute(context.Background(), buyOrder(), domain.DefaultTradingPolicy())
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailSubmit, perr.Reason)
	assert.Equal(t, 0, h.chain.confirms)
	assertUntouched(t, h)
}

func TestExecuteConfirmTimeout(t *testing.T) {
	h := newHarness()
	h.chain.confirmErr = context.DeadlineExceeded

	_, err := h.exec.Execute(context.Background(), buyOrder(), domain.DefaultTradingPolicy())
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailConfirm, perr.Reason)
	assertUntouched(t, h)
}

func TestExecuteOnChainFailure(t *testing.T) {
	h := newHarness()
	h.chain.confirmErr = errors.New("transaction failed on chain")

	_, err := h.exec.Execute(context.Background(), buyOrder(), domain.DefaultTradingPolicy())
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailSubmit, perr.Reason)
	assertUntouched(t, h)
}

func TestExecuteRefusesBusySymbol(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.book.Open(domain.NewPosition("JUP", domain.ActionBuy, 1, 0.8, 0.05, 0.10, time.Now())))

	_, err := h.exec.Execute(context.Background(), buyOrder(), domain.DefaultTradingPolicy())
	var busy *positions.ErrSymbolBusy
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, "JUP", busy.Symbol)
	assert.Equal(t, 0, h.router.quotes, "pipeline started despite open position")
}

func TestExecuteValidatesAtBoundary(t *testing.T) {
	h := newHarness()
	policy := domain.DefaultTradingPolicy()

	cases := []struct {
		name  string
		order Order
	}{
		{"zero amount", Order{InputToken: "USDC", OutputToken: "JUP", Amount: 0, Manual: true}},
		{"negative amount", Order{InputToken: "USDC", OutputToken: "JUP", Amount: -1, Manual: true}},
		{"negative slippage", Order{InputToken: "USDC", OutputToken: "JUP", Amount: 1, SlippageBps: -5, Manual: true}},
		{"unknown input token", Order{InputToken: "WIF", OutputToken: "JUP", Amount: 1, Manual: true}},
		{"unknown output token", Order{InputToken: "USDC", OutputToken: "WIF", Amount: 1, Manual: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.exec.Execute(context.Background(), tc.order, policy)
			require.Error(t, err)
			var perr *PipelineError
			assert.False(t, errors.As(err, &perr), "validation failure reached the pipeline")
		})
	}
	assert.Equal(t, 0, h.router.quotes)
}

func TestExecuteManualSwap(t *testing.T) {
	h := newHarness()
	order := Order{
		InputToken:  "SOL",
		OutputToken: "USDC",
		Amount:      0.5,
		Price:       150,
		Manual:      true,
	}

	receipt, err := h.exec.Execute(context.Background(), order, domain.DefaultTradingPolicy())
	require.NoError(t, err)
	assert.Nil(t, receipt.Position)
	assert.Equal(t, 0, h.book.Count())
	assert.Equal(t, 0, h.counter.Count(time.Now()), "manual swap spent the daily budget")

	require.Len(t, h.journal.trades, 1)
	trade := h.journal.trades[0]
	assert.Equal(t, "SOL/USDC", trade.Pair)
	assert.Equal(t, domain.ActionSell, trade.Type, "spending SOL records as a sell")
	assert.InDelta(t, 0.5, trade.Amount, 1e-9)
	assert.InDelta(t, 75.0, trade.ValueUSD, 1e-9)
}

func TestExecuteDefaultSlippage(t *testing.T) {
	h := newHarness()
	order := buyOrder() // SlippageBps zero

	_, err := h.exec.Execute(context.Background(), order, domain.DefaultTradingPolicy())
	require.NoError(t, err)
	assert.Equal(t, 100, h.router.gotBps)

	h2 := newHarness()
	order.SlippageBps = 250
	_, err = h2.exec.Execute(context.Background(), order, domain.DefaultTradingPolicy())
	require.NoError(t, err)
	assert.Equal(t, 250, h2.router.gotBps)
}

func TestExecuteStaleQuoteRefetchedBeforeSubmit(t *testing.T) {
	h := newHarness()
	h.router.quoteAge = time.Minute // beyond the 30s max age

	receipt, err := h.exec.Execute(context.Background(), buyOrder(), domain.DefaultTradingPolicy())
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, receipt.State)
	assert.Equal(t, 2, h.router.quotes, "stale quote submitted without a refresh")
	assert.Equal(t, 2, h.signer.signs)
	assert.Equal(t, 1, h.chain.sends)
}

func TestExecuteJournalFailureDoesNotFailTrade(t *testing.T) {
	h := newHarness()
	h.journal.err = errors.New("db down")

	receipt, err := h.exec.Execute(context.Background(), buyOrder(), domain.DefaultTradingPolicy())
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, receipt.State)
	assert.Equal(t, 1, h.book.Count(), "confirmed trade lost its position over a journal error")
	assert.Equal(t, 1, h.counter.Count(time.Now()))
}

func TestGetQuote(t *testing.T) {
	h := newHarness()

	quote, err := h.exec.GetQuote(context.Background(), "USDC", "JUP", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000), quote.InputAmount) // 10 USDC at 6 decimals
	assert.Equal(t, uint64(12_500_000), quote.OutputAmount)
	assert.Equal(t, 100, quote.SlippageBps)

	_, err = h.exec.GetQuote(context.Background(), "USDC", "WIF", 10, 0)
	var unknown *tokens.ErrUnknownToken
	require.ErrorAs(t, err, &unknown)
}
