// Package swap drives token swaps through the Jupiter router: quote,
// transaction build, signing, submission, confirmation. The executor is
// the only writer of positions and trade counts.
package swap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sawpanic/solrun/internal/config"
	"github.com/sawpanic/solrun/internal/domain"
)

// Router is the quote/build surface of the swap service. Satisfied by
// JupiterClient; faked in tests.
type Router interface {
	Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*domain.SwapQuote, error)
	BuildTransaction(ctx context.Context, quote *domain.SwapQuote, userPublicKey string) ([]byte, error)
}

// JupiterClient talks to the Jupiter v6 quote API.
type JupiterClient struct {
	baseURL string
	client  *http.Client
}

// NewJupiterClient builds the router client. The HTTP timeout is the
// quote timeout; the executor wraps calls in tighter contexts as needed.
func NewJupiterClient(cfg config.SwapConfig) *JupiterClient {
	return &JupiterClient{
		baseURL: strings.TrimRight(cfg.JupiterBaseURL, "/"),
		client:  &http.Client{Timeout: cfg.QuoteTimeout()},
	}
}

// quoteResponse carries the subset of the router's quote we act on. The
// full payload is retained verbatim for the build call.
type quoteResponse struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	SlippageBps    int    `json:"slippageBps"`
}

// Quote asks the router for a route estimate. Amounts are in the input
// token's base units.
func (j *JupiterClient) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*domain.SwapQuote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := j.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jupiter quote request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("jupiter quote read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jupiter quote status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var parsed quoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("jupiter quote decode: %w", err)
	}
	if parsed.OutAmount == "" {
		return nil, fmt.Errorf("jupiter quote missing outAmount")
	}

	inAmt, err := strconv.ParseUint(parsed.InAmount, 10, 64)
	if err != nil {
		inAmt = amount
	}
	outAmt, err := strconv.ParseUint(parsed.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("jupiter quote outAmount %q: %w", parsed.OutAmount, err)
	}
	impact, _ := strconv.ParseFloat(parsed.PriceImpactPct, 64)

	return &domain.SwapQuote{
		InputMint:    inputMint,
		OutputMint:   outputMint,
		InputAmount:  inAmt,
		OutputAmount: outAmt,
		PriceImpact:  impact,
		SlippageBps:  slippageBps,
		FetchedAt:    time.Now(),
		Raw:          body,
	}, nil
}

// buildRequest is the router's swap-build payload. The quote is echoed
// back untouched.
type buildRequest struct {
	QuoteResponse json.RawMessage `json:"quoteResponse"`
	UserPublicKey string          `json:"userPublicKey"`
	WrapUnwrapSOL bool            `json:"wrapUnwrapSOL"`
}

type buildResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// BuildTransaction exchanges a quote for a serialized, unsigned
// transaction ready for local signing.
func (j *JupiterClient) BuildTransaction(ctx context.Context, quote *domain.SwapQuote, userPublicKey string) ([]byte, error) {
	payload, err := json.Marshal(buildRequest{
		QuoteResponse: json.RawMessage(quote.Raw),
		UserPublicKey: userPublicKey,
		WrapUnwrapSOL: true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jupiter swap request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("jupiter swap read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jupiter swap status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var parsed buildResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("jupiter swap decode: %w", err)
	}
	if parsed.SwapTransaction == "" {
		return nil, fmt.Errorf("jupiter swap response missing transaction")
	}

	raw, err := base64.StdEncoding.DecodeString(parsed.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("jupiter swap transaction decode: %w", err)
	}
	return raw, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
