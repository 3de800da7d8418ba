// Package rpc talks JSON-RPC to the Solana network through an ordered
// pool of endpoints. Each endpoint carries its own circuit breaker and
// rate limiter; a call walks the list in order, retrying transient
// failures with exponential backoff before moving to the next endpoint.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/solrun/internal/config"
)

// Error is a JSON-RPC application error returned by a node.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

type endpoint struct {
	url     string
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// Pool is the failover RPC client.
type Pool struct {
	endpoints []*endpoint
	client    *http.Client
	cfg       config.RPCConfig
}

// NewPool builds the pool from the configured ordered endpoint list.
func NewPool(cfg config.RPCConfig) *Pool {
	eps := make([]*endpoint, 0, len(cfg.Endpoints))
	for _, url := range cfg.Endpoints {
		url := url
		settings := gobreaker.Settings{
			Name:    url,
			Timeout: cfg.Circuit.OpenFor(),
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.Circuit.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("endpoint", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("rpc circuit state change")
			},
		}
		eps = append(eps, &endpoint{
			url:     url,
			breaker: gobreaker.NewCircuitBreaker(settings),
			limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		})
	}
	return &Pool{
		endpoints: eps,
		client:    &http.Client{Timeout: cfg.Timeout()},
		cfg:       cfg,
	}
}

// Call walks the endpoint list until one returns a result, decoding it
// into out. JSON-RPC application errors are returned as *Error without
// trying further endpoints; every node would answer the same.
func (p *Pool) Call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	var lastErr error
	for _, ep := range p.endpoints {
		if ep.breaker.State() == gobreaker.StateOpen {
			log.Debug().Str("endpoint", ep.url).Msg("rpc endpoint circuit open, skipping")
			continue
		}

		for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
			if err := ep.limiter.Wait(ctx); err != nil {
				return err
			}

			result, err := ep.breaker.Execute(func() (interface{}, error) {
				return p.do(ctx, ep.url, method, params)
			})
			if err == nil {
				if out == nil {
					return nil
				}
				return json.Unmarshal(result.(json.RawMessage), out)
			}

			if rpcErr, ok := err.(*Error); ok {
				return rpcErr
			}
			lastErr = err
			if ctx.Err() != nil {
				return fmt.Errorf("rpc %s: %w", method, ctx.Err())
			}
			if attempt < p.cfg.MaxRetries {
				p.sleep(ctx, p.backoff(attempt))
			}
		}
		log.Warn().Err(lastErr).Str("endpoint", ep.url).Str("method", method).
			Msg("rpc endpoint exhausted, trying next")
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no endpoint available")
	}
	return fmt.Errorf("all rpc endpoints failed for %s: %w", method, lastErr)
}

func (p *Pool) do(ctx context.Context, url, method string, params []interface{}) (interface{}, error) {
	body, err := json.Marshal(request{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("http status %d from %s", resp.StatusCode, url)
	}

	var rpcResp response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decoding rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func (p *Pool) backoff(attempt int) time.Duration {
	delay := p.cfg.BackoffMS.BaseBackoff() << attempt
	if max := p.cfg.BackoffMS.MaxBackoff(); delay > max {
		delay = max
	}
	if p.cfg.BackoffMS.Jitter && delay > 1 {
		half := delay / 2
		delay = half + time.Duration(rand.Int63n(int64(half)))
	}
	return delay
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
