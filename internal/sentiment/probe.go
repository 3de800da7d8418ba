// Package sentiment produces optional per-symbol sentiment scores in
// [0,1]. Sentiment is a capability, not a requirement: the probe is
// selected once at startup, exposes an Available predicate, and a
// missing or failing source simply yields no opinion for a symbol.
package sentiment

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/solrun/internal/config"
	"github.com/sawpanic/solrun/internal/domain"
)

// Source supplies a raw sentiment reading for a symbol. Implementations
// may be market-wide (same reading for every symbol) or symbol-aware;
// an external browsing/search capability plugs in through this interface.
type Source interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (float64, error)
}

// Probe aggregates sources into per-symbol scores.
type Probe interface {
	// Available reports whether the probe can produce scores at all.
	Available() bool
	// Scores returns zero-or-one score per symbol. Missing symbols mean
	// "no opinion" and are never an error.
	Scores(ctx context.Context, symbols []string) map[string]domain.SentimentScore
}

// New selects the probe implementation once at startup.
func New(cfg config.SentimentConfig) Probe {
	if !cfg.Enabled {
		return Disabled{}
	}
	return &SourceProbe{
		source:  NewFearGreed(cfg.BaseURL, cfg.Timeout()),
		timeout: cfg.Timeout(),
	}
}

// Disabled is the fallback probe: never available, never opines.
type Disabled struct{}

// Available always reports false.
func (Disabled) Available() bool { return false }

// Scores returns no opinions.
func (Disabled) Scores(context.Context, []string) map[string]domain.SentimentScore {
	return map[string]domain.SentimentScore{}
}

// SourceProbe reads one source per symbol with a bounded timeout.
type SourceProbe struct {
	source  Source
	timeout time.Duration
}

// NewSourceProbe wraps an arbitrary source, mainly for tests and for
// plugging in external capabilities.
func NewSourceProbe(src Source, timeout time.Duration) *SourceProbe {
	return &SourceProbe{source: src, timeout: timeout}
}

// Available reports true; per-symbol failures surface as absent scores.
func (p *SourceProbe) Available() bool { return true }

// Scores fetches each symbol independently; a failed fetch drops that
// symbol only. Scores clamp into [0,1].
func (p *SourceProbe) Scores(ctx context.Context, symbols []string) map[string]domain.SentimentScore {
	out := make(map[string]domain.SentimentScore, len(symbols))
	for _, sym := range symbols {
		fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
		score, err := p.source.Fetch(fetchCtx, sym)
		cancel()
		if err != nil {
			log.Debug().Err(err).Str("symbol", sym).Str("source", p.source.Name()).
				Msg("sentiment: no opinion for symbol")
			continue
		}
		out[sym] = domain.SentimentScore{
			Symbol:     sym,
			Score:      clamp01(score),
			Source:     p.source.Name(),
			CapturedAt: time.Now().UTC(),
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
