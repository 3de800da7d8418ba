// Package signal turns market snapshots and optional sentiment scores
// into directional trade signals.
package signal

import (
	"fmt"
	"sort"
	"time"

	"github.com/sawpanic/solrun/internal/domain"
)

// Config holds the generator thresholds.
type Config struct {
	GainThreshold     float64 `yaml:"gain_threshold"`     // 24h change (%) that reads as momentum up
	LossThreshold     float64 `yaml:"loss_threshold"`     // 24h change (%) that reads as momentum down
	PositiveSentiment float64 `yaml:"positive_sentiment"` // Sentiment above this adds confidence
	NegativeSentiment float64 `yaml:"negative_sentiment"` // Sentiment below this adds confidence
	BaseConfidence    float64 `yaml:"base_confidence"`
	ConfidenceStep    float64 `yaml:"confidence_step"`
	EmitFloor         float64 `yaml:"emit_floor"` // Signals at or below this are suppressed
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		GainThreshold:     5.0,
		LossThreshold:     -5.0,
		PositiveSentiment: 0.7,
		NegativeSentiment: 0.3,
		BaseConfidence:    0.5,
		ConfidenceStep:    0.2,
		EmitFloor:         0.6,
	}
}

// Generator evaluates snapshots into signals. Pure: identical inputs
// always produce identical output, and nothing here touches the network
// or mutates shared state.
type Generator struct {
	cfg Config
}

// NewGenerator builds a generator with the given thresholds.
func NewGenerator(cfg Config) *Generator {
	return &Generator{cfg: cfg}
}

// Generate evaluates each snapshot independently. Price momentum alone
// sets direction; sentiment only ever adds confidence. A symbol yields a
// signal only when direction is set and confidence clears the emit
// floor. suggestedAmount seeds every emitted signal.
func (g *Generator) Generate(
	snapshots map[string]domain.MarketSnapshot,
	sentiments map[string]domain.SentimentScore,
	suggestedAmount float64,
	now time.Time,
) []domain.TradeSignal {
	symbols := make([]string, 0, len(snapshots))
	for sym := range snapshots {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var signals []domain.TradeSignal
	for _, sym := range symbols {
		if sig, ok := g.evaluate(snapshots[sym], sentiments, suggestedAmount, now); ok {
			signals = append(signals, sig)
		}
	}
	return signals
}

func (g *Generator) evaluate(
	snap domain.MarketSnapshot,
	sentiments map[string]domain.SentimentScore,
	suggestedAmount float64,
	now time.Time,
) (domain.TradeSignal, bool) {
	confidence := g.cfg.BaseConfidence
	action := domain.ActionHold
	var reasoning []string

	switch {
	case snap.PriceChange24h > g.cfg.GainThreshold:
		confidence += g.cfg.ConfidenceStep
		action = domain.ActionBuy
		reasoning = append(reasoning, fmt.Sprintf("Strong 24h gain: %.2f%%", snap.PriceChange24h))
	case snap.PriceChange24h < g.cfg.LossThreshold:
		confidence += g.cfg.ConfidenceStep
		action = domain.ActionSell
		reasoning = append(reasoning, fmt.Sprintf("Strong 24h loss: %.2f%%", snap.PriceChange24h))
	}

	if score, ok := sentiments[snap.Symbol]; ok {
		switch {
		case score.Score > g.cfg.PositiveSentiment:
			confidence += g.cfg.ConfidenceStep
			reasoning = append(reasoning, fmt.Sprintf("Positive sentiment: %.2f", score.Score))
		case score.Score < g.cfg.NegativeSentiment:
			confidence += g.cfg.ConfidenceStep
			reasoning = append(reasoning, fmt.Sprintf("Negative sentiment: %.2f", score.Score))
		}
	}

	if confidence > 1.0 {
		confidence = 1.0
	}

	if action == domain.ActionHold || confidence <= g.cfg.EmitFloor {
		return domain.TradeSignal{}, false
	}
	return domain.TradeSignal{
		Symbol:          snap.Symbol,
		Action:          action,
		Confidence:      confidence,
		Reasoning:       reasoning,
		SuggestedAmount: suggestedAmount,
		CreatedAt:       now,
	}, true
}
