package signal

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sawpanic/solrun/internal/domain"
)

func snap(sym string, change float64) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Symbol:         sym,
		Price:          100,
		Volume:         1_000_000,
		PriceChange24h: change,
		CapturedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func sent(sym string, score float64) domain.SentimentScore {
	return domain.SentimentScore{Symbol: sym, Score: score, Source: "test"}
}

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestGenerateMomentumUp(t *testing.T) {
	g := NewGenerator(DefaultConfig())
	now := time.Now()

	out := g.Generate(map[string]domain.MarketSnapshot{"SOL": snap("SOL", 6.0)}, nil, 0.01, now)
	if len(out) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(out))
	}
	sig := out[0]
	if sig.Action != domain.ActionBuy {
		t.Errorf("action = %s, want BUY", sig.Action)
	}
	if !almost(sig.Confidence, 0.7) {
		t.Errorf("confidence = %v, want 0.7", sig.Confidence)
	}
	if len(sig.Reasoning) != 1 || !strings.Contains(sig.Reasoning[0], "Strong 24h gain: 6.00%") {
		t.Errorf("reasoning = %v", sig.Reasoning)
	}
	if !almost(sig.SuggestedAmount, 0.01) {
		t.Errorf("suggested amount = %v, want 0.01", sig.SuggestedAmount)
	}
	if !sig.CreatedAt.Equal(now) {
		t.Errorf("created at = %v, want %v", sig.CreatedAt, now)
	}
}

func TestGenerateMomentumDown(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	out := g.Generate(map[string]domain.MarketSnapshot{"JUP": snap("JUP", -7.2)}, nil, 0.01, time.Now())
	if len(out) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(out))
	}
	if out[0].Action != domain.ActionSell {
		t.Errorf("action = %s, want SELL", out[0].Action)
	}
	if !strings.Contains(out[0].Reasoning[0], "Strong 24h loss: -7.20%") {
		t.Errorf("reasoning = %v", out[0].Reasoning)
	}
}

func TestGenerateSentimentStacksConfidence(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	out := g.Generate(
		map[string]domain.MarketSnapshot{"SOL": snap("SOL", 6.0)},
		map[string]domain.SentimentScore{"SOL": sent("SOL", 0.8)},
		0.01, time.Now(),
	)
	if len(out) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(out))
	}
	sig := out[0]
	if sig.Action != domain.ActionBuy {
		t.Errorf("action = %s, want BUY", sig.Action)
	}
	if !almost(sig.Confidence, 0.9) {
		t.Errorf("confidence = %v, want 0.9", sig.Confidence)
	}
	if len(sig.Reasoning) != 2 {
		t.Fatalf("expected 2 reasons, got %v", sig.Reasoning)
	}
	if !strings.Contains(sig.Reasoning[1], "Positive sentiment: 0.80") {
		t.Errorf("reasoning[1] = %q", sig.Reasoning[1])
	}
}

func TestGenerateSentimentNeverSetsDirection(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	// Extreme sentiment on a quiet market lifts confidence past the
	// floor, but with no momentum the action stays HOLD and nothing
	// is emitted.
	out := g.Generate(
		map[string]domain.MarketSnapshot{"SOL": snap("SOL", 1.0)},
		map[string]domain.SentimentScore{"SOL": sent("SOL", 0.95)},
		0.01, time.Now(),
	)
	if len(out) != 0 {
		t.Errorf("expected no signals, got %v", out)
	}
}

func TestGenerateQuietMarketEmitsNothing(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	out := g.Generate(map[string]domain.MarketSnapshot{
		"SOL": snap("SOL", 3.0),
		"JUP": snap("JUP", -4.9),
	}, nil, 0.01, time.Now())
	if len(out) != 0 {
		t.Errorf("expected no signals, got %v", out)
	}
}

func TestGenerateThresholdsAreStrict(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	// Exactly at the momentum threshold is not past it.
	out := g.Generate(map[string]domain.MarketSnapshot{"SOL": snap("SOL", 5.0)}, nil, 0.01, time.Now())
	if len(out) != 0 {
		t.Errorf("change of exactly 5%% emitted %v", out)
	}

	// Sentiment of exactly 0.7 adds nothing either: momentum alone
	// yields 0.7 and a single reason.
	out = g.Generate(
		map[string]domain.MarketSnapshot{"SOL": snap("SOL", 6.0)},
		map[string]domain.SentimentScore{"SOL": sent("SOL", 0.7)},
		0.01, time.Now(),
	)
	if len(out) != 1 || !almost(out[0].Confidence, 0.7) || len(out[0].Reasoning) != 1 {
		t.Errorf("boundary sentiment changed the signal: %+v", out)
	}
}

func TestGenerateConfidenceClampsAtOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfidenceStep = 0.3
	g := NewGenerator(cfg)

	out := g.Generate(
		map[string]domain.MarketSnapshot{"SOL": snap("SOL", 9.0)},
		map[string]domain.SentimentScore{"SOL": sent("SOL", 0.9)},
		0.01, time.Now(),
	)
	if len(out) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(out))
	}
	if !almost(out[0].Confidence, 1.0) {
		t.Errorf("confidence = %v, want clamp at 1.0", out[0].Confidence)
	}
}

func TestGenerateDeterministicOrder(t *testing.T) {
	g := NewGenerator(DefaultConfig())
	snaps := map[string]domain.MarketSnapshot{
		"SOL":  snap("SOL", 6.0),
		"BONK": snap("BONK", 8.0),
		"JUP":  snap("JUP", -6.0),
	}

	first := g.Generate(snaps, nil, 0.01, time.Now())
	for i := 0; i < 20; i++ {
		again := g.Generate(snaps, nil, 0.01, time.Now())
		if len(again) != len(first) {
			t.Fatalf("run %d: %d signals, want %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j].Symbol != first[j].Symbol {
				t.Fatalf("run %d: order %v diverged from %v", i, again, first)
			}
		}
	}
	if first[0].Symbol != "BONK" || first[1].Symbol != "JUP" || first[2].Symbol != "SOL" {
		t.Errorf("expected symbol-sorted output, got %v", first)
	}
}

func TestGenerateEmittedSignalsAreActionable(t *testing.T) {
	g := NewGenerator(DefaultConfig())
	changes := []float64{-12, -6, -5, -2, 0, 3, 5, 6, 11}
	scores := []float64{0.1, 0.4, 0.8}

	for _, ch := range changes {
		for _, sc := range scores {
			out := g.Generate(
				map[string]domain.MarketSnapshot{"SOL": snap("SOL", ch)},
				map[string]domain.SentimentScore{"SOL": sent("SOL", sc)},
				0.01, time.Now(),
			)
			for _, sig := range out {
				if sig.Action == domain.ActionHold {
					t.Errorf("change=%v score=%v emitted HOLD", ch, sc)
				}
				if sig.Confidence <= 0.6 || sig.Confidence > 1.0 {
					t.Errorf("change=%v score=%v confidence %v out of range", ch, sc, sig.Confidence)
				}
				if len(sig.Reasoning) == 0 {
					t.Errorf("change=%v score=%v emitted signal without reasoning", ch, sc)
				}
			}
		}
	}
}
