// Package advisor produces optional AI trade recommendations. The
// capability degrades gracefully: without an API key, or whenever the
// model call fails, callers get a canned set instead of an error.
package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/sawpanic/solrun/internal/config"
	"github.com/sawpanic/solrun/internal/domain"
)

// Advice sources.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

const systemPrompt = `You are a crypto trading assistant focused on Solana tokens.
Analyze the provided market data and portfolio to give actionable trade recommendations.
Respond with JSON only, in exactly this shape:
{"recommendations": [{"token": "...", "action": "BUY|SELL|HOLD", "reasoning": "...", "confidence": "Low|Medium|High", "target": "..."}]}
Provide 2-3 specific recommendations. Keep the reasoning brief, concrete and actionable.`

// Recommendation is one suggested action from the advisor.
type Recommendation struct {
	Token      string `json:"token"`
	Action     string `json:"action"`
	Reasoning  string `json:"reasoning"`
	Confidence string `json:"confidence"`
	Target     string `json:"target"`
}

// Advice is the full response served to the dashboard.
type Advice struct {
	Recommendations []Recommendation `json:"recommendations"`
	Source          string           `json:"source"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}

// Advisor wraps the chat-completion client behind the fallback logic.
type Advisor struct {
	client openai.Client
	cfg    config.AdvisorConfig
}

// New builds an advisor from config. The client is only exercised when
// Available() holds.
func New(cfg config.AdvisorConfig) *Advisor {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Advisor{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}
}

// Available reports whether the model path can be attempted at all.
func (a *Advisor) Available() bool {
	return a.cfg.Enabled && a.cfg.APIKey != ""
}

// Recommend returns trade recommendations for the given market state.
// portfolio may be nil when no wallet is connected. It never fails:
// any model-path problem is logged and answered with Fallback().
func (a *Advisor) Recommend(ctx context.Context, snapshots map[string]domain.MarketSnapshot, portfolio *domain.PortfolioSnapshot) Advice {
	if !a.Available() {
		return Advice{
			Recommendations: Fallback(),
			Source:          SourceFallback,
			GeneratedAt:     time.Now().UTC(),
		}
	}

	recs, err := a.fromModel(ctx, snapshots, portfolio)
	if err != nil {
		log.Warn().Err(err).Str("model", a.cfg.Model).Msg("Advisor model call failed, serving fallback")
		return Advice{
			Recommendations: Fallback(),
			Source:          SourceFallback,
			GeneratedAt:     time.Now().UTC(),
		}
	}

	return Advice{
		Recommendations: recs,
		Source:          SourceModel,
		GeneratedAt:     time.Now().UTC(),
	}
}

func (a *Advisor) fromModel(ctx context.Context, snapshots map[string]domain.MarketSnapshot, portfolio *domain.PortfolioSnapshot) ([]Recommendation, error) {
	if a.cfg.Timeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout())
		defer cancel()
	}

	param := openai.ChatCompletionNewParams{
		Model: a.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildUserMessage(snapshots, portfolio)),
		},
		Temperature: openai.Float(0.4),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: lo.ToPtr(shared.NewResponseFormatJSONObjectParam()),
		},
	}

	completion, err := a.client.Chat.Completions.New(ctx, param)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	// Model replies wrap the JSON in prose or drop a bracket often
	// enough that every reply goes through repair before parsing.
	repaired, err := jsonrepair.JSONRepair(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("repair reply: %w", err)
	}

	var reply struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(repaired), &reply); err != nil {
		return nil, fmt.Errorf("parse reply: %w", err)
	}

	recs := lo.Filter(reply.Recommendations, func(r Recommendation, _ int) bool {
		return r.Token != "" && r.Action != ""
	})
	if len(recs) == 0 {
		return nil, errors.New("reply held no usable recommendations")
	}
	return recs, nil
}

func buildUserMessage(snapshots map[string]domain.MarketSnapshot, portfolio *domain.PortfolioSnapshot) string {
	marketContext, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		marketContext = []byte("{}")
	}

	portfolioContext := "No portfolio data available."
	if portfolio != nil {
		if raw, err := json.MarshalIndent(portfolio, "", "  "); err == nil {
			portfolioContext = string(raw)
		}
	}

	return fmt.Sprintf(`Please analyze this market data and provide trading recommendations.

MARKET DATA:
%s

PORTFOLIO DATA:
%s`, marketContext, portfolioContext)
}

// Fallback is the static advice served when no model is reachable.
func Fallback() []Recommendation {
	return []Recommendation{
		{
			Token:      "SOL",
			Action:     "BUY",
			Reasoning:  "Recent market momentum and platform growth",
			Confidence: "Medium",
			Target:     "+10% within 7 days",
		},
		{
			Token:      "BONK",
			Action:     "HOLD",
			Reasoning:  "Consolidating after recent gains, potential for volatility",
			Confidence: "Low",
			Target:     "Monitor for breakout above resistance",
		},
	}
}
