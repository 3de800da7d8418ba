package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/solrun/internal/config"
	"github.com/sawpanic/solrun/internal/domain"
)

func advisorConfig(baseURL string) config.AdvisorConfig {
	return config.AdvisorConfig{
		Enabled:     true,
		Model:       "gpt-4o-mini",
		BaseURL:     baseURL,
		TimeoutSecs: 5,
		APIKey:      "test-key",
	}
}

func testSnapshots() map[string]domain.MarketSnapshot {
	return map[string]domain.MarketSnapshot{
		"SOL": {Symbol: "SOL", Price: 150.0, PriceChange24h: 6.2, CapturedAt: time.Now()},
	}
}

// completionWith wraps content in a minimal chat-completion payload.
func completionWith(t *testing.T, content string) []byte {
	t.Helper()
	payload := map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return raw
}

// capturedRequest is the slice of the OpenAI request body the tests care
// about.
type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

func TestRecommendFromModel(t *testing.T) {
	var captured capturedRequest
	var auth string

	// The model reply carries a trailing comma; the repair pass has to
	// absorb it.
	reply := `{"recommendations": [{"token": "JUP", "action": "BUY", "reasoning": "Breakout volume", "confidence": "High", "target": "+12%"},]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.Contains(r.URL.Path, "chat/completions"), "unexpected path %s", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionWith(t, reply))
	}))
	defer srv.Close()

	a := New(advisorConfig(srv.URL))
	require.True(t, a.Available())

	advice := a.Recommend(context.Background(), testSnapshots(), nil)

	assert.Equal(t, SourceModel, advice.Source)
	require.Len(t, advice.Recommendations, 1)
	rec := advice.Recommendations[0]
	assert.Equal(t, "JUP", rec.Token)
	assert.Equal(t, "BUY", rec.Action)
	assert.Equal(t, "High", rec.Confidence)
	assert.Equal(t, "+12%", rec.Target)
	assert.WithinDuration(t, time.Now(), advice.GeneratedAt, 5*time.Second)

	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, "gpt-4o-mini", captured.Model)
	assert.Equal(t, "json_object", captured.ResponseFormat.Type)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[1].Content, "MARKET DATA:")
	assert.Contains(t, captured.Messages[1].Content, `"SOL"`)
	assert.Contains(t, captured.Messages[1].Content, "No portfolio data available.")
}

func TestRecommendEmbedsPortfolioContext(t *testing.T) {
	var captured capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionWith(t, `{"recommendations":[{"token":"SOL","action":"HOLD","reasoning":"r","confidence":"Low","target":"t"}]}`))
	}))
	defer srv.Close()

	portfolio := &domain.PortfolioSnapshot{
		TotalValue: 312.5,
		TotalPnL:   2.5,
		Holdings:   []domain.Holding{{Token: "SOL", Amount: 2, Value: 300}},
	}

	a := New(advisorConfig(srv.URL))
	advice := a.Recommend(context.Background(), testSnapshots(), portfolio)

	assert.Equal(t, SourceModel, advice.Source)
	require.Len(t, captured.Messages, 2)
	assert.Contains(t, captured.Messages[1].Content, `"total_value": 312.5`)
	assert.NotContains(t, captured.Messages[1].Content, "No portfolio data available.")
}

func TestRecommendFallsBackOnModelTrouble(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusInternalServerError)
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"id":"chatcmpl-test","object":"chat.completion","choices":[]}`))
			},
		},
		{
			name: "unusable entries",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				raw := completionWith(t, `{"recommendations":[{"token":"","action":"","reasoning":"blank"}]}`)
				w.Write(raw)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			a := New(advisorConfig(srv.URL))
			advice := a.Recommend(context.Background(), testSnapshots(), nil)

			assert.Equal(t, SourceFallback, advice.Source)
			require.NotEmpty(t, advice.Recommendations)
			assert.Equal(t, "SOL", advice.Recommendations[0].Token)
		})
	}
}

func TestRecommendWithoutKeyNeverCallsOut(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	cfg := advisorConfig(srv.URL)
	cfg.APIKey = ""

	a := New(cfg)
	assert.False(t, a.Available())

	advice := a.Recommend(context.Background(), testSnapshots(), nil)

	assert.Equal(t, SourceFallback, advice.Source)
	assert.Zero(t, hits)
}

func TestRecommendDisabledByConfig(t *testing.T) {
	cfg := advisorConfig("")
	cfg.Enabled = false

	a := New(cfg)
	assert.False(t, a.Available())
	assert.Equal(t, SourceFallback, a.Recommend(context.Background(), nil, nil).Source)
}

func TestFallbackShape(t *testing.T) {
	recs := Fallback()

	require.Len(t, recs, 2)
	assert.Equal(t, "SOL", recs[0].Token)
	assert.Equal(t, "BUY", recs[0].Action)
	assert.Equal(t, "BONK", recs[1].Token)
	assert.Equal(t, "HOLD", recs[1].Action)
	for _, rec := range recs {
		assert.NotEmpty(t, rec.Reasoning)
		assert.NotEmpty(t, rec.Confidence)
	}
}
