package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// FearGreed reads the alternative.me crypto Fear & Greed index and maps
// its 0–100 value onto [0,1]. The index is market-wide; every symbol
// receives the same reading.
type FearGreed struct {
	url    string
	client *http.Client
}

// NewFearGreed builds the index source.
func NewFearGreed(url string, timeout time.Duration) *FearGreed {
	return &FearGreed{url: url, client: &http.Client{Timeout: timeout}}
}

// Name identifies the source in score records and logs.
func (f *FearGreed) Name() string { return "feargreed" }

type fngResponse struct {
	Data []struct {
		Value string `json:"value"`
	} `json:"data"`
}

// Fetch returns the current index reading scaled to [0,1].
func (f *FearGreed) Fetch(ctx context.Context, _ string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("feargreed request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("feargreed status %d", resp.StatusCode)
	}

	var payload fngResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("feargreed decode: %w", err)
	}
	if len(payload.Data) == 0 {
		return 0, fmt.Errorf("feargreed returned no data")
	}
	value, err := strconv.ParseFloat(payload.Data[0].Value, 64)
	if err != nil {
		return 0, fmt.Errorf("feargreed value %q: %w", payload.Data[0].Value, err)
	}
	return value / 100, nil
}
