// Package upstream implements the rate-limited fetcher that feeds the
// ingestion pipeline (C5): every outbound call waits its turn on the FIFO
// rate limiter (C2) before reaching the market-data API.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmylchreest/btorch/internal/apperr"
	"github.com/jmylchreest/btorch/internal/ingestion"
	"github.com/jmylchreest/btorch/internal/ratelimiter"
)

// Client fetches daily quote batches from the upstream market-data API,
// serialized through a Limiter so concurrent sync jobs never exceed the
// configured plan's request budget.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimiter.Limiter
}

// New builds a Client. timeout bounds each individual HTTP round trip, not
// the overall job — the job body applies its own budget via the executor.
func New(baseURL, apiKey string, timeout time.Duration, limiter *ratelimiter.Limiter) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// FetchDailyQuotes retrieves one day's quote batch as raw rows suitable for
// ingestion.BuildQuoteRow. It satisfies ingestion.Fetch once partially
// applied to a date.
func (c *Client) FetchDailyQuotes(ctx context.Context, date string) ([]ingestion.Row, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/prices/daily_quotes?date=%s", c.baseURL, date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Internal("build upstream request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Upstream("daily quotes request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream("read daily quotes response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, apperr.Upstream(fmt.Sprintf("daily quotes returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Upstream(fmt.Sprintf("daily quotes returned %d", resp.StatusCode), nil)
	}

	var payload struct {
		DailyQuotes []map[string]any `json:"daily_quotes"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperr.Upstream("decode daily quotes response", err)
	}

	rows := make([]ingestion.Row, 0, len(payload.DailyQuotes))
	for _, q := range payload.DailyQuotes {
		rows = append(rows, ingestion.Row(q))
	}
	return rows, nil
}
