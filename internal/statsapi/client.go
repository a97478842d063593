// Package statsapi is the remote inspect/raid-telemetry seam: an opt-in
// HTTP client that ships raid snapshots to an external stats service and
// looks up inspect-eligible character gear info. Both are out-of-scope
// collaborators per spec.md — the core only ever calls through the
// encounter.StatsClient contract.
package statsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/skirmishmeter/meter/internal/aggregator/encounter"
)

// HTTPClient talks to a remote stats service over HTTP, retrying
// transient failures with exponential backoff.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// New builds an HTTPClient against baseURL.
func New(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SendRaidInfo posts the clear snapshot to the stats service. Failures
// are retried up to 3 times with exponential backoff capped at 5s; a
// final failure is returned to the caller to log, never to block the
// encounter lifecycle on.
func (c *HTTPClient) SendRaidInfo(ctx context.Context, snapshot encounter.Snapshot) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshaling raid snapshot: %w", err)
	}

	b := retry.WithMaxRetries(3, retry.WithCappedDuration(5*time.Second, retry.NewExponential(200*time.Millisecond)))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/raid-info", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("building raid-info request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("posting raid info: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("raid info service returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("raid info service returned %d", resp.StatusCode)
		}
		return nil
	})
}

// GetCharacterInfo looks up gear-score/build info for an inspect-eligible
// clear. ok is false on any failure (network, decode, not-found) — a
// lookup miss must never block saving the encounter.
func (c *HTTPClient) GetCharacterInfo(ctx context.Context, boss string, players []string, region string) (map[string]any, bool) {
	reqBody, err := json.Marshal(struct {
		Boss    string   `json:"boss"`
		Players []string `json:"players"`
		Region  string   `json:"region"`
	}{boss, players, region})
	if err != nil {
		return nil, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/character-info", bytes.NewReader(reqBody))
	if err != nil {
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false
	}
	return out, true
}
