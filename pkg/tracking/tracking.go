// Package tracking records training runs to an external experiment tracker
// over HTTP. Tracking is best effort: a down or slow tracker must never
// block or fail training, so every failure is logged and swallowed.
package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Run is one training run record.
type Run struct {
	RunID      string             `json:"run_id"`
	Experiment string             `json:"experiment"`
	SKU        string             `json:"sku"`
	Params     map[string]any     `json:"params"`
	Metrics    map[string]float64 `json:"metrics"`
	LoggedAt   time.Time          `json:"logged_at"`
}

// Client posts training runs to a tracking endpoint. The zero value and a
// nil *Client are both safe no-ops, so callers never need to branch on
// whether tracking is configured.
type Client struct {
	endpoint   string
	experiment string
	logger     *slog.Logger
	client     *http.Client
}

// NewClient creates a tracking client for the given endpoint. An empty
// endpoint returns nil, which disables tracking.
func NewClient(endpoint, experiment string, logger *slog.Logger) *Client {
	if endpoint == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if experiment == "" {
		experiment = "demand-forecasting"
	}
	return &Client{
		endpoint:   endpoint,
		experiment: experiment,
		logger:     logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

// LogRun records one training run with a fresh run ID. Errors are logged,
// never returned; the run ID is returned for correlation ("" when tracking
// is disabled).
func (c *Client) LogRun(ctx context.Context, sku string, params map[string]any, metrics map[string]float64) string {
	if c == nil {
		return ""
	}

	run := Run{
		RunID:      uuid.NewString(),
		Experiment: c.experiment,
		SKU:        sku,
		Params:     params,
		Metrics:    metrics,
		LoggedAt:   time.Now().UTC(),
	}

	if err := c.post(ctx, run); err != nil {
		c.logger.Warn("experiment tracking failed", "sku", sku, "run_id", run.RunID, "error", err)
	}
	return run.RunID
}

func (c *Client) post(ctx context.Context, run Run) error {
	body, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(snippet))
	}
	return nil
}
