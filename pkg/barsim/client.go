// Package barsim provides a Go client for the barsim-server HTTP API. Its
// exported surface depends only on the package's own wire types, so it is
// importable from outside this module.
package barsim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a running barsim-server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// ListTemplates returns the names of all registered exit templates.
func (c *Client) ListTemplates(ctx context.Context) ([]string, error) {
	var body struct {
		Templates []string `json:"templates"`
	}
	if err := c.get(ctx, "/api/v1/templates", &body); err != nil {
		return nil, err
	}
	return body.Templates, nil
}

// RunBacktest executes a backtest and returns the full response, including
// per-unit results and the ranked template standings.
func (c *Client) RunBacktest(ctx context.Context, req BacktestRequest) (*BacktestResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/backtest", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp BacktestResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRuns returns all persisted run IDs, most recent first.
func (c *Client) ListRuns(ctx context.Context) ([]string, error) {
	var body struct {
		Runs []string `json:"runs"`
	}
	if err := c.get(ctx, "/api/v1/runs", &body); err != nil {
		return nil, err
	}
	return body.Runs, nil
}

// GetTrades returns the trades recorded under a run ID.
func (c *Client) GetTrades(ctx context.Context, runID string) ([]Trade, error) {
	var body struct {
		Trades []Trade `json:"trades"`
	}
	if err := c.get(ctx, "/api/v1/runs/"+runID+"/trades", &body); err != nil {
		return nil, err
	}
	return body.Trades, nil
}

// GetSummary returns the stored summary for a run ID.
func (c *Client) GetSummary(ctx context.Context, runID string) (Summary, error) {
	var summary Summary
	if err := c.get(ctx, "/api/v1/runs/"+runID+"/summary", &summary); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
