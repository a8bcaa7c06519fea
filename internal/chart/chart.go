// Package chart renders query results to PNG images through an external
// chart service.
package chart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/result"
)

// Renderer turns a result into a chart image.
type Renderer interface {
	Render(ctx context.Context, t result.Tabular, prompt string) ([]byte, error)
}

// Client is an HTTP client for the chart service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(baseURL string, log *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

type renderRequest struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Prompt  string           `json:"prompt"`
}

// Render posts the result to the chart service and returns PNG bytes.
func (c *Client) Render(ctx context.Context, t result.Tabular, prompt string) ([]byte, error) {
	bodyBytes, err := json.Marshal(renderRequest{
		Columns: t.Columns,
		Rows:    t.Rows,
		Prompt:  prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chart", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chart service error: %s (status %d)", string(body), resp.StatusCode)
	}

	png, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(png) == 0 {
		return nil, fmt.Errorf("chart service returned an empty image")
	}

	c.log.Debug("chart rendered", "bytes", len(png))
	return png, nil
}
