// Package agent talks to the managed NL-to-SQL service. Each question goes
// out as one HTTP call; the service answers with either generated SQL or a
// conversational text reply.
package agent

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

	"github.com/google/uuid"
)

// Reply is the agent's answer to one question, either SQL to run or plain
// text to show. Callers dispatch on the concrete type.
type Reply interface {
	isReply()
}

// SQLReply carries generated SQL ready for execution.
type SQLReply struct {
	SQL string
}

// TextReply carries a conversational answer with optional source citations.
type TextReply struct {
	Text      string
	Citations []string
}

func (SQLReply) isReply()  {}
func (TextReply) isReply() {}

// Gateway is an HTTP client for the query agent.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// NewGateway creates a client for the agent at baseURL.
func NewGateway(baseURL string, log *slog.Logger) *Gateway {
	return &Gateway{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 2 * time.Minute, // SQL generation can be slow on cold caches
		},
		log: log,
	}
}

// chatRequest is the request body for POST /api/chat.
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// chatResponse is the agent's answer envelope. Exactly one of SQL or Text is
// expected to be set.
type chatResponse struct {
	SQL       string   `json:"sql,omitempty"`
	Text      string   `json:"text,omitempty"`
	Citations []string `json:"citations,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Chat sends one question to the agent and returns its reply. Each call uses
// a fresh session id; the bot keeps no conversational state in the agent.
func (g *Gateway) Chat(ctx context.Context, message string) (Reply, error) {
	reqBody := chatRequest{
		Message:   message,
		SessionID: uuid.New().String(),
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("agent error: %s (status %d)", string(body), resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if cr.Error != "" {
		return nil, fmt.Errorf("agent error: %s", cr.Error)
	}

	if sql := strings.TrimSpace(cr.SQL); sql != "" {
		g.log.Debug("agent returned sql", "bytes", len(sql))
		return SQLReply{SQL: sql}, nil
	}
	if text := strings.TrimSpace(cr.Text); text != "" {
		return TextReply{Text: text, Citations: cr.Citations}, nil
	}
	return nil, fmt.Errorf("agent returned neither sql nor text")
}
