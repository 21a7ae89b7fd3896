// Package gateway implements ports.ModelGateway against a remote model
// service speaking a small JSON protocol: POST /v1/query with a prompt,
// plain text completion back.
package gateway

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

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/ports"
)

const (
	defaultTimeout = 120 * time.Second
	queryPath      = "/v1/query"
)

type queryRequest struct {
	Prompt         string `json:"prompt"`
	EnableThinking bool   `json:"enable_thinking,omitempty"`
}

type queryResponse struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// Client calls a remote model service.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithToken sets a bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a gateway client for the model service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query implements ports.ModelGateway.
func (c *Client) Query(ctx context.Context, prompt string, opts ports.QueryOptions) (string, error) {
	payload, err := json.Marshal(queryRequest{
		Prompt:         prompt,
		EnableThinking: opts.EnableThinking,
	})
	if err != nil {
		return "", fmt.Errorf("encoding model request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryPath, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("model service returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding model response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("model service error: %s", out.Error)
	}

	c.logger.Debug("Model query completed",
		"latency", time.Since(start),
		"prompt_chars", len(prompt),
		"output_chars", len(out.Output),
	)
	return out.Output, nil
}
