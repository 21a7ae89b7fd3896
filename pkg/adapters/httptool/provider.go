// Package httptool discovers and invokes tools served by a remote HTTP host.
// The host exposes two JSON endpoints: POST /tools/list and POST /tools/call.
// The transport is stateless, so one provider can serve many concurrent calls.
package httptool

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
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

const defaultTimeout = 30 * time.Second

type toolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type listResponse struct {
	Tools []toolSpec `json:"tools"`
}

type callRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

type callResponse struct {
	Status   string            `json:"status"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Provider implements ports.ToolProvider over HTTP.
type Provider struct {
	baseURL string
	client  *http.Client
	headers map[string]string
	logger  *slog.Logger
}

// Option configures the Provider.
type Option func(*Provider)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.client = client
	}
}

// WithHeaders sets static headers sent on every request, typically auth.
func WithHeaders(headers map[string]string) Option {
	return func(p *Provider) {
		p.headers = headers
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// New creates a provider for the tool host at baseURL.
func New(baseURL string, opts ...Option) *Provider {
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Discover implements ports.ToolProvider.
func (p *Provider) Discover(ctx context.Context) ([]ports.Tool, error) {
	var listing listResponse
	if err := p.post(ctx, "/tools/list", struct{}{}, &listing); err != nil {
		return nil, fmt.Errorf("listing tools from %s: %w", p.baseURL, err)
	}

	tools := make([]ports.Tool, 0, len(listing.Tools))
	for _, spec := range listing.Tools {
		if spec.Name == "" {
			p.logger.Warn("Skipping unnamed tool in listing", "host", p.baseURL)
			continue
		}
		tools = append(tools, &remoteTool{provider: p, spec: spec})
	}
	return tools, nil
}

// Close implements ports.ToolProvider. The transport holds no connection
// state beyond the client's idle pool.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *Provider) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// remoteTool proxies one tool on the HTTP host.
type remoteTool struct {
	provider *Provider
	spec     toolSpec
}

func (t *remoteTool) Name() string               { return t.spec.Name }
func (t *remoteTool) Description() string        { return t.spec.Description }
func (t *remoteTool) Parameters() map[string]any { return t.spec.Parameters }

// Execute implements ports.Tool. Transport failures are Go errors so the
// caller may retry; failures reported by the tool come back as error results.
func (t *remoteTool) Execute(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	var result callResponse
	err := t.provider.post(ctx, "/tools/call", callRequest{Tool: t.spec.Name, Args: args}, &result)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("calling tool %q: %w", t.spec.Name, err)
	}
	if result.Error != "" {
		return domain.ErrorResult(result.Error), nil
	}

	status := domain.StatusSuccess
	if result.Status == string(domain.StatusError) {
		status = domain.StatusError
	}
	return domain.ToolResult{
		Status:   status,
		Content:  result.Content,
		Metadata: result.Metadata,
	}, nil
}
