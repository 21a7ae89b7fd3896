// Package mcp bridges tools served over the Model Context Protocol into the
// engine's tool registry.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

const clientName = "arbor"

// Provider implements ports.ToolProvider against a streamable-HTTP MCP server.
type Provider struct {
	client      *mcpclient.Client
	logger      *slog.Logger
	clientVer   string
	initialized bool
}

// Option configures the Provider.
type Option func(*options)

type options struct {
	headers   map[string]string
	logger    *slog.Logger
	clientVer string
}

// WithHeaders sets static HTTP headers, typically authentication.
func WithHeaders(headers map[string]string) Option {
	return func(o *options) {
		o.headers = headers
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClientVersion overrides the version reported during initialization.
func WithClientVersion(version string) Option {
	return func(o *options) {
		o.clientVer = version
	}
}

// New connects to the MCP server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	o := &options{
		logger:    logging.NewNop(),
		clientVer: "1.0",
	}
	for _, opt := range opts {
		opt(o)
	}

	var transportOpts []mcptransport.StreamableHTTPCOption
	if len(o.headers) > 0 {
		transportOpts = append(transportOpts, mcptransport.WithHTTPHeaders(o.headers))
	}

	c, err := mcpclient.NewStreamableHttpClient(serverURL, transportOpts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to MCP server %s: %w", serverURL, err)
	}

	return &Provider{
		client:    c,
		logger:    o.logger,
		clientVer: o.clientVer,
	}, nil
}

// Discover implements ports.ToolProvider. The MCP handshake runs lazily on
// the first call.
func (p *Provider) Discover(ctx context.Context) ([]ports.Tool, error) {
	if err := p.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	listing, err := p.client.ListTools(ctx, mcplib.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("listing MCP tools: %w", err)
	}

	tools := make([]ports.Tool, 0, len(listing.Tools))
	for _, t := range listing.Tools {
		params, err := schemaToMap(t.InputSchema)
		if err != nil {
			p.logger.Warn("Skipping MCP tool with unusable schema", "tool", t.Name, "err", err)
			continue
		}
		tools = append(tools, &remoteTool{
			provider:    p,
			name:        t.Name,
			description: t.Description,
			parameters:  params,
		})
	}
	return tools, nil
}

// Close implements ports.ToolProvider.
func (p *Provider) Close() error {
	return p.client.Close()
}

func (p *Provider) ensureInitialized(ctx context.Context) error {
	if p.initialized {
		return nil
	}
	_, err := p.client.Initialize(ctx, mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: clientName, Version: p.clientVer},
		},
	})
	if err != nil {
		return fmt.Errorf("MCP initialize handshake: %w", err)
	}
	p.initialized = true
	return nil
}

// schemaToMap flattens the typed MCP schema into the registry's generic
// JSON-schema map form.
func schemaToMap(schema any) (map[string]any, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// remoteTool proxies one tool on the MCP server.
type remoteTool struct {
	provider    *Provider
	name        string
	description string
	parameters  map[string]any
}

func (t *remoteTool) Name() string               { return t.name }
func (t *remoteTool) Description() string        { return t.description }
func (t *remoteTool) Parameters() map[string]any { return t.parameters }

// Execute implements ports.Tool. Protocol failures are Go errors; tool
// failures signaled through IsError come back as error results.
func (t *remoteTool) Execute(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	out, err := t.provider.client.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      t.name,
			Arguments: args,
		},
	})
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("calling MCP tool %q: %w", t.name, err)
	}

	content := flattenContent(out.Content)
	if out.IsError {
		if content == "" {
			content = fmt.Sprintf("MCP tool %q reported an error", t.name)
		}
		return domain.ErrorResult(content), nil
	}
	return domain.SuccessResult(content), nil
}

// flattenContent joins the textual parts of an MCP result. Non-text parts
// are noted rather than dropped silently.
func flattenContent(parts []mcplib.Content) string {
	var sb strings.Builder
	for _, part := range parts {
		if tc, ok := part.(mcplib.TextContent); ok {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(tc.Text)
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("[non-text content omitted]")
	}
	return sb.String()
}
