// Package fetch implements the engine's only built-in capability: validated
// HTTPS retrieval with content extraction, hardened against SSRF.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// ToolName is the registry name of the fetch tool.
const ToolName = "fetch"

const (
	// maxContentChars is the ceiling applied to fetched bodies.
	maxContentChars = 50_000
	// maxRedirects caps the manual redirect chain.
	maxRedirects = 5
	// requestTimeout bounds the whole fetch, redirects included.
	requestTimeout = 30 * time.Second
)

// Tool fetches public HTTPS URLs. Redirects are never followed automatically:
// each hop is resolved manually and re-validated before the next request.
type Tool struct {
	client   *http.Client
	logger   *slog.Logger
	validate func(ctx context.Context, rawURL string) error
}

// Option configures the Tool.
type Option func(*Tool)

// WithHTTPClient replaces the underlying HTTP client. The client must not
// follow redirects on its own.
func WithHTTPClient(client *http.Client) Option {
	return func(t *Tool) {
		t.client = client
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tool) {
		t.logger = logger
	}
}

// New creates the fetch tool.
func New(opts ...Option) *Tool {
	t := &Tool{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:   logging.NewNop(),
		validate: Validate,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements ports.Tool.
func (t *Tool) Name() string { return ToolName }

// Description implements ports.Tool.
func (t *Tool) Description() string {
	return "Fetch a public HTTPS URL and return its textual content. " +
		"Content is truncated to a fixed size and HTML is reduced to readable text."
}

// Parameters implements ports.Tool.
func (t *Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The HTTPS URL to fetch",
			},
			"extract": map[string]any{
				"type":        "boolean",
				"description": "Reduce HTML to readable text (default true)",
			},
		},
		"required": []any{"url"},
	}
}

type fetchArgs struct {
	URL     string `mapstructure:"url"`
	Extract *bool  `mapstructure:"extract"`
}

// Execute implements ports.Tool. Policy violations (scheme, private or
// metadata address, cross-origin scheme/IP at a hop) surface as
// *domain.SecurityError and are fatal to the call; everything else is
// absorbed into an error result.
func (t *Tool) Execute(ctx context.Context, rawArgs map[string]any) (domain.ToolResult, error) {
	var args fetchArgs
	if err := mapstructure.Decode(rawArgs, &args); err != nil {
		return domain.ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.URL == "" {
		return domain.ErrorResult("missing required argument: url"), nil
	}
	extract := args.Extract == nil || *args.Extract

	if err := t.validate(ctx, args.URL); err != nil {
		return domain.ToolResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	current := args.URL
	for hop := 0; ; hop++ {
		resp, err := t.get(ctx, current)
		if err != nil {
			return domain.ErrorResult(fmt.Sprintf("request failed: %v", err)), nil
		}

		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			resp.Body.Close()

			if location == "" {
				return domain.ErrorResult("redirect response without Location header"), nil
			}
			if hop+1 > maxRedirects {
				return domain.ErrorResult(fmt.Sprintf("too many redirects (limit %d)", maxRedirects)), nil
			}

			target, err := resolveLocation(current, location)
			if err != nil {
				return domain.ErrorResult(fmt.Sprintf("unresolvable redirect target: %v", err)), nil
			}

			// Scheme/address violations at a hop are policy, not transport.
			if err := t.validate(ctx, target); err != nil {
				return domain.ToolResult{}, err
			}
			if !sameOrigin(args.URL, target) {
				t.logger.Warn("Blocking cross-origin redirect",
					"from", args.URL,
					"to", target,
				)
				return domain.ErrorResult(fmt.Sprintf("cross-origin redirect to %s blocked", target)), nil
			}

			t.logger.Debug("Following redirect", "hop", hop+1, "to", target)
			current = target
			continue
		}

		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return domain.ErrorResult(fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, current)), nil
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxContentChars+1))
		if err != nil {
			return domain.ErrorResult(fmt.Sprintf("failed reading response body: %v", err)), nil
		}

		truncated := len(body) > maxContentChars
		if truncated {
			body = body[:maxContentChars]
		}

		content := string(body)
		if extract && looksLikeMarkup(content) {
			content = extractText(content)
		}

		return domain.ToolResult{
			Status:  domain.StatusSuccess,
			Content: wrapUntrusted(current, content),
			Metadata: map[string]string{
				"url":       args.URL,
				"final_url": current,
				"truncated": strconv.FormatBool(truncated),
			},
		}, nil
	}
}

func (t *Tool) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "arbor-fetch/1.0")
	return t.client.Do(req)
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	}
	return false
}

func resolveLocation(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// wrapUntrusted marks fetched text as external so downstream prompts never
// present it as the assistant's own words.
func wrapUntrusted(sourceURL, content string) string {
	return fmt.Sprintf(
		"<<<BEGIN EXTERNAL CONTENT (untrusted, fetched from %s)>>>\n%s\n<<<END EXTERNAL CONTENT>>>",
		sourceURL, content,
	)
}
