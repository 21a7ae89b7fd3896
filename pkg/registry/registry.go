// Package registry manages the available tools and executes tool-call
// batches concurrently with bounded per-call retry.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/ports"
)

// DefaultBaseDelay is the first retry backoff step; attempt N waits N*base.
const DefaultBaseDelay = 500 * time.Millisecond

const defaultPreamble = "You have access to the following tools. " +
	"Use them whenever they help you complete the task."

const usageInstruction = `To invoke a tool, emit exactly two lines:
TOOL_CALL: <tool name>
ARGUMENTS: <arguments as a single-line JSON object>`

// Registry holds all capability implementations by name.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]ports.Tool
	order     []string
	providers []ports.ToolProvider

	preamble  string
	baseDelay time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Option configures the Registry.
type Option func(*Registry)

// WithPreamble overrides the default catalog preamble.
func WithPreamble(text string) Option {
	return func(r *Registry) {
		r.preamble = text
	}
}

// WithBaseDelay sets the base retry backoff. Tests shrink it.
func WithBaseDelay(d time.Duration) Option {
	return func(r *Registry) {
		r.baseDelay = d
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		tools:     make(map[string]ports.Tool),
		preamble:  defaultPreamble,
		baseDelay: DefaultBaseDelay,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Re-registering a name replaces the implementation but
// keeps its original position in the catalog.
func (r *Registry) Register(tool ports.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

// Mount discovers a provider's tools and registers them all. The provider is
// retained so Close can shut down its transport.
func (r *Registry) Mount(ctx context.Context, provider ports.ToolProvider) error {
	tools, err := provider.Discover(ctx)
	if err != nil {
		return fmt.Errorf("tool discovery failed: %w", err)
	}

	for _, tool := range tools {
		r.Register(tool)
		r.logger.Debug("Mounted remote tool", "tool", tool.Name())
	}

	r.mu.Lock()
	r.providers = append(r.providers, provider)
	r.mu.Unlock()
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (ports.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []ports.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ports.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Close shuts down all mounted providers.
func (r *Registry) Close() error {
	r.mu.Lock()
	providers := r.providers
	r.providers = nil
	r.mu.Unlock()

	var errs []error
	for _, p := range providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ExecuteBatch runs every call concurrently and returns one result per call,
// index-aligned with the input batch. The batch itself never fails: every
// internal failure mode is absorbed into an error ToolResult. One call's
// failure or backoff never blocks or cancels its siblings.
func (r *Registry) ExecuteBatch(ctx context.Context, calls []domain.ToolCall, maxRetries int) []domain.ToolResult {
	if maxRetries < 1 {
		maxRetries = 1
	}

	results := make([]domain.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call domain.ToolCall) {
			defer wg.Done()
			results[i] = r.executeOne(ctx, call, maxRetries)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (r *Registry) executeOne(ctx context.Context, call domain.ToolCall, maxRetries int) domain.ToolResult {
	tool, ok := r.Lookup(call.Name)
	if !ok {
		// Unknown names fail immediately without consuming the retry budget.
		r.metrics.ObserveToolExecution(call.Name, string(domain.StatusError))
		return domain.ErrorResult(fmt.Sprintf("%v: %s", domain.ErrToolNotFound, call.Name))
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		result, err := tool.Execute(ctx, call.Args)
		if err == nil && !result.IsError() {
			r.metrics.ObserveToolExecution(call.Name, string(domain.StatusSuccess))
			return result
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = errors.New(result.Content)
		}

		if domain.IsSecurityError(err) {
			// Policy violations are not transient; retrying would just
			// re-offend.
			r.logger.Warn("Tool call blocked by security policy",
				"tool", call.Name,
				"call_id", call.ID,
				"err", err,
			)
			break
		}

		if attempt < maxRetries {
			r.logger.Debug("Tool call failed, retrying",
				"tool", call.Name,
				"attempt", attempt,
				"err", lastErr,
			)
			r.metrics.ObserveToolRetry(call.Name)
			if !sleep(ctx, time.Duration(attempt)*r.baseDelay) {
				lastErr = ctx.Err()
				break
			}
		}
	}

	execErr := &domain.ToolExecutionError{
		Tool:     call.Name,
		Attempts: maxRetries,
		Err:      lastErr,
	}
	r.metrics.ObserveToolExecution(call.Name, string(domain.StatusError))
	return domain.ErrorResult(execErr.Error())
}

// sleep waits for d or until the context is done. Returns false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// DefinitionsText renders the tool catalog as prompt text. Rendering is pure
// and deterministic for a given set of registrations.
func (r *Registry) DefinitionsText() string {
	var b strings.Builder

	b.WriteString("## Available Tools\n\n")
	b.WriteString(r.preamble)
	b.WriteString("\n")

	for _, tool := range r.Tools() {
		fmt.Fprintf(&b, "\n### %s\n%s\n", tool.Name(), tool.Description())
		writeParameters(&b, tool.Parameters())
	}

	b.WriteString("\n")
	b.WriteString(usageInstruction)
	b.WriteString("\n")
	return b.String()
}

func writeParameters(b *strings.Builder, schema map[string]any) {
	if len(schema) == 0 {
		b.WriteString("Parameters: none\n")
		return
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		// Opaque schema: fall back to compact JSON. Map keys marshal sorted,
		// so output stays deterministic.
		raw, err := json.Marshal(schema)
		if err != nil {
			b.WriteString("Parameters: none\n")
			return
		}
		fmt.Fprintf(b, "Parameters: %s\n", raw)
		return
	}

	required := map[string]bool{}
	if reqs, ok := schema["required"].([]any); ok {
		for _, req := range reqs {
			if s, ok := req.(string); ok {
				required[s] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("Parameters:\n")
	for _, name := range names {
		typ, desc := "any", ""
		if spec, ok := props[name].(map[string]any); ok {
			if t, ok := spec["type"].(string); ok {
				typ = t
			}
			if d, ok := spec["description"].(string); ok {
				desc = d
			}
		}
		line := fmt.Sprintf("- %s (%s", name, typ)
		if required[name] {
			line += ", required"
		}
		line += ")"
		if desc != "" {
			line += ": " + desc
		}
		b.WriteString(line + "\n")
	}
}
