package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// Tool is a single executable capability. In-process implementations,
// subprocess-backed and HTTP-backed remote tools all satisfy this contract
// and are selected by name through the registry, no hierarchy involved.
type Tool interface {
	// Name is unique across a registry.
	Name() string

	// Description is rendered into the prompt catalog.
	Description() string

	// Parameters returns the JSON-schema-shaped parameter description.
	Parameters() map[string]any

	// Execute runs the capability. A policy violation surfaces as a
	// *domain.SecurityError; transient failures either return an error or an
	// error-status result, both of which the registry treats as retryable.
	Execute(ctx context.Context, args map[string]any) (domain.ToolResult, error)
}

// ToolProvider discovers tools hosted outside the process. Each discovered
// Tool proxies its Execute calls back through the provider's transport.
type ToolProvider interface {
	Discover(ctx context.Context) ([]Tool, error)
	Close() error
}
