package ports

import "context"

// QueryOptions carries per-call gateway flags.
type QueryOptions struct {
	// EnableThinking asks the model to deliberate before answering. Set from
	// a static keyword scan of the latest user message.
	EnableThinking bool
}

// ModelGateway is the text-generation dependency consumed by the loop.
// It is opaque: one prompt in, one raw response out. Any failure it returns
// is the only error class that escapes a run to its caller.
type ModelGateway interface {
	Query(ctx context.Context, prompt string, opts QueryOptions) (string, error)
}

// GatewayFunc adapts a function to the ModelGateway interface.
type GatewayFunc func(ctx context.Context, prompt string, opts QueryOptions) (string, error)

func (f GatewayFunc) Query(ctx context.Context, prompt string, opts QueryOptions) (string, error) {
	return f(ctx, prompt, opts)
}
