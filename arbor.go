package arbor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/session"
)

// Engine is the high-level entry point for the arbor library. It wires the
// agentic loop to a tool registry and a conversation store, and serializes
// access per session.
type Engine struct {
	gateway    ports.ModelGateway
	registry   *registry.Registry
	store      ports.ConversationStore
	locker     ports.DistributedLocker
	sessions   *session.Manager
	loop       *runtime.Loop
	hooks      domain.LifecycleHooks
	metrics    *observability.Metrics
	logger     *slog.Logger
	maxTurns   int
	maxRetries int
	tools      []ports.Tool
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore injects a conversation store. Defaults to in-memory.
func WithStore(store ports.ConversationStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLocker enables distributed session locking across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithTools registers in-process tools.
func WithTools(tools ...ports.Tool) Option {
	return func(e *Engine) {
		e.tools = append(e.tools, tools...)
	}
}

// WithRegistry injects a pre-built tool registry, replacing the default.
func WithRegistry(reg *registry.Registry) Option {
	return func(e *Engine) {
		e.registry = reg
	}
}

// WithMaxTurns overrides the loop's turn budget.
func WithMaxTurns(n int) Option {
	return func(e *Engine) {
		e.maxTurns = n
	}
}

// WithMaxRetries overrides the per-tool attempt budget.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		e.maxRetries = n
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New initializes an arbor Engine over the given model gateway.
func New(gateway ports.ModelGateway, opts ...Option) (*Engine, error) {
	if gateway == nil {
		return nil, fmt.Errorf("a model gateway is required")
	}

	eng := &Engine{
		gateway:    gateway,
		maxTurns:   runtime.DefaultMaxTurns,
		maxRetries: runtime.DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.registry == nil {
		eng.registry = registry.New(
			registry.WithLogger(eng.logger),
			registry.WithMetrics(eng.metrics),
		)
	}
	for _, tool := range eng.tools {
		eng.registry.Register(tool)
	}

	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
	}
	eng.sessions = session.NewManager(eng.store, sessionOpts...)

	eng.loop = runtime.New(eng.gateway, eng.registry,
		runtime.WithMaxTurns(eng.maxTurns),
		runtime.WithMaxRetries(eng.maxRetries),
		runtime.WithHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
		runtime.WithMetrics(eng.metrics),
	)

	return eng, nil
}

// Mount discovers a provider's tools into the registry.
func (e *Engine) Mount(ctx context.Context, provider ports.ToolProvider) error {
	return e.registry.Mount(ctx, provider)
}

// Run executes one loop invocation for the session, loading prior history
// first and persisting the updated transcript after. Access to the session is
// serialized, across replicas too when a distributed locker is configured.
func (e *Engine) Run(ctx context.Context, sessionID, input string) (*domain.RunResult, error) {
	var result *domain.RunResult
	err := e.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		history, err := e.store.Load(ctx, sessionID)
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("failed to load session %s: %w", sessionID, err)
		}

		result, err = e.loop.Run(ctx, sessionID, input, history)
		if err != nil {
			return err
		}

		if err := e.store.Save(ctx, sessionID, result.Messages); err != nil {
			return fmt.Errorf("failed to persist session %s: %w", sessionID, err)
		}
		return nil
	})
	return result, err
}

// Registry returns the engine's tool registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Sessions returns the session manager over the engine's store.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Close releases provider-backed tools.
func (e *Engine) Close() error {
	return e.registry.Close()
}
