// Package runtime implements the turn-based agentic loop: prompt the model,
// parse its directives, execute tools, feed results back, repeat until a
// terminal branch.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/wire"
)

const (
	// DefaultMaxTurns bounds the loop when the caller does not.
	DefaultMaxTurns = 10
	// DefaultMaxRetries is the per-tool attempt budget handed to the registry.
	DefaultMaxRetries = 2
)

// Loop drives one conversation turn cycle against a model gateway and a tool
// registry. A Loop is stateless across runs and safe for concurrent use.
type Loop struct {
	gateway    ports.ModelGateway
	registry   *registry.Registry
	parser     *wire.Parser
	maxTurns   int
	maxRetries int
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// Option configures the Loop.
type Option func(*Loop)

// WithMaxTurns overrides the turn budget.
func WithMaxTurns(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxTurns = n
		}
	}
}

// WithMaxRetries overrides the per-tool attempt budget.
func WithMaxRetries(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxRetries = n
		}
	}
}

// WithHooks installs lifecycle callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(l *Loop) {
		l.hooks = hooks
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Loop) {
		l.metrics = m
	}
}

// New creates a Loop over the given gateway and registry.
func New(gateway ports.ModelGateway, reg *registry.Registry, opts ...Option) *Loop {
	l := &Loop{
		gateway:    gateway,
		registry:   reg,
		maxTurns:   DefaultMaxTurns,
		maxRetries: DefaultMaxRetries,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.parser = wire.NewParser(wire.WithLogger(l.logger))
	return l
}

// Run executes the loop for one user input on top of prior history. The only
// error that escapes is a failed model query; every other failure mode folds
// into a RunResult on one of the terminal branches.
func (l *Loop) Run(ctx context.Context, sessionID, input string, history []domain.Message) (*domain.RunResult, error) {
	state := domain.NewRunState(sessionID, l.maxTurns, history)
	state.Append(domain.RoleUser, input)

	thinking := thinkingRequested(input)
	catalog := l.registry.DefinitionsText()

	for {
		state.Turn++
		l.emitTurnStart(ctx, state)
		l.metrics.ObserveTurn()
		l.logger.Debug("Turn started", "session_id", sessionID, "turn", state.Turn)

		prompt := buildPrompt(catalog, state.Messages)

		start := time.Now()
		raw, err := l.gateway.Query(ctx, prompt, ports.QueryOptions{EnableThinking: thinking})
		l.metrics.ObserveModelLatency(time.Since(start))
		if err != nil {
			return nil, fmt.Errorf("model query failed on turn %d: %w", state.Turn, err)
		}

		if err := l.parser.Validate(raw); err != nil {
			// Unusable output ends the run with whatever can be salvaged.
			l.logger.Warn("Model output failed protocol validation",
				"session_id", sessionID,
				"turn", state.Turn,
				"err", err,
			)
			final := bestEffortExcerpt(raw)
			state.Append(domain.RoleAssistant, final)
			return l.finish(ctx, state, final, domain.OutcomeFinal), nil
		}

		resp := l.parser.Process(raw)
		state.RecordReasoning(resp.Reasoning)

		if resp.HasFinalOutput() {
			state.Append(domain.RoleAssistant, resp.FinalOutput)
			return l.finish(ctx, state, resp.FinalOutput, domain.OutcomeFinal), nil
		}

		for _, call := range resp.ToolCalls {
			l.emitToolCall(ctx, state, call)
		}
		results := l.registry.ExecuteBatch(ctx, resp.ToolCalls, l.maxRetries)

		allFailed := true
		for i, call := range resp.ToolCalls {
			state.RecordTool(call, results[i])
			l.emitToolReturn(ctx, state, call, results[i])
			if !results[i].IsError() {
				allFailed = false
			}
		}

		if allFailed {
			final, err := l.fallback(ctx, state, resp.ToolCalls, results, thinking)
			if err != nil {
				return nil, err
			}
			state.Append(domain.RoleAssistant, final)
			return l.finish(ctx, state, final, domain.OutcomeFallback), nil
		}

		// One synthetic assistant message carries every result of the turn in
		// wire format; the next prompt shows the model the exact grammar it
		// is conditioned on.
		state.Append(domain.RoleAssistant, wire.RenderToolResults(resp.ToolCalls, results))

		if state.Turn >= state.MaxTurns {
			// Budget exhausted. Synthesize from the ledger instead of asking
			// the model again; this branch never raises.
			final := summarizeLedger(state)
			state.Append(domain.RoleAssistant, final)
			return l.finish(ctx, state, final, domain.OutcomeMaxTurns), nil
		}
	}
}

// fallback asks the model once for a best-effort answer after every tool in a
// turn failed. The failures are spelled out so the model can work around them.
func (l *Loop) fallback(ctx context.Context, state *domain.RunState, calls []domain.ToolCall, results []domain.ToolResult, thinking bool) (string, error) {
	l.logger.Warn("All tool calls failed, falling back to direct answer",
		"session_id", state.SessionID,
		"turn", state.Turn,
		"failed_calls", len(calls),
	)

	prompt := fallbackPrompt(state.Messages, calls, results)
	raw, err := l.gateway.Query(ctx, prompt, ports.QueryOptions{EnableThinking: thinking})
	if err != nil {
		return "", fmt.Errorf("fallback model query failed on turn %d: %w", state.Turn, err)
	}

	// The fallback answer is taken as-is, markers stripped if present.
	return l.parser.Process(raw).FinalOutput, nil
}

func (l *Loop) finish(ctx context.Context, state *domain.RunState, final string, outcome domain.Outcome) *domain.RunResult {
	l.metrics.ObserveRun(string(outcome))
	l.emitRunEnd(ctx, state, outcome)
	l.logger.Info("Run finished",
		"session_id", state.SessionID,
		"outcome", outcome,
		"turns", state.Turn,
		"tool_calls", len(state.ToolLedger),
	)
	return state.Result(final, outcome)
}

func (l *Loop) emitTurnStart(ctx context.Context, state *domain.RunState) {
	if l.hooks.OnTurnStart == nil {
		return
	}
	l.hooks.OnTurnStart(ctx, &domain.TurnEvent{
		EventBase: eventBase(domain.EventTurnStart, state.SessionID),
		Turn:      state.Turn,
	})
}

func (l *Loop) emitToolCall(ctx context.Context, state *domain.RunState, call domain.ToolCall) {
	if l.hooks.OnToolCall == nil {
		return
	}
	l.hooks.OnToolCall(ctx, &domain.ToolEvent{
		EventBase: eventBase(domain.EventToolCall, state.SessionID),
		ToolName:  call.Name,
		CallID:    call.ID,
		Input:     call.Args,
	})
}

func (l *Loop) emitToolReturn(ctx context.Context, state *domain.RunState, call domain.ToolCall, result domain.ToolResult) {
	if l.hooks.OnToolReturn == nil {
		return
	}
	l.hooks.OnToolReturn(ctx, &domain.ToolEvent{
		EventBase: eventBase(domain.EventToolReturn, state.SessionID),
		ToolName:  call.Name,
		CallID:    call.ID,
		Output:    result.Content,
		IsError:   result.IsError(),
	})
}

func (l *Loop) emitRunEnd(ctx context.Context, state *domain.RunState, outcome domain.Outcome) {
	if l.hooks.OnRunEnd == nil {
		return
	}
	l.hooks.OnRunEnd(ctx, &domain.RunEvent{
		EventBase: eventBase(domain.EventRunEnd, state.SessionID),
		Outcome:   outcome,
		TurnsUsed: state.Turn,
	})
}

func eventBase(t domain.EventType, sessionID string) domain.EventBase {
	return domain.EventBase{
		Timestamp: time.Now().UTC(),
		Type:      t,
		SessionID: sessionID,
	}
}
