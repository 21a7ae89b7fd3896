package runtime_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
)

// scriptedGateway replays canned responses and records every prompt.
type scriptedGateway struct {
	responses []string
	prompts   []string
	options   []ports.QueryOptions
	err       error
}

func (g *scriptedGateway) Query(ctx context.Context, prompt string, opts ports.QueryOptions) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.prompts = append(g.prompts, prompt)
	g.options = append(g.options, opts)
	if len(g.prompts) > len(g.responses) {
		return "", errors.New("scripted gateway exhausted")
	}
	return g.responses[len(g.prompts)-1], nil
}

// stubTool is a scriptable in-process tool.
type stubTool struct {
	name    string
	execute func(ctx context.Context, args map[string]any) (domain.ToolResult, error)
	calls   atomic.Int32
}

func (s *stubTool) Name() string               { return s.name }
func (s *stubTool) Description() string        { return "stub" }
func (s *stubTool) Parameters() map[string]any { return nil }

func (s *stubTool) Execute(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	s.calls.Add(1)
	return s.execute(ctx, args)
}

func newRegistry(tools ...ports.Tool) *registry.Registry {
	r := registry.New(registry.WithBaseDelay(time.Millisecond))
	for _, tool := range tools {
		r.Register(tool)
	}
	return r
}

func TestRun_ImmediateFinalAnswer(t *testing.T) {
	gw := &scriptedGateway{responses: []string{"The capital of France is Paris."}}
	loop := runtime.New(gw, newRegistry())

	result, err := loop.Run(context.Background(), "s1", "capital of France?", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFinal, result.Outcome)
	assert.Equal(t, "The capital of France is Paris.", result.FinalOutput)
	assert.Equal(t, 1, result.TurnsUsed)
	assert.Equal(t, 0, result.ToolCalls)
}

func TestRun_ToolCallThenFinal(t *testing.T) {
	lookup := &stubTool{name: "lookup"}
	lookup.execute = func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
		return domain.SuccessResult("population: 2.1 million"), nil
	}

	gw := &scriptedGateway{responses: []string{
		"[Thinking: I should check the population first.]\n" +
			"TOOL_CALL: lookup\n" +
			`ARGUMENTS: {"city": "Paris"}`,
		"Paris has about 2.1 million inhabitants.",
	}}
	loop := runtime.New(gw, newRegistry(lookup))

	result, err := loop.Run(context.Background(), "s1", "population of Paris?", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFinal, result.Outcome)
	assert.Equal(t, "Paris has about 2.1 million inhabitants.", result.FinalOutput)
	assert.Equal(t, 2, result.TurnsUsed)
	assert.Equal(t, 1, result.ToolCalls)
	assert.Equal(t, 1, result.ReasoningSteps)
	assert.Equal(t, int32(1), lookup.calls.Load())

	// The second prompt must carry the tool feedback in wire format.
	require.Len(t, gw.prompts, 2)
	assert.Contains(t, gw.prompts[1], "TOOL_RESULT: lookup")
	assert.Contains(t, gw.prompts[1], "STATUS: success")
	assert.Contains(t, gw.prompts[1], "population: 2.1 million")
}

func TestRun_AllToolsFailedFallsBack(t *testing.T) {
	broken := &stubTool{name: "broken"}
	broken.execute = func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
		return domain.ToolResult{}, errors.New("backend unreachable")
	}

	gw := &scriptedGateway{responses: []string{
		"TOOL_CALL: broken\nARGUMENTS: {}",
		"I could not reach the data source, but roughly two million.",
	}}
	loop := runtime.New(gw, newRegistry(broken))

	result, err := loop.Run(context.Background(), "s1", "population of Paris?", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFallback, result.Outcome)
	assert.Contains(t, result.FinalOutput, "roughly two million")
	assert.Equal(t, 1, result.TurnsUsed)

	// The fallback prompt names the failure so the model can work around it.
	require.Len(t, gw.prompts, 2)
	assert.Contains(t, gw.prompts[1], "failed")
	assert.Contains(t, gw.prompts[1], "broken")
}

func TestRun_MaxTurnsSummarizesLedger(t *testing.T) {
	echo := &stubTool{name: "echo"}
	echo.execute = func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
		return domain.SuccessResult("echoed"), nil
	}

	// The model never produces a final answer.
	gw := &scriptedGateway{responses: []string{
		"TOOL_CALL: echo\nARGUMENTS: {}",
		"TOOL_CALL: echo\nARGUMENTS: {}",
	}}
	loop := runtime.New(gw, newRegistry(echo), runtime.WithMaxTurns(2))

	result, err := loop.Run(context.Background(), "s1", "loop forever", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeMaxTurns, result.Outcome)
	assert.Equal(t, 2, result.TurnsUsed)
	assert.Equal(t, 2, result.ToolCalls)
	assert.Contains(t, result.FinalOutput, "limit of 2 turns")
	assert.Contains(t, result.FinalOutput, "echo")
}

func TestRun_GatewayErrorPropagates(t *testing.T) {
	gw := &scriptedGateway{err: errors.New("connection refused")}
	loop := runtime.New(gw, newRegistry())

	_, err := loop.Run(context.Background(), "s1", "hello", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRun_MalformedOutputEndsWithExcerpt(t *testing.T) {
	// TOOL_CALL without its paired ARGUMENTS line fails validation.
	gw := &scriptedGateway{responses: []string{"TOOL_CALL: lookup\nno arguments here"}}
	loop := runtime.New(gw, newRegistry())

	result, err := loop.Run(context.Background(), "s1", "hello", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFinal, result.Outcome)
	assert.Contains(t, result.FinalOutput, "did not follow the expected format")
	assert.Contains(t, result.FinalOutput, "TOOL_CALL: lookup")
	assert.Equal(t, 1, result.TurnsUsed)
}

func TestRun_ThinkingKeywordEnablesThinking(t *testing.T) {
	gw := &scriptedGateway{responses: []string{"ok", "ok"}}
	loop := runtime.New(gw, newRegistry())

	_, err := loop.Run(context.Background(), "s1", "think carefully about this", nil)
	require.NoError(t, err)
	require.Len(t, gw.options, 1)
	assert.True(t, gw.options[0].EnableThinking)

	_, err = loop.Run(context.Background(), "s2", "what time is it", nil)
	require.NoError(t, err)
	require.Len(t, gw.options, 2)
	assert.False(t, gw.options[1].EnableThinking)
}

func TestRun_HistoryIsIncludedInPrompt(t *testing.T) {
	gw := &scriptedGateway{responses: []string{"As I said, Paris."}}
	loop := runtime.New(gw, newRegistry())

	history := []domain.Message{
		domain.NewMessage(domain.RoleUser, "capital of France?"),
		domain.NewMessage(domain.RoleAssistant, "Paris."),
	}
	result, err := loop.Run(context.Background(), "s1", "say that again", history)
	require.NoError(t, err)

	require.Len(t, gw.prompts, 1)
	assert.Contains(t, gw.prompts[0], "User: capital of France?")
	assert.Contains(t, gw.prompts[0], "Assistant: Paris.")
	assert.Contains(t, gw.prompts[0], "User: say that again")

	// The result transcript carries history plus the new exchange.
	assert.Len(t, result.Messages, 4)
}

func TestRun_HooksFire(t *testing.T) {
	lookup := &stubTool{name: "lookup"}
	lookup.execute = func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
		return domain.SuccessResult("data"), nil
	}

	var turnStarts, toolCalls, toolReturns, runEnds atomic.Int32
	hooks := domain.LifecycleHooks{
		OnTurnStart:  func(ctx context.Context, e *domain.TurnEvent) { turnStarts.Add(1) },
		OnToolCall:   func(ctx context.Context, e *domain.ToolEvent) { toolCalls.Add(1) },
		OnToolReturn: func(ctx context.Context, e *domain.ToolEvent) { toolReturns.Add(1) },
		OnRunEnd:     func(ctx context.Context, e *domain.RunEvent) { runEnds.Add(1) },
	}

	gw := &scriptedGateway{responses: []string{
		"TOOL_CALL: lookup\nARGUMENTS: {}",
		"done",
	}}
	loop := runtime.New(gw, newRegistry(lookup), runtime.WithHooks(hooks))

	_, err := loop.Run(context.Background(), "s1", "go", nil)
	require.NoError(t, err)

	assert.Equal(t, int32(2), turnStarts.Load())
	assert.Equal(t, int32(1), toolCalls.Load())
	assert.Equal(t, int32(1), toolReturns.Load())
	assert.Equal(t, int32(1), runEnds.Load())
}
