package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/wire"
)

func TestValidate_EmptyOutput(t *testing.T) {
	p := wire.NewParser()

	err := p.Validate("   \n\t  ")
	require.Error(t, err)

	var mbe *domain.ModelBehaviorError
	assert.ErrorAs(t, err, &mbe)
}

func TestValidate_UnpairedMarkers(t *testing.T) {
	p := wire.NewParser()

	assert.Error(t, p.Validate("TOOL_CALL: fetch\nno arguments line"))
	assert.Error(t, p.Validate("ARGUMENTS: {\"url\":\"x\"}"))
	assert.NoError(t, p.Validate("TOOL_CALL: fetch\nARGUMENTS: {\"url\":\"x\"}"))
	assert.NoError(t, p.Validate("just a plain answer"))
}

func TestProcess_SingleToolCall(t *testing.T) {
	p := wire.NewParser()

	resp := p.Process("TOOL_CALL: x\nARGUMENTS: {\"a\":1}")
	require.Len(t, resp.ToolCalls, 1)

	call := resp.ToolCalls[0]
	assert.Equal(t, "x", call.Name)
	assert.Equal(t, float64(1), call.Args["a"])
	assert.NotEmpty(t, call.ID)
	assert.False(t, resp.HasFinalOutput())
	assert.Empty(t, resp.FinalOutput)
}

func TestProcess_MalformedArgumentsDropped(t *testing.T) {
	p := wire.NewParser()

	resp := p.Process("TOOL_CALL: x\nARGUMENTS: {not json}")
	assert.Empty(t, resp.ToolCalls)
	// With zero surviving tool calls the stripped text becomes the final
	// output; here nothing useful remains.
	assert.True(t, resp.HasFinalOutput())
}

func TestProcess_MultipleCallsOrderPreserved(t *testing.T) {
	p := wire.NewParser()

	raw := "TOOL_CALL: first\nARGUMENTS: {\"n\":1}\n\nTOOL_CALL: second\nARGUMENTS: {\"n\":2}"
	resp := p.Process(raw)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "first", resp.ToolCalls[0].Name)
	assert.Equal(t, "second", resp.ToolCalls[1].Name)
	assert.NotEqual(t, resp.ToolCalls[0].ID, resp.ToolCalls[1].ID)
}

func TestProcess_FinalOutputStripsReasoning(t *testing.T) {
	p := wire.NewParser()

	raw := "[Thinking: weighing the options] The capital of France is Paris.\n[Thinking: done]"
	resp := p.Process(raw)

	require.Len(t, resp.Reasoning, 2)
	assert.Equal(t, "weighing the options", resp.Reasoning[0])
	assert.Equal(t, "done", resp.Reasoning[1])
	assert.True(t, resp.HasFinalOutput())
	assert.Equal(t, "The capital of France is Paris.", resp.FinalOutput)
}

func TestProcess_ReasoningAlongsideToolCall(t *testing.T) {
	p := wire.NewParser()

	raw := "[Thinking: I should look this up]\nTOOL_CALL: fetch\nARGUMENTS: {\"url\":\"https://example.com\"}"
	resp := p.Process(raw)

	require.Len(t, resp.Reasoning, 1)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "fetch", resp.ToolCalls[0].Name)
	assert.Equal(t, "https://example.com", resp.ToolCalls[0].Args["url"])
	assert.False(t, resp.HasFinalOutput())
}

func TestRenderToolResults(t *testing.T) {
	calls := []domain.ToolCall{
		{ID: "1", Name: "fetch"},
		{ID: "2", Name: "search"},
	}
	results := []domain.ToolResult{
		domain.SuccessResult("page content"),
		domain.ErrorResult("timeout"),
	}

	out := wire.RenderToolResults(calls, results)

	expected := "TOOL_RESULT: fetch\nSTATUS: success\nCONTENT: page content\n---\n" +
		"TOOL_RESULT: search\nSTATUS: error\nCONTENT: timeout\n---\n"
	assert.Equal(t, expected, out)
}
