package runtime

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/wire"
)

// excerptLimit caps how much raw model output is salvaged when the response
// fails protocol validation.
const excerptLimit = 500

// thinkingKeywords trigger the gateway's extended reasoning mode when they
// appear in the latest user message.
var thinkingKeywords = []string{
	"think",
	"reason",
	"analyze",
	"step by step",
	"carefully",
}

func thinkingRequested(input string) bool {
	lowered := strings.ToLower(input)
	for _, kw := range thinkingKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// buildPrompt assembles the full prompt for one turn: tool catalog first,
// then the transcript, then the fixed response-format block.
func buildPrompt(catalog string, messages []domain.Message) string {
	var b strings.Builder

	if catalog != "" {
		b.WriteString(catalog)
		b.WriteString("\n")
	}

	b.WriteString("## Conversation\n\n")
	writeTranscript(&b, messages)

	b.WriteString("\n")
	b.WriteString(wire.FormatInstructions)
	return b.String()
}

func writeTranscript(b *strings.Builder, messages []domain.Message) {
	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleUser:
			fmt.Fprintf(b, "User: %s\n", msg.Content)
		case domain.RoleAssistant:
			fmt.Fprintf(b, "Assistant: %s\n", msg.Content)
		case domain.RoleSystem:
			// Tool feedback and other system text is passed through verbatim.
			fmt.Fprintf(b, "%s\n", msg.Content)
		}
	}
}

// fallbackPrompt asks for a direct answer after every tool call in a turn
// failed, spelling out each failure.
func fallbackPrompt(messages []domain.Message, calls []domain.ToolCall, results []domain.ToolResult) string {
	var b strings.Builder

	b.WriteString("## Conversation\n\n")
	writeTranscript(&b, messages)

	b.WriteString("\nEvery tool call in your last response failed:\n")
	for i, call := range calls {
		if i >= len(results) {
			break
		}
		fmt.Fprintf(&b, "- %s: %s\n", call.Name, results[i].Content)
	}
	b.WriteString("\nTools are unavailable. Answer the user's request directly, " +
		"as plain text, using only what you already know. " +
		"Acknowledge any uncertainty caused by the failures.")
	return b.String()
}

// bestEffortExcerpt wraps unusable model output in an apologetic envelope so
// the run still ends with something presentable.
func bestEffortExcerpt(raw string) string {
	excerpt := strings.TrimSpace(raw)
	if len(excerpt) > excerptLimit {
		excerpt = excerpt[:excerptLimit] + "..."
	}
	if excerpt == "" {
		return "The model returned no usable output for this request."
	}
	return fmt.Sprintf(
		"The model's response did not follow the expected format. Partial output:\n\n%s",
		excerpt,
	)
}

// summarizeLedger produces the terminal answer when the turn budget runs out:
// a report of what was attempted, built purely from recorded state.
func summarizeLedger(state *domain.RunState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Reached the limit of %d turns without a final answer.\n", state.MaxTurns)

	if len(state.ToolLedger) == 0 {
		b.WriteString("No tools were invoked during this run.")
		return b.String()
	}

	b.WriteString("Tool activity so far:\n")
	for _, entry := range state.ToolLedger {
		status := "ok"
		if entry.Result.IsError() {
			status = "failed"
		}
		summary := entry.Result.Content
		if len(summary) > 120 {
			summary = summary[:120] + "..."
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", entry.ToolName, status, summary)
	}
	return b.String()
}
