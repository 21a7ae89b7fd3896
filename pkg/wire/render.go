package wire

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// FormatInstructions is the fixed response-format block appended to every
// prompt. Changing this text changes what the model emits; treat it as part
// of the protocol.
const FormatInstructions = `Respond using this exact format:
- To narrate your deliberation, write: [Thinking: <your note>]
- To invoke a tool, write two lines:
TOOL_CALL: <tool name>
ARGUMENTS: <arguments as a single-line JSON object>
- When you have the final answer, write it as plain text with no markers.
Never mix a final answer with tool calls in the same response.`

// RenderToolResults encodes a batch of tool outcomes in the wire tool-result
// format, one block per call, index-aligned with the request batch.
func RenderToolResults(calls []domain.ToolCall, results []domain.ToolResult) string {
	var b strings.Builder
	for i, call := range calls {
		if i >= len(results) {
			break
		}
		res := results[i]
		fmt.Fprintf(&b, "TOOL_RESULT: %s\n", call.Name)
		fmt.Fprintf(&b, "STATUS: %s\n", res.Status)
		fmt.Fprintf(&b, "CONTENT: %s\n", res.Content)
		b.WriteString("---\n")
	}
	return b.String()
}
