package domain

import "time"

// ResultStatus marks a tool execution as succeeded or failed.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
)

// ToolCall represents a single capability invocation requested by the model.
// ID is an opaque correlation id, unique per call; it is regenerated on retry.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is the outcome of one ToolCall. A batch execution returns exactly
// one ToolResult per ToolCall, index-aligned with the request batch.
type ToolResult struct {
	Status   ResultStatus      `json:"status"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsError reports whether the result carries an error status.
func (r ToolResult) IsError() bool {
	return r.Status == StatusError
}

// SuccessResult builds a success ToolResult with the given content.
func SuccessResult(content string) ToolResult {
	return ToolResult{Status: StatusSuccess, Content: content}
}

// ErrorResult builds an error ToolResult with the given message.
func ErrorResult(msg string) ToolResult {
	return ToolResult{Status: StatusError, Content: msg}
}

// ToolDescriptor is the prompt-facing metadata of a registered tool.
type ToolDescriptor struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// ToolLedgerEntry records one executed tool call inside a RunState.
type ToolLedgerEntry struct {
	ToolName  string         `json:"tool_name"`
	Args      map[string]any `json:"args,omitempty"`
	Result    ToolResult     `json:"result"`
	Timestamp time.Time      `json:"timestamp"`
}
