package wire

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

var (
	reasoningRe = regexp.MustCompile(`(?s)\[Thinking:\s*(.+?)\]`)
	toolCallRe  = regexp.MustCompile(`(?m)^TOOL_CALL:[ \t]*(\S+)[ \t]*\r?\nARGUMENTS:[ \t]*(.+?)[ \t]*$`)
)

// ProcessedResponse is the structured view of one raw model output.
// FinalOutput is populated iff ToolCalls is empty.
type ProcessedResponse struct {
	Reasoning   []string
	ToolCalls   []domain.ToolCall
	FinalOutput string
}

// HasFinalOutput reports whether the response carries a final answer.
func (p *ProcessedResponse) HasFinalOutput() bool {
	return len(p.ToolCalls) == 0
}

// Parser turns raw model output into a ProcessedResponse.
type Parser struct {
	logger *slog.Logger
}

// Option configures the Parser.
type Option func(*Parser)

// WithLogger sets a structured logger for dropped-directive warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		p.logger = logger
	}
}

// NewParser creates a Parser. Without options it logs nowhere.
func NewParser(opts ...Option) *Parser {
	p := &Parser{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate checks the raw response for protocol violations that make it
// unusable: blank output, or a tool-call directive marker without its paired
// arguments marker (and vice versa).
func (p *Parser) Validate(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &domain.ModelBehaviorError{Reason: "empty model output"}
	}

	calls := strings.Count(raw, "TOOL_CALL:")
	args := strings.Count(raw, "ARGUMENTS:")
	if calls != args {
		return &domain.ModelBehaviorError{
			Reason: "unpaired tool directive markers (TOOL_CALL/ARGUMENTS mismatch)",
		}
	}
	return nil
}

// Process extracts reasoning notes and tool calls in order of first
// appearance. When no tool call survives parsing, the remaining text with all
// markers stripped becomes the final output.
func (p *Parser) Process(raw string) *ProcessedResponse {
	resp := &ProcessedResponse{}

	for _, m := range reasoningRe.FindAllStringSubmatch(raw, -1) {
		resp.Reasoning = append(resp.Reasoning, strings.TrimSpace(m[1]))
	}

	for _, m := range toolCallRe.FindAllStringSubmatch(raw, -1) {
		name, rawArgs := m[1], m[2]

		var args map[string]any
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			// Tolerated: the model occasionally emits broken JSON. Dropping
			// the single directive keeps the rest of the response usable.
			p.logger.Warn("Dropping tool directive with unparsable arguments",
				"tool", name,
				"err", err,
			)
			continue
		}

		resp.ToolCalls = append(resp.ToolCalls, domain.ToolCall{
			ID:   uuid.NewString(),
			Name: name,
			Args: args,
		})
	}

	if len(resp.ToolCalls) == 0 {
		cleaned := reasoningRe.ReplaceAllString(raw, "")
		cleaned = toolCallRe.ReplaceAllString(cleaned, "")
		resp.FinalOutput = strings.TrimSpace(cleaned)
	}

	return resp
}
