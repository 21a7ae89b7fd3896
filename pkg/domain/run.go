package domain

import "time"

// Outcome is the terminal branch a run ended on.
type Outcome string

const (
	// OutcomeFinal means the model produced a final answer on its own.
	OutcomeFinal Outcome = "final"
	// OutcomeFallback means every tool in a turn failed and the answer came
	// from a single ungoverned fallback model call.
	OutcomeFallback Outcome = "fallback"
	// OutcomeMaxTurns means the turn budget ran out and the answer is a
	// best-effort summary synthesized from the tool ledger.
	OutcomeMaxTurns Outcome = "max_turns"
)

// ReasoningStep is one extracted thinking note, in order of appearance.
type ReasoningStep struct {
	Index int    `json:"index"`
	Note  string `json:"note"`
}

// RunState is the working state of a single loop invocation.
// It is created per invocation, owned exclusively by it, and discarded when
// the run returns. Messages and ledgers only grow; Turn never exceeds MaxTurns
// after an increment.
type RunState struct {
	SessionID  string
	Turn       int
	MaxTurns   int
	Messages   []Message
	ToolLedger []ToolLedgerEntry
	Reasoning  []ReasoningStep
}

// NewRunState seeds a run with prior history. The history slice is copied so
// the run cannot alias the caller's transcript.
func NewRunState(sessionID string, maxTurns int, history []Message) *RunState {
	return &RunState{
		SessionID: sessionID,
		MaxTurns:  maxTurns,
		Messages:  CloneMessages(history),
	}
}

// Append adds a message to the transcript.
func (s *RunState) Append(role Role, content string) {
	s.Messages = append(s.Messages, NewMessage(role, content))
}

// RecordTool appends an entry to the tool-call ledger.
func (s *RunState) RecordTool(call ToolCall, result ToolResult) {
	s.ToolLedger = append(s.ToolLedger, ToolLedgerEntry{
		ToolName:  call.Name,
		Args:      call.Args,
		Result:    result,
		Timestamp: time.Now().UTC(),
	})
}

// RecordReasoning appends thinking notes to the reasoning ledger.
func (s *RunState) RecordReasoning(notes []string) {
	for _, note := range notes {
		s.Reasoning = append(s.Reasoning, ReasoningStep{
			Index: len(s.Reasoning),
			Note:  note,
		})
	}
}

// Result snapshots the run into its uniform result shape.
func (s *RunState) Result(finalOutput string, outcome Outcome) *RunResult {
	return &RunResult{
		SessionID:      s.SessionID,
		FinalOutput:    finalOutput,
		Messages:       CloneMessages(s.Messages),
		ToolCalls:      len(s.ToolLedger),
		ReasoningSteps: len(s.Reasoning),
		TurnsUsed:      s.Turn,
		Outcome:        outcome,
	}
}

// RunResult is returned uniformly from every terminal branch of the loop.
type RunResult struct {
	SessionID      string    `json:"session_id"`
	FinalOutput    string    `json:"final_output"`
	Messages       []Message `json:"messages"`
	ToolCalls      int       `json:"tool_calls"`
	ReasoningSteps int       `json:"reasoning_steps"`
	TurnsUsed      int       `json:"turns_used"`
	Outcome        Outcome   `json:"outcome"`
}
