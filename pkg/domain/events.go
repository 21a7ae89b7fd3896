package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTurnStart  EventType = "turn_start"
	EventToolCall   EventType = "tool_call"
	EventToolReturn EventType = "tool_return"
	EventRunEnd     EventType = "run_end"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// TurnEvent marks the start of a loop turn.
type TurnEvent struct {
	EventBase
	Turn int `json:"turn"`
}

// ToolEvent represents a tool execution request or return.
type ToolEvent struct {
	EventBase
	ToolName string `json:"tool_name"`
	CallID   string `json:"call_id"`
	Input    any    `json:"input,omitempty"`
	Output   string `json:"output,omitempty"`
	IsError  bool   `json:"is_error,omitempty"`
}

// RunEvent marks a terminal loop branch.
type RunEvent struct {
	EventBase
	Outcome   Outcome `json:"outcome"`
	TurnsUsed int     `json:"turns_used"`
}

// LifecycleHooks defines callbacks for loop observability.
type LifecycleHooks struct {
	OnTurnStart  func(context.Context, *TurnEvent)
	OnToolCall   func(context.Context, *ToolEvent)
	OnToolReturn func(context.Context, *ToolEvent)
	OnRunEnd     func(context.Context, *RunEvent)
}
