package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrToolNotFound is returned when a tool call names an unregistered tool.
var ErrToolNotFound = errors.New("tool not found")

// SecurityError is a policy violation (scheme, private/metadata address,
// cross-origin redirect). It is fatal to the offending call and never retried.
type SecurityError struct {
	URL    string
	Reason string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security violation for %q: %s", e.URL, e.Reason)
}

// IsSecurityError reports whether err wraps a SecurityError.
func IsSecurityError(err error) bool {
	var se *SecurityError
	return errors.As(err, &se)
}

// ToolExecutionError wraps the last failure after a tool's retry budget is
// exhausted. The registry converts it into an error ToolResult; it never
// reaches the orchestrator as an error.
type ToolExecutionError struct {
	Tool     string
	Attempts int
	Err      error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed after %d attempts: %v", e.Tool, e.Attempts, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// ModelBehaviorError signals malformed or empty model output (unpaired
// directive markers, blank response). The current turn terminates with a
// best-effort answer; it is not retried.
type ModelBehaviorError struct {
	Reason string
}

func (e *ModelBehaviorError) Error() string {
	return "model behavior error: " + e.Reason
}
