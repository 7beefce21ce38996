package core

import (
	"fmt"
	"time"
)

// ValidationError reports tool arguments that failed schema validation. It is
// local to the deciding agent and never fatal: the orchestrator records it as
// thread content so the next reasoning step can correct the call.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// HandoffRejectedError reports a hand-off request along an edge the graph
// does not permit. Not fatal: the source agent stays active and receives a
// corrective note.
type HandoffRejectedError struct {
	From string
	To   string
}

func (e *HandoffRejectedError) Error() string {
	return fmt.Sprintf("handoff from %q to %q is not a legal edge", e.From, e.To)
}

// ResourceInitError reports that a shared session resource could not be
// initialized. The failure is cached for a bounded retry window; callers
// inside the window receive the same error.
type ResourceInitError struct {
	Kind string
	Err  error
}

func (e *ResourceInitError) Error() string {
	return fmt.Sprintf("resource %q initialization failed: %v", e.Kind, e.Err)
}

func (e *ResourceInitError) Unwrap() error { return e.Err }

// ConfigError reports malformed static configuration (hand-off graph, agent
// descriptors, topology files). Fatal at startup: the run never begins.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "config error: " + e.Reason }

// NewConfigError builds a ConfigError with Sprintf formatting.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// RunError wraps a run-terminating failure (provider error, cancellation)
// with the run ID so callers can retrieve the partial thread afterwards.
type RunError struct {
	RunID string
	Err   error
}

func (e *RunError) Error() string { return fmt.Sprintf("run %s: %v", e.RunID, e.Err) }

func (e *RunError) Unwrap() error { return e.Err }

// BudgetExceededError reports a run that exhausted its turn or time budget
// without reaching a terminal response. Fatal to the run; the partial thread
// remains retrievable from the thread store.
type BudgetExceededError struct {
	RunID    string
	Turns    int
	MaxTurns int
	Elapsed  time.Duration
}

func (e *BudgetExceededError) Error() string {
	if e.MaxTurns > 0 && e.Turns >= e.MaxTurns {
		return fmt.Sprintf("run %s exceeded max turns budget (%d)", e.RunID, e.MaxTurns)
	}
	return fmt.Sprintf("run %s exceeded time budget after %s", e.RunID, e.Elapsed)
}
