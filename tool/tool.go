// Package tool implements the tool invocation contract that lets agents
// invoke structured capabilities (APIs, computations, side-effects) with
// schema validated arguments, declared side effects, consistent error
// handling and ordered multimodal results.
package tool

import (
	"fmt"

	"github.com/hupe1980/agencykit/core"
)

// EffectClass categorizes the side effects a tool call may have. The
// orchestrator consults it to decide whether calls within one decision may
// run concurrently.
type EffectClass string

const (
	// EffectNone marks a pure computation with no observable side effects.
	EffectNone EffectClass = "none"
	// EffectFileWrite marks a tool that writes local files.
	EffectFileWrite EffectClass = "file_write"
	// EffectNetwork marks a tool that opens outbound network connections.
	EffectNetwork EffectClass = "network"
	// EffectResource marks a tool that uses a shared session resource; the
	// SideEffect's Resource field names the kind.
	EffectResource EffectClass = "resource"
)

// SideEffect declares one observable effect of a tool. Tools declaring a
// SideEffect with the same non-empty Resource, or both declaring
// EffectFileWrite, are never dispatched concurrently within a turn.
type SideEffect struct {
	Class    EffectClass
	Resource string // Resource kind for EffectResource, empty otherwise
}

// Conflicts reports whether two declared effects must be serialized.
func (s SideEffect) Conflicts(other SideEffect) bool {
	if s.Class == EffectFileWrite && other.Class == EffectFileWrite {
		return true
	}
	return s.Resource != "" && s.Resource == other.Resource
}

// Tool defines the contract every agent capability adheres to.
//
// Implementations must:
//   - Declare a JSON schema for their arguments; invalid args fail with a
//     ValidationError before any side effect occurs
//   - Declare their side effects so the orchestrator can schedule safely
//   - Return ordered content blocks; block order is preserved end-to-end
//   - Return structured errors instead of panicking, and never leave
//     partial, unreported side effects behind
//   - Check the ToolContext's context and exit promptly on cancellation
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description returns a human-readable description shown to models.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// SideEffects declares the observable effects of a call.
	SideEffects() []SideEffect

	// Call executes the tool with validated arguments, returning an ordered
	// sequence of content blocks or a structured error.
	Call(toolCtx *core.ToolContext, args map[string]any) ([]core.Block, error)
}

// Conflicting reports whether two tools declare any pair of side effects
// that must be serialized.
func Conflicting(a, b Tool) bool {
	for _, ea := range a.SideEffects() {
		for _, eb := range b.SideEffects() {
			if ea.Conflicts(eb) {
				return true
			}
		}
	}
	return false
}

// ToolError represents errors that occur during tool execution. The
// orchestrator records it as thread content so the agent's next reasoning
// step can react (retry, pick an alternative, surface the failure).
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
