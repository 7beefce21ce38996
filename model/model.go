package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agencykit/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCallRequest is a single function invocation the model asked for.
// Unified across vendors so downstream logic does not need per-provider
// branching.
type ToolCallRequest struct {
	CallID string         `json:"call_id"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args"`
}

// HandoffRequest asks the orchestrator to route the conversation to another
// agent. Providers surface it through a synthetic function exposed alongside
// the agent's real tools.
type HandoffRequest struct {
	Target string `json:"target"`
	Reason string `json:"reason,omitempty"`
}

// HandoffFunctionName is the synthetic function providers expose alongside
// the agent's real tools when the request carries handoff targets. A call to
// it is folded into Decision.Handoff instead of Decision.ToolCalls.
const HandoffFunctionName = "handoff_to_agent"

// HandoffToolDefinition builds the synthetic routing function for the given
// targets.
func HandoffToolDefinition(targets []string) ToolDefinition {
	enum := make([]any, len(targets))
	for i, t := range targets {
		enum[i] = t
	}

	return ToolDefinition{
		Name:        HandoffFunctionName,
		Description: "Hand the conversation over to another agent. Use when the request is better served by one of the listed agents.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target": map[string]any{
					"type":        "string",
					"description": "Name of the agent to hand off to.",
					"enum":        enum,
				},
				"reason": map[string]any{
					"type":        "string",
					"description": "Short reason for the handoff.",
				},
			},
			"required": []string{"target"},
		},
	}
}

// Request captures the normalized model input for a single decision step.
type Request struct {
	// Agent is the name of the deciding agent. Providers use it to tell the
	// agent's own turns apart from peer agents' turns in History.
	Agent string

	// Instructions is the agent's system prompt.
	Instructions string

	// History is the agent-scoped conversation so far, oldest first.
	History []core.Turn

	// Tools lists the functions the agent may call this step.
	Tools []ToolDefinition

	// HandoffTargets lists agent names the model may route to. Empty means
	// the provider must not expose a routing function.
	HandoffTargets []string

	// ReasoningEffort tunes provider-side reasoning depth where supported
	// ("low", "medium", "high"). Providers without the knob ignore it.
	ReasoningEffort string

	// Extras carries provider-specific parameters (temperature and friends)
	// that the unified request does not model.
	Extras map[string]any
}

// Decision is the normalized outcome of one model step. Any combination of
// fields may be set; the orchestrator resolves precedence.
type Decision struct {
	// Message holds assistant-visible content blocks, possibly empty.
	Message []core.Block

	// ToolCalls lists requested function invocations in provider order.
	ToolCalls []ToolCallRequest

	// Handoff is non-nil when the model asked to route to another agent.
	Handoff *HandoffRequest

	// Usage carries token accounting when the provider reports it.
	Usage *TokenUsage
}

// TokenUsage captures token usage statistics for a decision.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface the orchestrator needs to drive an agent.
type Model interface {
	// Decide runs one reasoning step over the request and returns the
	// model's decision.
	Decide(ctx context.Context, req Request) (*Decision, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Decisions are consumed in the order they were scripted; when the script is
// exhausted it falls back to echoing the last user message.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	script    []*Decision
	requests  []Request
	scriptErr error
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      "mock",
			SupportsTools: true,
		},
	}
}

// Enqueue appends decisions to the script.
func (m *MockModel) Enqueue(decisions ...*Decision) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.script = append(m.script, decisions...)

	return m
}

// FailWith makes Decide return err once the script is exhausted.
func (m *MockModel) FailWith(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scriptErr = err

	return m
}

// Requests returns all requests seen so far, in call order.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)

	return out
}

// Decide implements Model.
func (m *MockModel) Decide(ctx context.Context, req Request) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]

		return next, nil
	}

	if m.scriptErr != nil {
		return nil, m.scriptErr
	}

	return &Decision{Message: core.Textf("Mock response to: %s", lastUserText(req.History))}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

func lastUserText(history []core.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if um, ok := history[i].(core.UserMessage); ok {
			return core.JoinText(um.Blocks)
		}
	}

	return ""
}

var _ Model = (*MockModel)(nil)

// ErrNoDecision signals a provider response that carried neither content nor
// tool calls.
var ErrNoDecision = fmt.Errorf("model returned an empty decision")
