package agent

import (
	"sort"

	"github.com/hupe1980/agencykit/core"
	"github.com/hupe1980/agencykit/model"
	"github.com/hupe1980/agencykit/tool"
)

// ModelConfig binds a descriptor to a concrete model plus provider tuning.
type ModelConfig struct {
	// Model drives the agent's reasoning steps. Required.
	Model model.Model

	// ReasoningEffort tunes provider-side reasoning depth where supported
	// ("low", "medium", "high"). Providers without the knob ignore it.
	ReasoningEffort string

	// Extras carries provider-specific parameters passed through untouched.
	Extras map[string]any
}

// DescriptorOptions configures a Descriptor at construction time.
type DescriptorOptions struct {
	// Description is a short human-readable summary, shown to peer agents
	// when they choose a handoff target.
	Description string

	// Instruction is the agent's system prompt. Defaults to a generic
	// assistant prompt built from the agent name.
	Instruction Instruction

	// Tools lists the agent's callable tools. Duplicate names are rejected.
	Tools []tool.Tool

	// HandoffTargets names the agents this one may route to. Membership in
	// the agency graph is validated later; self-routing is rejected here.
	HandoffTargets []string

	// ReasoningEffort and Extras feed the ModelConfig.
	ReasoningEffort string
	Extras          map[string]any

	// SupportsConcurrentTools allows the runner to dispatch non-conflicting
	// tool calls of one decision in parallel.
	SupportsConcurrentTools bool
}

// Descriptor is the immutable definition of an agent: its identity, system
// prompt, model binding, tool set and routing permissions. Construct it with
// NewDescriptor; a validated descriptor never changes afterwards, so it is
// safe to share across concurrent runs.
type Descriptor struct {
	name                    string
	description             string
	instruction             Instruction
	modelCfg                ModelConfig
	tools                   map[string]tool.Tool
	handoffTargets          []string
	supportsConcurrentTools bool
}

// NewDescriptor validates and builds an agent descriptor. It returns a
// *core.ConfigError when the definition is unusable: empty name, nil model,
// duplicate tool names, a tool without an object parameter schema, or the
// agent naming itself as a handoff target.
func NewDescriptor(name string, m model.Model, optFns ...func(o *DescriptorOptions)) (*Descriptor, error) {
	if name == "" {
		return nil, core.NewConfigError("agent name must not be empty")
	}

	if m == nil {
		return nil, core.NewConfigError("agent %q: model must not be nil", name)
	}

	opts := DescriptorOptions{
		Instruction: NewInstructionFromText("You are " + name + ", a helpful AI assistant."),
	}
	for _, optFn := range optFns {
		optFn(&opts)
	}

	if opts.Instruction.IsZero() {
		return nil, core.NewConfigError("agent %q: instruction must not be empty", name)
	}

	tools := make(map[string]tool.Tool, len(opts.Tools))
	for _, t := range opts.Tools {
		if t == nil {
			return nil, core.NewConfigError("agent %q: tool must not be nil", name)
		}

		if _, exists := tools[t.Name()]; exists {
			return nil, core.NewConfigError("agent %q: duplicate tool %q", name, t.Name())
		}

		if err := validateToolSchema(name, t); err != nil {
			return nil, err
		}

		tools[t.Name()] = t
	}

	targets := make([]string, 0, len(opts.HandoffTargets))
	seen := make(map[string]struct{}, len(opts.HandoffTargets))
	for _, target := range opts.HandoffTargets {
		if target == name {
			return nil, core.NewConfigError("agent %q: cannot hand off to itself", name)
		}

		if _, dup := seen[target]; dup {
			continue
		}

		seen[target] = struct{}{}
		targets = append(targets, target)
	}

	sort.Strings(targets)

	return &Descriptor{
		name:        name,
		description: opts.Description,
		instruction: opts.Instruction,
		modelCfg: ModelConfig{
			Model:           m,
			ReasoningEffort: opts.ReasoningEffort,
			Extras:          opts.Extras,
		},
		tools:                   tools,
		handoffTargets:          targets,
		supportsConcurrentTools: opts.SupportsConcurrentTools,
	}, nil
}

// validateToolSchema rejects tools whose parameter schema is not a JSON
// object schema. Providers require "type": "object" on function parameters.
func validateToolSchema(agentName string, t tool.Tool) error {
	params := t.Parameters()
	if params == nil {
		return core.NewConfigError("agent %q: tool %q has no parameter schema", agentName, t.Name())
	}

	if typ, _ := params["type"].(string); typ != "object" {
		return core.NewConfigError("agent %q: tool %q parameter schema must have type \"object\"", agentName, t.Name())
	}

	return nil
}

// Name returns the agent's unique name.
func (d *Descriptor) Name() string { return d.name }

// Description returns the short human-readable summary.
func (d *Descriptor) Description() string { return d.description }

// ResolveInstruction produces the final system prompt text.
func (d *Descriptor) ResolveInstruction(rc *core.RunContext) (string, error) {
	return d.instruction.Resolve(rc)
}

// ModelConfig returns the model binding.
func (d *Descriptor) ModelConfig() ModelConfig { return d.modelCfg }

// Tool retrieves a tool by name.
func (d *Descriptor) Tool(name string) (tool.Tool, bool) {
	t, ok := d.tools[name]
	return t, ok
}

// Tools returns a copy of the tool set keyed by name.
func (d *Descriptor) Tools() map[string]tool.Tool {
	out := make(map[string]tool.Tool, len(d.tools))
	for name, t := range d.tools {
		out[name] = t
	}

	return out
}

// ToolDefinitions returns the tool set as provider-facing definitions, sorted
// by name for deterministic request shapes.
func (d *Descriptor) ToolDefinitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(d.tools))
	for _, t := range d.tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	return defs
}

// HandoffTargets returns the sorted list of agents this one may route to.
func (d *Descriptor) HandoffTargets() []string {
	out := make([]string, len(d.handoffTargets))
	copy(out, d.handoffTargets)

	return out
}

// SupportsConcurrentTools reports whether the runner may parallelize
// non-conflicting tool calls for this agent.
func (d *Descriptor) SupportsConcurrentTools() bool { return d.supportsConcurrentTools }
