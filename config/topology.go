package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agencykit/core"
)

// Topology describes an agency layout in YAML: the set of agents, the entry
// point, and the hand-off edges between them. Tool names are symbolic; the
// caller resolves them against its registry when building descriptors.
type Topology struct {
	Entry  string      `yaml:"entry"`
	Agents []AgentSpec `yaml:"agents"`
}

// AgentSpec is the configuration block for a single agent.
type AgentSpec struct {
	Name            string         `yaml:"name"`
	Description     string         `yaml:"description"`
	Instruction     string         `yaml:"instruction"`
	Model           string         `yaml:"model"`
	ReasoningEffort string         `yaml:"reasoningEffort"`
	Tools           []string       `yaml:"tools"`
	HandoffTargets  []string       `yaml:"handoffTargets"`
	ConcurrentTools bool           `yaml:"concurrentTools"`
	Extras          map[string]any `yaml:"extras"`
}

// LoadTopology reads a YAML topology file.
func LoadTopology(path string) (*Topology, error) {
	if path == "" {
		return nil, core.NewConfigError("topology path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	return ParseTopology(raw)
}

// ParseTopology decodes and validates a YAML topology document.
func ParseTopology(raw []byte) (*Topology, error) {
	var top Topology
	if err := yaml.Unmarshal(raw, &top); err != nil {
		return nil, core.NewConfigError("unmarshal topology: %v", err)
	}
	if err := top.Validate(); err != nil {
		return nil, err
	}
	return &top, nil
}

// Validate checks the structural rules a topology must satisfy before
// descriptors and a hand-off graph can be built from it. Reachability is
// enforced later by the graph itself.
func (t *Topology) Validate() error {
	if len(t.Agents) == 0 {
		return core.NewConfigError("topology declares no agents")
	}
	if t.Entry == "" {
		return core.NewConfigError("topology entry cannot be empty")
	}

	names := make(map[string]struct{}, len(t.Agents))
	for _, a := range t.Agents {
		if a.Name == "" {
			return core.NewConfigError("topology agent name cannot be empty")
		}
		if _, ok := names[a.Name]; ok {
			return core.NewConfigError("duplicate agent name %q", a.Name)
		}
		names[a.Name] = struct{}{}
	}

	if _, ok := names[t.Entry]; !ok {
		return core.NewConfigError("entry references unknown agent %q", t.Entry)
	}
	for _, a := range t.Agents {
		for _, target := range a.HandoffTargets {
			if target == a.Name {
				return core.NewConfigError("agent %q cannot hand off to itself", a.Name)
			}
			if _, ok := names[target]; !ok {
				return core.NewConfigError("agent %q hands off to unknown agent %q", a.Name, target)
			}
		}
	}
	return nil
}

// Agent returns the AgentSpec for the named agent, or false when absent.
func (t *Topology) Agent(name string) (AgentSpec, bool) {
	for _, a := range t.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentSpec{}, false
}
