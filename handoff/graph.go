// Package handoff models the routing topology of an agency: which agent may
// hand the conversation to which. The graph is built once from the agent
// descriptors, validated eagerly, and queried in O(1) on the hot path.
package handoff

import (
	"sort"

	"github.com/hupe1980/agencykit/agent"
	"github.com/hupe1980/agencykit/core"
)

// Graph is the immutable handoff topology. Nodes are agent names, directed
// edges are permitted handoffs. Build it with NewGraph; construction fails on
// an inconsistent topology so runtime checks reduce to map lookups.
type Graph struct {
	entry string
	edges map[string]map[string]struct{}
}

// NewGraph builds and validates the topology from descriptors and the entry
// agent name. It returns a *core.ConfigError when:
//   - no descriptors are given or a name appears twice
//   - entry names no known agent
//   - an edge points at an unknown agent
//   - a node is unreachable from the entry
//
// Self-loops are already rejected at descriptor construction.
func NewGraph(entry string, descriptors ...*agent.Descriptor) (*Graph, error) {
	if len(descriptors) == 0 {
		return nil, core.NewConfigError("agency needs at least one agent")
	}

	edges := make(map[string]map[string]struct{}, len(descriptors))
	for _, d := range descriptors {
		if _, dup := edges[d.Name()]; dup {
			return nil, core.NewConfigError("duplicate agent name %q", d.Name())
		}

		targets := make(map[string]struct{})
		for _, target := range d.HandoffTargets() {
			targets[target] = struct{}{}
		}

		edges[d.Name()] = targets
	}

	if _, ok := edges[entry]; !ok {
		return nil, core.NewConfigError("entry agent %q is not part of the agency", entry)
	}

	for name, targets := range edges {
		for target := range targets {
			if _, known := edges[target]; !known {
				return nil, core.NewConfigError("agent %q hands off to unknown agent %q", name, target)
			}
		}
	}

	if unreachable := unreachableFrom(entry, edges); len(unreachable) > 0 {
		return nil, core.NewConfigError("agents unreachable from entry %q: %v", entry, unreachable)
	}

	return &Graph{entry: entry, edges: edges}, nil
}

// unreachableFrom returns the sorted node names a BFS from start never visits.
func unreachableFrom(start string, edges map[string]map[string]struct{}) []string {
	visited := map[string]struct{}{start: {}}
	queue := []string{start}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for target := range edges[node] {
			if _, seen := visited[target]; seen {
				continue
			}

			visited[target] = struct{}{}
			queue = append(queue, target)
		}
	}

	var unreachable []string
	for name := range edges {
		if _, seen := visited[name]; !seen {
			unreachable = append(unreachable, name)
		}
	}

	sort.Strings(unreachable)

	return unreachable
}

// Entry returns the agent that receives the opening user message.
func (g *Graph) Entry() string { return g.entry }

// Contains reports whether name is a node of the graph.
func (g *Graph) Contains(name string) bool {
	_, ok := g.edges[name]
	return ok
}

// IsLegal reports whether from may hand the conversation to to.
func (g *Graph) IsLegal(from, to string) bool {
	targets, ok := g.edges[from]
	if !ok {
		return false
	}

	_, legal := targets[to]

	return legal
}

// Targets returns the sorted handoff targets of name.
func (g *Graph) Targets(name string) []string {
	targets, ok := g.edges[name]
	if !ok {
		return nil
	}

	out := make([]string, 0, len(targets))
	for target := range targets {
		out = append(out, target)
	}

	sort.Strings(out)

	return out
}

// Agents returns all node names in sorted order.
func (g *Graph) Agents() []string {
	out := make([]string, 0, len(g.edges))
	for name := range g.edges {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}
