// Package agencykit provides a high-level façade over the orchestration
// runner and service abstractions (threads, artifacts, session resources &
// logging) enabling rapid construction of multi-agent systems with
// multimodal tool results and hand-off routing. Most applications interact
// with this package by:
//  1. Building agent descriptors (model binding, instructions, tools, hand-off targets)
//  2. Creating an Agency via New() with the entry agent — or declaratively
//     via FromTopology() from a YAML layout — the hand-off graph is
//     validated here and malformed topologies fail fast
//  3. Invoking runs synchronously (Run) or as a turn stream (StartRun)
//
// The façade delegates orchestration to runner.Runner while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply durable stores, resource
// factories for the session backends their tools need (browser, image
// generation) and a structured logger.
package agencykit

import (
	"context"
	"time"

	"github.com/hupe1980/agencykit/agent"
	"github.com/hupe1980/agencykit/config"
	"github.com/hupe1980/agencykit/core"
	"github.com/hupe1980/agencykit/handoff"
	"github.com/hupe1980/agencykit/logging"
	"github.com/hupe1980/agencykit/model"
	"github.com/hupe1980/agencykit/resource"
	"github.com/hupe1980/agencykit/runner"
	"github.com/hupe1980/agencykit/thread"
	"github.com/hupe1980/agencykit/tool"
)

// Options configures the Agency instance.
type Options struct {
	// MaxTurns bounds the number of model decisions per run.
	MaxTurns int
	// RunTimeout bounds the wall-clock duration of a run. Zero means the
	// caller's context is the only bound.
	RunTimeout time.Duration
	// ToolTimeout bounds each individual tool call.
	ToolTimeout time.Duration
	// MaxParallelTools caps the fan-out width of one decision's tool calls.
	MaxParallelTools int
	// TurnBufferSize sets channel buffering for streamed turns.
	TurnBufferSize int

	// ResourceFactories registers session resource backends by kind. Each
	// run gets its own manager seeded with these factories, so handles
	// (browser sessions, generator clients) never leak across runs.
	ResourceFactories map[string]resource.Factory

	// Stores (defaults to in-memory implementations if not provided)
	ThreadStore   thread.Store
	ArtifactStore core.ArtifactStore

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Agency is the high-level façade aggregating the hand-off graph and the
// orchestration runner.
type Agency struct {
	graph  *handoff.Graph
	runner *runner.Runner
}

// New creates an Agency from an entry agent and its descriptors. The
// hand-off graph is validated immediately: duplicate names, unknown targets
// and unreachable agents are *core.ConfigError and the agency never starts.
func New(entry string, descriptors []*agent.Descriptor, optFns ...func(o *Options)) (*Agency, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	graph, err := handoff.NewGraph(entry, descriptors...)
	if err != nil {
		return nil, err
	}

	// Probe the factory set once so bad registrations (empty kind, nil
	// factory) surface here as ConfigError instead of at first run start.
	factories := opts.ResourceFactories
	if len(factories) > 0 {
		probe := resource.NewManager()
		for kind, factory := range factories {
			if err := probe.Register(kind, factory); err != nil {
				return nil, err
			}
		}
	}
	r, err := runner.New(graph, descriptors, func(o *runner.Options) {
		if opts.MaxTurns > 0 {
			o.MaxTurns = opts.MaxTurns
		}
		if opts.RunTimeout > 0 {
			o.RunTimeout = opts.RunTimeout
		}
		if opts.ToolTimeout > 0 {
			o.ToolTimeout = opts.ToolTimeout
		}
		if opts.MaxParallelTools > 0 {
			o.MaxParallelTools = opts.MaxParallelTools
		}
		if opts.TurnBufferSize > 0 {
			o.TurnBufferSize = opts.TurnBufferSize
		}
		if opts.ThreadStore != nil {
			o.ThreadStore = opts.ThreadStore
		}
		if opts.ArtifactStore != nil {
			o.ArtifactStore = opts.ArtifactStore
		}
		if len(factories) > 0 {
			o.Resources = func() core.ResourceManager {
				m := resource.NewManager(func(mo *resource.ManagerOptions) {
					mo.Logger = opts.Logger
				})
				for kind, factory := range factories {
					// Registrations were validated at New.
					_ = m.Register(kind, factory)
				}
				return m
			}
		}
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	return &Agency{graph: graph, runner: r}, nil
}

// TopologyBinding resolves the symbolic names a topology file carries into
// concrete implementations. Models are keyed by the spec's model string,
// tools by their declared tool name.
type TopologyBinding struct {
	Models map[string]model.Model
	Tools  map[string]tool.Tool
}

// FromTopology builds an Agency from a declarative topology: every agent
// spec becomes a descriptor with its model and tools resolved through the
// binding. Names the binding cannot resolve are *core.ConfigError, as is
// anything the descriptors or the hand-off graph reject.
func FromTopology(topo *config.Topology, binding TopologyBinding, optFns ...func(o *Options)) (*Agency, error) {
	if topo == nil {
		return nil, core.NewConfigError("topology must not be nil")
	}

	descriptors := make([]*agent.Descriptor, 0, len(topo.Agents))
	for _, spec := range topo.Agents {
		spec := spec

		m, ok := binding.Models[spec.Model]
		if !ok {
			return nil, core.NewConfigError("agent %q: no model bound for %q", spec.Name, spec.Model)
		}

		tools := make([]tool.Tool, 0, len(spec.Tools))
		for _, name := range spec.Tools {
			t, ok := binding.Tools[name]
			if !ok {
				return nil, core.NewConfigError("agent %q: no tool bound for %q", spec.Name, name)
			}

			tools = append(tools, t)
		}

		d, err := agent.NewDescriptor(spec.Name, m, func(o *agent.DescriptorOptions) {
			o.Description = spec.Description
			if spec.Instruction != "" {
				o.Instruction = agent.NewInstructionFromText(spec.Instruction)
			}
			o.Tools = tools
			o.HandoffTargets = spec.HandoffTargets
			o.ReasoningEffort = spec.ReasoningEffort
			o.Extras = spec.Extras
			o.SupportsConcurrentTools = spec.ConcurrentTools
		})
		if err != nil {
			return nil, err
		}

		descriptors = append(descriptors, d)
	}

	return New(topo.Entry, descriptors, optFns...)
}

// Graph returns the validated hand-off graph.
func (a *Agency) Graph() *handoff.Graph { return a.graph }

// Run executes a run synchronously: the entry agent receives the user
// message, and the call returns when an agent answers without requesting
// tools or a hand-off. On budget or provider errors the partial transcript
// stays retrievable via Thread.
func (a *Agency) Run(ctx context.Context, userMsg core.UserMessage) (*runner.RunResult, error) {
	return a.runner.Run(ctx, userMsg)
}

// StartRun starts an asynchronous run returning the run ID plus turn & error
// channels. Turns stream in thread order; the turn channel closes when the
// run finishes and the error channel then yields at most one terminal error.
func (a *Agency) StartRun(ctx context.Context, userMsg core.UserMessage) (string, <-chan core.Turn, <-chan error, error) {
	return a.runner.StartRun(ctx, userMsg)
}

// Cancel aborts an in-flight run. In-flight tool and model calls observe the
// cancellation through their contexts; resources are released on exit.
func (a *Agency) Cancel(runID string) error { return a.runner.Cancel(runID) }

// Thread returns the transcript of a current or finished run.
func (a *Agency) Thread(runID string) (*core.Thread, error) { return a.runner.Thread(runID) }
