package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agencykit/agent"
	"github.com/hupe1980/agencykit/artifact"
	"github.com/hupe1980/agencykit/core"
	"github.com/hupe1980/agencykit/handoff"
	"github.com/hupe1980/agencykit/logging"
	"github.com/hupe1980/agencykit/resource"
	"github.com/hupe1980/agencykit/thread"
)

// ResourceFactory builds the resource manager for one run. Each run gets its
// own manager so handles never leak across runs.
type ResourceFactory func() core.ResourceManager

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxTurns bounds the number of model decisions per run.
	MaxTurns int
	// ToolTimeout bounds each individual tool call.
	ToolTimeout time.Duration
	// RunTimeout bounds the wall-clock duration of a run. Zero means the
	// caller's context is the only bound.
	RunTimeout time.Duration
	// MaxParallelTools caps the fan-out width of one decision's tool calls.
	MaxParallelTools int
	// TurnBufferSize sets channel buffering for streamed turns.
	TurnBufferSize int
	// ThreadStore keeps transcripts retrievable during and after runs.
	ThreadStore thread.Store
	// ArtifactStore backs FileBlock references produced by tools.
	ArtifactStore core.ArtifactStore
	// Resources builds the per-run resource manager.
	Resources ResourceFactory
	// Logger receives orchestration events.
	Logger logging.Logger
}

// Runner coordinates multi-agent runs: it owns the decision loop, dispatches
// tool calls, validates hand-offs against the agency graph, and persists
// threads. Public methods are safe for concurrent use.
type Runner struct {
	graph  *handoff.Graph
	agents map[string]*agent.Descriptor

	maxTurns         int
	toolTimeout      time.Duration
	runTimeout       time.Duration
	maxParallelTools int
	turnBufferSize   int

	threads      thread.Store
	artifacts    core.ArtifactStore
	newResources ResourceFactory
	logger       logging.Logger

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

// New constructs a Runner over a validated graph and its descriptors. Every
// graph node must be backed by a descriptor of the same name.
func New(graph *handoff.Graph, descriptors []*agent.Descriptor, optFns ...func(o *Options)) (*Runner, error) {
	if graph == nil {
		return nil, core.NewConfigError("runner needs a handoff graph")
	}

	agents := make(map[string]*agent.Descriptor, len(descriptors))
	for _, d := range descriptors {
		agents[d.Name()] = d
	}

	for _, name := range graph.Agents() {
		if _, ok := agents[name]; !ok {
			return nil, core.NewConfigError("graph agent %q has no descriptor", name)
		}
	}

	opts := Options{
		MaxTurns:         20,
		ToolTimeout:      60 * time.Second,
		MaxParallelTools: 4,
		TurnBufferSize:   100,
		ThreadStore:      thread.NewInMemoryStore(),
		ArtifactStore:    artifact.NewInMemoryStore(),
		Resources:        func() core.ResourceManager { return resource.NewManager() },
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	// The initial user turn is emitted before the stream consumer exists.
	if opts.TurnBufferSize < 1 {
		opts.TurnBufferSize = 1
	}

	return &Runner{
		graph:            graph,
		agents:           agents,
		maxTurns:         opts.MaxTurns,
		toolTimeout:      opts.ToolTimeout,
		runTimeout:       opts.RunTimeout,
		maxParallelTools: opts.MaxParallelTools,
		turnBufferSize:   opts.TurnBufferSize,
		threads:          opts.ThreadStore,
		artifacts:        opts.ArtifactStore,
		newResources:     opts.Resources,
		logger:           opts.Logger,
		activeRuns:       make(map[string]context.CancelFunc),
	}, nil
}

// RunResult is the outcome of a completed synchronous run.
type RunResult struct {
	// RunID identifies the run in the thread store.
	RunID string
	// FinalAgent is the agent that produced the closing message.
	FinalAgent string
	// FinalMessage is the terminal agent message.
	FinalMessage core.AgentMessage
	// Turns is the full transcript.
	Turns []core.Turn
	// Decisions counts the model calls spent.
	Decisions int
}

// Run executes a run synchronously and returns the final agent message plus
// the transcript. On budget or model errors the partial thread remains
// retrievable via Thread(runID); the error wraps the run ID for that purpose.
func (r *Runner) Run(ctx context.Context, userMsg core.UserMessage) (*RunResult, error) {
	ru, err := r.prepare(ctx, userMsg, nil)
	if err != nil {
		return nil, err
	}
	defer r.finish(ru)

	final, decisions, err := r.loop(ru)
	if err != nil {
		return nil, err
	}

	return &RunResult{
		RunID:        ru.id,
		FinalAgent:   final.Agent,
		FinalMessage: final,
		Turns:        ru.thread.Snapshot(),
		Decisions:    decisions,
	}, nil
}

// StartRun starts an asynchronous run. Turns are streamed in thread order as
// they are recorded; the error channel delivers at most one terminal error.
// Both channels close when the run ends.
func (r *Runner) StartRun(ctx context.Context, userMsg core.UserMessage) (string, <-chan core.Turn, <-chan error, error) {
	turnsCh := make(chan core.Turn, r.turnBufferSize)
	errorsCh := make(chan error, 1)

	ru, err := r.prepare(ctx, userMsg, turnsCh)
	if err != nil {
		return "", nil, nil, err
	}

	go func() {
		defer func() {
			r.finish(ru)
			close(turnsCh)
			close(errorsCh)
		}()

		if _, _, err := r.loop(ru); err != nil {
			errorsCh <- err
		}
	}()

	return ru.id, turnsCh, errorsCh, nil
}

// Cancel cancels a running run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.RLock()
	cancel, exists := r.activeRuns[runID]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}

// Thread returns the transcript of a current or past run.
func (r *Runner) Thread(runID string) (*core.Thread, error) {
	return r.threads.Get(runID)
}

// run bundles the per-run state threaded through the orchestrator.
type run struct {
	id        string
	rc        *core.RunContext
	thread    *core.Thread
	resources core.ResourceManager
	cancel    context.CancelFunc

	// turns receives every recorded turn when streaming; nil for sync runs.
	turns chan<- core.Turn
}

// emit records a turn on the thread and forwards it to the stream (if any).
func (ru *run) emit(turn core.Turn) {
	ru.thread.Append(turn)

	if ru.turns == nil {
		return
	}

	select {
	case ru.turns <- turn:
	case <-ru.rc.Done():
	}
}

func (r *Runner) prepare(ctx context.Context, userMsg core.UserMessage, turns chan<- core.Turn) (*run, error) {
	if len(userMsg.Blocks) == 0 {
		return nil, &core.ValidationError{Field: "user_message", Message: "must carry at least one block"}
	}

	runID := core.NewID()

	th := core.NewThread()
	if err := r.threads.Put(runID, th); err != nil {
		return nil, fmt.Errorf("register thread: %w", err)
	}

	var cancel context.CancelFunc
	if r.runTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.runTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	resources := r.newResources()
	rc := core.NewRunContext(ctx, runID, th, resources, r.artifacts, r.logger)

	ru := &run{
		id:        runID,
		rc:        rc,
		thread:    th,
		resources: resources,
		cancel:    cancel,
		turns:     turns,
	}

	ru.emit(userMsg)

	r.logger.Info("run.start", "run_id", runID, "entry", r.graph.Entry())

	return ru, nil
}

// finish releases run resources and deregisters the run. It executes on
// every exit path, including cancellation and budget errors.
func (r *Runner) finish(ru *run) {
	if err := ru.resources.ReleaseAll(); err != nil {
		r.logger.Warn("run.resources.release_failed", "run_id", ru.id, "error", err)
	}

	ru.cancel()

	r.mu.Lock()
	delete(r.activeRuns, ru.id)
	r.mu.Unlock()

	r.logger.Info("run.end", "run_id", ru.id, "turns", ru.thread.Len())
}
