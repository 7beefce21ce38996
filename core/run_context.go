package core

import (
	"context"

	"github.com/hupe1980/agencykit/logging"
)

// RunContext carries the execution scope of one run: the ambient
// cancellation context, identifiers, the append-only thread, and the shared
// services (resources, artifacts, logging) tools may touch. It is created by
// the orchestrator at run start and owned by it for the run's duration.
type RunContext struct {
	Context   context.Context
	RunID     string
	Thread    *Thread
	Resources ResourceManager
	Artifacts ArtifactStore

	*loggerAdapter
}

// NewRunContext constructs a RunContext bound to the given services.
func NewRunContext(
	ctx context.Context,
	runID string,
	thread *Thread,
	resources ResourceManager,
	artifacts ArtifactStore,
	logger logging.Logger,
) *RunContext {
	return &RunContext{
		Context:       ctx,
		RunID:         runID,
		Thread:        thread,
		Resources:     resources,
		Artifacts:     artifacts,
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// WithContext returns a shallow copy of the run context bound to ctx. The
// orchestrator uses it to apply per-call deadlines without disturbing the
// run-wide context.
func (rc *RunContext) WithContext(ctx context.Context) *RunContext {
	clone := *rc
	clone.Context = ctx

	return &clone
}

// Done returns a channel closed when the run is cancelled or times out.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }
