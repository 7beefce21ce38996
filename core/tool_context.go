package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/agencykit/logging"
)

// ToolContext provides a constrained, auditable surface for tool
// implementations invoked during a run. It scopes the tool to its run, the
// calling agent and the originating call ID, and exposes the shared session
// resources and artifact store without handing out the whole run state.
type ToolContext struct {
	runCtx *RunContext
	agent  string
	callID string

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a parent RunContext,
// the calling agent and a unique call ID.
func NewToolContext(runCtx *RunContext, agent, callID string) *ToolContext {
	return &ToolContext{
		runCtx:        runCtx,
		agent:         agent,
		callID:        callID,
		loggerAdapter: newLoggerAdapter(runCtx.Logger()),
	}
}

// Context returns the context governing this tool invocation. Tools must
// check it and exit promptly on cancellation.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// RunID returns the run this invocation belongs to.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

// AgentName returns the agent on whose behalf the tool runs.
func (tc *ToolContext) AgentName() string { return tc.agent }

// CallID returns the identifier correlating the model's call request with
// the recorded ToolCall turn.
func (tc *ToolContext) CallID() string { return tc.callID }

// Logger returns the logger for this invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// AcquireResource returns the run-scoped handle for kind, initializing it on
// first demand. Access serialization for non-thread-safe handles is the
// caller's concern; tools declaring the same resource kind are never
// dispatched concurrently.
func (tc *ToolContext) AcquireResource(kind string) (Handle, error) {
	if tc.runCtx.Resources == nil {
		return nil, fmt.Errorf("resource manager not configured")
	}
	return tc.runCtx.Resources.Acquire(tc.runCtx.Context, kind)
}

// SaveArtifact persists bytes in the run's artifact store and returns a
// FileBlock carrying the opaque reference.
func (tc *ToolContext) SaveArtifact(filename, mimeType string, data []byte) (FileBlock, error) {
	if tc.runCtx.Artifacts == nil {
		return FileBlock{}, fmt.Errorf("artifact store not configured")
	}
	id := NewID()
	if err := tc.runCtx.Artifacts.Save(tc.RunID(), id, data); err != nil {
		return FileBlock{}, err
	}
	tc.LogDebug("tool.artifact.saved", "run_id", tc.RunID(), "artifact_id", id, "bytes", len(data))
	return FileBlock{Ref: id, Filename: filename, MIMEType: mimeType}, nil
}

// LoadArtifact retrieves previously saved artifact bytes by reference.
func (tc *ToolContext) LoadArtifact(ref string) ([]byte, error) {
	if tc.runCtx.Artifacts == nil {
		return nil, fmt.Errorf("artifact store not configured")
	}
	return tc.runCtx.Artifacts.Get(tc.RunID(), ref)
}

// History returns a snapshot of the thread so far. Tools may read but never
// mutate it.
func (tc *ToolContext) History() []Turn {
	if tc.runCtx.Thread == nil {
		return nil
	}
	return tc.runCtx.Thread.Snapshot()
}
