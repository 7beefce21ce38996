package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/hupe1980/agencykit/agent"
	"github.com/hupe1980/agencykit/core"
	"github.com/hupe1980/agencykit/model"
	"github.com/hupe1980/agencykit/tool"
)

// orchestratorSource attributes corrective notes the orchestrator injects
// into the thread. Providers render them as attributed external input.
const orchestratorSource = "orchestrator"

// loop drives the decision cycle until a terminal agent message, a budget
// violation, cancellation, or a model error.
func (r *Runner) loop(ru *run) (core.AgentMessage, int, error) {
	active := r.graph.Entry()
	start := time.Now()

	for decisions := 0; ; decisions++ {
		if err := ru.rc.Err(); err != nil {
			return core.AgentMessage{}, decisions, r.terminal(ru, decisions, start, err)
		}

		if decisions >= r.maxTurns {
			return core.AgentMessage{}, decisions, &core.BudgetExceededError{
				RunID:    ru.id,
				Turns:    decisions,
				MaxTurns: r.maxTurns,
				Elapsed:  time.Since(start),
			}
		}

		desc := r.agents[active]

		decision, err := r.decide(ru, desc)
		if err != nil {
			return core.AgentMessage{}, decisions, r.terminal(ru, decisions, start, err)
		}

		var msg core.AgentMessage
		hasMessage := len(decision.Message) > 0
		if hasMessage {
			msg = core.NewAgentMessage(active, decision.Message)
			ru.emit(msg)
		}

		switch {
		case len(decision.ToolCalls) > 0:
			r.dispatchTools(ru, desc, decision.ToolCalls)

			// Tool calls win over a handoff requested in the same decision;
			// the agent sees its results first and may re-request the
			// handoff afterwards.
			if decision.Handoff != nil {
				ru.emit(r.corrective(fmt.Sprintf(
					"handoff to %q deferred until tool results resolve; re-request it if still needed",
					decision.Handoff.Target,
				)))
			}
		case decision.Handoff != nil:
			active = r.applyHandoff(ru, active, decision.Handoff)
		case hasMessage:
			// A plain message with nothing else ends the run.
			return msg, decisions + 1, nil
		default:
			ru.emit(r.corrective("the last decision was empty; respond with a message, call a tool, or hand off"))
		}
	}
}

// terminal classifies a loop-ending failure. A deadline that fired on the
// run context is the wall-clock budget, not a provider fault; everything
// else keeps the run ID attached so the partial thread stays reachable.
func (r *Runner) terminal(ru *run, decisions int, start time.Time, err error) error {
	if r.runTimeout > 0 && errors.Is(err, context.DeadlineExceeded) && ru.rc.Err() != nil {
		return &core.BudgetExceededError{
			RunID:   ru.id,
			Turns:   decisions,
			Elapsed: time.Since(start),
		}
	}

	return &core.RunError{RunID: ru.id, Err: err}
}

// decide builds the agent-scoped request and runs one model step.
func (r *Runner) decide(ru *run, desc *agent.Descriptor) (*model.Decision, error) {
	instructions, err := desc.ResolveInstruction(ru.rc)
	if err != nil {
		return nil, fmt.Errorf("resolve instruction for %s: %w", desc.Name(), err)
	}

	cfg := desc.ModelConfig()

	req := model.Request{
		Agent:           desc.Name(),
		Instructions:    instructions,
		History:         ru.thread.ProjectFor(desc.Name()),
		Tools:           desc.ToolDefinitions(),
		HandoffTargets:  r.graph.Targets(desc.Name()),
		ReasoningEffort: cfg.ReasoningEffort,
		Extras:          cfg.Extras,
	}

	start := time.Now()

	decision, err := cfg.Model.Decide(ru.rc.Context, req)
	if err != nil {
		r.logger.Error("run.decision.failed",
			"run_id", ru.id,
			"agent", desc.Name(),
			"elapsed", time.Since(start),
			"error", err,
		)

		return nil, fmt.Errorf("agent %s decision: %w", desc.Name(), err)
	}

	r.logger.Debug("run.decision",
		"run_id", ru.id,
		"agent", desc.Name(),
		"model", cfg.Model.Info().Name,
		"tool_calls", len(decision.ToolCalls),
		"handoff", decision.Handoff != nil,
		"elapsed", time.Since(start),
	)

	return decision, nil
}

// applyHandoff validates and applies a routing request. An illegal target
// leaves the active agent unchanged and records the rejection as a
// corrective note, so the model can recover on its next decision.
func (r *Runner) applyHandoff(ru *run, active string, req *model.HandoffRequest) string {
	legal := r.graph.IsLegal(active, req.Target)

	r.logger.Info("run.handoff",
		"run_id", ru.id,
		"from", active,
		"to", req.Target,
		"legal", legal,
	)

	if !legal {
		rejected := &core.HandoffRejectedError{From: active, To: req.Target}

		note := rejected.Error()
		if targets := r.graph.Targets(active); len(targets) > 0 {
			note += "; allowed targets: " + strings.Join(targets, ", ")
		}

		ru.emit(r.corrective(note))

		return active
	}

	ru.emit(core.NewHandoffEvent(active, req.Target, req.Reason))

	return req.Target
}

// dispatchTools executes one decision's tool calls and records exactly one
// ToolCall turn per request, in request order, regardless of completion
// order. Calls run in parallel only when the agent supports it and no two
// tools' declared side effects conflict.
func (r *Runner) dispatchTools(ru *run, desc *agent.Descriptor, calls []model.ToolCallRequest) {
	results := make([]core.ToolCall, len(calls))

	if r.canParallelize(desc, calls) {
		r.dispatchParallel(ru, desc, calls, results)
	} else {
		for i, call := range calls {
			results[i] = r.invokeTool(ru, desc, call)
		}
	}

	for _, tc := range results {
		ru.emit(tc)
	}
}

func (r *Runner) dispatchParallel(ru *run, desc *agent.Descriptor, calls []model.ToolCallRequest, results []core.ToolCall) {
	pool, err := ants.NewPool(r.maxParallelTools)
	if err != nil {
		r.logger.Warn("run.tools.pool_failed", "run_id", ru.id, "error", err)

		for i, call := range calls {
			results[i] = r.invokeTool(ru, desc, call)
		}

		return
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, call := range calls {
		i, call := i, call

		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			results[i] = r.invokeTool(ru, desc, call)
		}); err != nil {
			wg.Done()
			results[i] = core.NewToolCall(desc.Name(), call.Name, call.CallID, call.Args, nil,
				tool.NewToolError(call.Name, err.Error(), "EXECUTION_ERROR"), 0)
		}
	}
	wg.Wait()
}

// canParallelize reports whether all calls of one decision may run
// concurrently: the agent opted in, there is more than one call, and no two
// resolved tools conflict pairwise.
func (r *Runner) canParallelize(desc *agent.Descriptor, calls []model.ToolCallRequest) bool {
	if !desc.SupportsConcurrentTools() || len(calls) < 2 {
		return false
	}

	tools := make([]tool.Tool, 0, len(calls))
	for _, call := range calls {
		if t, ok := desc.Tool(call.Name); ok {
			tools = append(tools, t)
		}
	}

	for i := 0; i < len(tools); i++ {
		for j := i + 1; j < len(tools); j++ {
			if tool.Conflicting(tools[i], tools[j]) {
				return false
			}
		}
	}

	return true
}

// invokeTool runs a single tool call under its own deadline with panic
// recovery. Failures are recorded as data on the returned ToolCall turn,
// never surfaced as run errors.
func (r *Runner) invokeTool(ru *run, desc *agent.Descriptor, call model.ToolCallRequest) core.ToolCall {
	start := time.Now()

	t, ok := desc.Tool(call.Name)
	if !ok {
		vErr := &core.ValidationError{Field: "tool", Value: call.Name, Message: "unknown tool"}

		r.logger.Warn("run.tool.unknown", "run_id", ru.id, "agent", desc.Name(), "tool", call.Name)

		return core.NewToolCall(desc.Name(), call.Name, call.CallID, call.Args, nil, vErr, time.Since(start))
	}

	ctx, cancel := context.WithTimeout(ru.rc.Context, r.toolTimeout)
	defer cancel()

	toolCtx := core.NewToolContext(ru.rc.WithContext(ctx), desc.Name(), call.CallID)

	blocks, err := func() (blocks []core.Block, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = tool.NewToolError(call.Name, fmt.Sprintf("panic: %v", rec), "EXECUTION_ERROR")
			}
		}()

		return t.Call(toolCtx, call.Args)
	}()

	elapsed := time.Since(start)

	// Attribute the deadline to the per-call budget only while the run
	// context is still live; otherwise the run-level deadline expired and
	// the loop reports it as the exhausted time budget.
	if err != nil && ctx.Err() == context.DeadlineExceeded && ru.rc.Err() == nil {
		err = tool.NewToolError(call.Name, fmt.Sprintf("timed out after %s", r.toolTimeout), "TIMEOUT")
		blocks = nil
	}

	r.logger.Debug("run.tool.done",
		"run_id", ru.id,
		"agent", desc.Name(),
		"tool", call.Name,
		"call_id", call.CallID,
		"elapsed", elapsed,
		"success", err == nil,
	)

	return core.NewToolCall(desc.Name(), call.Name, call.CallID, call.Args, blocks, err, elapsed)
}

func (r *Runner) corrective(text string) core.AgentMessage {
	return core.NewAgentMessage(orchestratorSource, core.Text(text))
}
