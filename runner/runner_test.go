package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agencykit/agent"
	"github.com/hupe1980/agencykit/core"
	"github.com/hupe1980/agencykit/handoff"
	"github.com/hupe1980/agencykit/model"
	"github.com/hupe1980/agencykit/tool"
)

func newDescriptor(t *testing.T, name string, m model.Model, optFns ...func(o *agent.DescriptorOptions)) *agent.Descriptor {
	t.Helper()

	d, err := agent.NewDescriptor(name, m, optFns...)
	require.NoError(t, err)

	return d
}

func newRunner(t *testing.T, entry string, descriptors []*agent.Descriptor, optFns ...func(o *Options)) *Runner {
	t.Helper()

	g, err := handoff.NewGraph(entry, descriptors...)
	require.NoError(t, err)

	r, err := New(g, descriptors, optFns...)
	require.NoError(t, err)

	return r
}

func textTool(name string, fn func(tc *core.ToolContext, args map[string]any) ([]core.Block, error)) tool.Tool {
	return tool.NewFunctionTool(name, name,
		map[string]any{"type": "object", "properties": map[string]any{}}, fn)
}

func TestRunner_CoderHandsOffToQA(t *testing.T) {
	coderModel := model.NewMockModel("coder-model").Enqueue(
		&model.Decision{ToolCalls: []model.ToolCallRequest{{CallID: "fc1", Name: "run_tests", Args: map[string]any{}}}},
		&model.Decision{Handoff: &model.HandoffRequest{Target: "QA", Reason: "verify in browser"}},
	)
	qaModel := model.NewMockModel("qa-model").Enqueue(
		&model.Decision{Message: []core.Block{
			core.TextBlock{Text: "Looks good."},
			core.ImageBlock{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"},
		}},
	)

	coder := newDescriptor(t, "Coder", coderModel, func(o *agent.DescriptorOptions) {
		o.HandoffTargets = []string{"QA"}
		o.Tools = []tool.Tool{textTool("run_tests", func(_ *core.ToolContext, _ map[string]any) ([]core.Block, error) {
			return core.Text("all tests passed"), nil
		})}
	})
	qa := newDescriptor(t, "QA", qaModel)

	r := newRunner(t, "Coder", []*agent.Descriptor{coder, qa})

	res, err := r.Run(context.Background(), core.NewUserTextMessage("ship the feature"))
	require.NoError(t, err)

	assert.Equal(t, "QA", res.FinalAgent)
	require.Len(t, res.Turns, 4)

	_, ok := res.Turns[0].(core.UserMessage)
	assert.True(t, ok)

	tc, ok := res.Turns[1].(core.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "Coder", tc.Agent)
	assert.Equal(t, "run_tests", tc.Tool)
	assert.False(t, tc.Failed())

	ho, ok := res.Turns[2].(core.HandoffEvent)
	require.True(t, ok)
	assert.Equal(t, "Coder", ho.From)
	assert.Equal(t, "QA", ho.To)

	am, ok := res.Turns[3].(core.AgentMessage)
	require.True(t, ok)
	assert.Equal(t, "QA", am.Agent)
	require.Len(t, am.Blocks, 2)
	assert.IsType(t, core.TextBlock{}, am.Blocks[0])
	assert.IsType(t, core.ImageBlock{}, am.Blocks[1])

	// The QA model saw the handoff projection, not raw foreign tool calls.
	qaReqs := qaModel.Requests()
	require.Len(t, qaReqs, 1)
	for _, turn := range qaReqs[0].History {
		if tc, ok := turn.(core.ToolCall); ok {
			assert.Equal(t, "QA", tc.Agent)
		}
	}
}

func TestRunner_ParallelToolResultsKeepRequestOrder(t *testing.T) {
	m := model.NewMockModel("m").Enqueue(
		&model.Decision{ToolCalls: []model.ToolCallRequest{
			{CallID: "a", Name: "alpha"},
			{CallID: "b", Name: "bravo"},
			{CallID: "c", Name: "charlie"},
		}},
		&model.Decision{Message: core.Text("done")},
	)

	sleepTool := func(name string, d time.Duration) tool.Tool {
		return textTool(name, func(tc *core.ToolContext, _ map[string]any) ([]core.Block, error) {
			select {
			case <-time.After(d):
				return core.Text(name), nil
			case <-tc.Context().Done():
				return nil, tc.Context().Err()
			}
		})
	}

	d := newDescriptor(t, "Worker", m, func(o *agent.DescriptorOptions) {
		o.SupportsConcurrentTools = true
		o.Tools = []tool.Tool{
			sleepTool("alpha", 60*time.Millisecond),
			sleepTool("bravo", time.Millisecond),
			sleepTool("charlie", 30*time.Millisecond),
		}
	})

	r := newRunner(t, "Worker", []*agent.Descriptor{d})

	start := time.Now()
	res, err := r.Run(context.Background(), core.NewUserTextMessage("go"))
	require.NoError(t, err)

	// Recorded in request order even though bravo finished first.
	var order []string
	for _, turn := range res.Turns {
		if tc, ok := turn.(core.ToolCall); ok {
			order = append(order, tc.Tool)
		}
	}
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, order)

	// Parallel dispatch: total well under the 91ms sequential sum.
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestRunner_ConflictingToolsRunSequentially(t *testing.T) {
	running := make(chan string, 4)

	browserTool := func(name string) tool.Tool {
		return tool.NewFunctionTool(name, name,
			map[string]any{"type": "object", "properties": map[string]any{}},
			func(_ *core.ToolContext, _ map[string]any) ([]core.Block, error) {
				running <- name
				time.Sleep(5 * time.Millisecond)
				return core.Text(name), nil
			},
			func(o *tool.FunctionToolOptions) {
				o.SideEffects = []tool.SideEffect{{Class: tool.EffectResource, Resource: "browser"}}
			},
		)
	}

	m := model.NewMockModel("m").Enqueue(
		&model.Decision{ToolCalls: []model.ToolCallRequest{
			{CallID: "a", Name: "navigate"},
			{CallID: "b", Name: "screenshot"},
		}},
		&model.Decision{Message: core.Text("done")},
	)

	d := newDescriptor(t, "QA", m, func(o *agent.DescriptorOptions) {
		o.SupportsConcurrentTools = true
		o.Tools = []tool.Tool{browserTool("navigate"), browserTool("screenshot")}
	})

	r := newRunner(t, "QA", []*agent.Descriptor{d})

	_, err := r.Run(context.Background(), core.NewUserTextMessage("go"))
	require.NoError(t, err)

	// Sequential dispatch in request order.
	assert.Equal(t, "navigate", <-running)
	assert.Equal(t, "screenshot", <-running)
}

func TestRunner_ToolTimeoutIsNotFatal(t *testing.T) {
	m := model.NewMockModel("m").Enqueue(
		&model.Decision{ToolCalls: []model.ToolCallRequest{{CallID: "slow", Name: "slow"}}},
		&model.Decision{Message: core.Text("recovered")},
	)

	d := newDescriptor(t, "Worker", m, func(o *agent.DescriptorOptions) {
		o.Tools = []tool.Tool{textTool("slow", func(tc *core.ToolContext, _ map[string]any) ([]core.Block, error) {
			<-tc.Context().Done()
			return nil, tc.Context().Err()
		})}
	})

	r := newRunner(t, "Worker", []*agent.Descriptor{d}, func(o *Options) {
		o.ToolTimeout = 20 * time.Millisecond
	})

	res, err := r.Run(context.Background(), core.NewUserTextMessage("go"))
	require.NoError(t, err)

	tc, ok := res.Turns[1].(core.ToolCall)
	require.True(t, ok)
	assert.True(t, tc.Failed())
	assert.Contains(t, tc.Err, "timed out")

	assert.Equal(t, "recovered", core.JoinText(res.FinalMessage.Blocks))
}

func TestRunner_UnknownToolRecordsValidationError(t *testing.T) {
	m := model.NewMockModel("m").Enqueue(
		&model.Decision{ToolCalls: []model.ToolCallRequest{{CallID: "x", Name: "no_such_tool"}}},
		&model.Decision{Message: core.Text("done")},
	)

	d := newDescriptor(t, "Worker", m)
	r := newRunner(t, "Worker", []*agent.Descriptor{d})

	res, err := r.Run(context.Background(), core.NewUserTextMessage("go"))
	require.NoError(t, err)

	tc, ok := res.Turns[1].(core.ToolCall)
	require.True(t, ok)
	assert.True(t, tc.Failed())
	assert.Contains(t, tc.Err, "unknown tool")
}

func TestRunner_ToolPanicIsRecovered(t *testing.T) {
	m := model.NewMockModel("m").Enqueue(
		&model.Decision{ToolCalls: []model.ToolCallRequest{{CallID: "p", Name: "boom"}}},
		&model.Decision{Message: core.Text("done")},
	)

	d := newDescriptor(t, "Worker", m, func(o *agent.DescriptorOptions) {
		o.Tools = []tool.Tool{textTool("boom", func(_ *core.ToolContext, _ map[string]any) ([]core.Block, error) {
			panic("kaput")
		})}
	})

	r := newRunner(t, "Worker", []*agent.Descriptor{d})

	res, err := r.Run(context.Background(), core.NewUserTextMessage("go"))
	require.NoError(t, err)

	tc, ok := res.Turns[1].(core.ToolCall)
	require.True(t, ok)
	assert.True(t, tc.Failed())
	assert.Contains(t, tc.Err, "panic")
}

func TestRunner_IllegalHandoffLeavesAgentActive(t *testing.T) {
	coderModel := model.NewMockModel("m").Enqueue(
		&model.Decision{Handoff: &model.HandoffRequest{Target: "DataAnalyst"}},
		&model.Decision{Message: core.Text("continuing myself")},
	)

	coder := newDescriptor(t, "Coder", coderModel, func(o *agent.DescriptorOptions) {
		o.HandoffTargets = []string{"QA"}
	})
	qa := newDescriptor(t, "QA", model.NewMockModel("qa"))

	r := newRunner(t, "Coder", []*agent.Descriptor{coder, qa})

	res, err := r.Run(context.Background(), core.NewUserTextMessage("go"))
	require.NoError(t, err)

	// No HandoffEvent was recorded; a corrective note was.
	var sawHandoff bool
	var sawCorrective bool
	for _, turn := range res.Turns {
		switch tt := turn.(type) {
		case core.HandoffEvent:
			sawHandoff = true
		case core.AgentMessage:
			if tt.Agent == orchestratorSource {
				sawCorrective = true
			}
		}
	}
	assert.False(t, sawHandoff)
	assert.True(t, sawCorrective)

	// The second decision still came from Coder.
	assert.Equal(t, "Coder", res.FinalAgent)
}

func TestRunner_HandoffDeferredBehindToolCalls(t *testing.T) {
	m := model.NewMockModel("m").Enqueue(
		&model.Decision{
			ToolCalls: []model.ToolCallRequest{{CallID: "t", Name: "probe"}},
			Handoff:   &model.HandoffRequest{Target: "QA"},
		},
		&model.Decision{Message: core.Text("done")},
	)

	coder := newDescriptor(t, "Coder", m, func(o *agent.DescriptorOptions) {
		o.HandoffTargets = []string{"QA"}
		o.Tools = []tool.Tool{textTool("probe", func(_ *core.ToolContext, _ map[string]any) ([]core.Block, error) {
			return core.Text("ok"), nil
		})}
	})
	qa := newDescriptor(t, "QA", model.NewMockModel("qa"))

	r := newRunner(t, "Coder", []*agent.Descriptor{coder, qa})

	res, err := r.Run(context.Background(), core.NewUserTextMessage("go"))
	require.NoError(t, err)

	var sawHandoff bool
	var deferredNote bool
	for _, turn := range res.Turns {
		switch tt := turn.(type) {
		case core.HandoffEvent:
			sawHandoff = true
		case core.AgentMessage:
			if tt.Agent == orchestratorSource {
				deferredNote = true
			}
		}
	}
	assert.False(t, sawHandoff)
	assert.True(t, deferredNote)
	assert.Equal(t, "Coder", res.FinalAgent)
}

func TestRunner_EmptyDecisionCostsATurn(t *testing.T) {
	m := model.NewMockModel("m").Enqueue(
		&model.Decision{},
		&model.Decision{Message: core.Text("done")},
	)

	d := newDescriptor(t, "Worker", m)
	r := newRunner(t, "Worker", []*agent.Descriptor{d})

	res, err := r.Run(context.Background(), core.NewUserTextMessage("go"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Decisions)

	am, ok := res.Turns[1].(core.AgentMessage)
	require.True(t, ok)
	assert.Equal(t, orchestratorSource, am.Agent)
}

func TestRunner_MaxTurnsBudget(t *testing.T) {
	m := model.NewMockModel("m").Enqueue(
		&model.Decision{},
		&model.Decision{},
		&model.Decision{},
	)

	d := newDescriptor(t, "Worker", m)
	r := newRunner(t, "Worker", []*agent.Descriptor{d}, func(o *Options) {
		o.MaxTurns = 2
	})

	_, err := r.Run(context.Background(), core.NewUserTextMessage("go"))

	var budgetErr *core.BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, 2, budgetErr.Turns)

	// The partial thread stays retrievable.
	th, thErr := r.Thread(budgetErr.RunID)
	require.NoError(t, thErr)
	assert.GreaterOrEqual(t, th.Len(), 3) // user turn + two corrective notes
}

func TestRunner_ModelErrorFailsRun(t *testing.T) {
	m := model.NewMockModel("m").FailWith(errors.New("provider down"))

	d := newDescriptor(t, "Worker", m)
	r := newRunner(t, "Worker", []*agent.Descriptor{d})

	_, err := r.Run(context.Background(), core.NewUserTextMessage("go"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")

	// The error carries the run ID, so the partial thread stays reachable.
	var runErr *core.RunError
	require.ErrorAs(t, err, &runErr)

	th, thErr := r.Thread(runErr.RunID)
	require.NoError(t, thErr)
	assert.Equal(t, 1, th.Len()) // the user turn
}

func TestRunner_RunTimeoutBudget(t *testing.T) {
	bm := &blockingModel{started: make(chan struct{})}

	d := newDescriptor(t, "Worker", bm)
	r := newRunner(t, "Worker", []*agent.Descriptor{d}, func(o *Options) {
		o.RunTimeout = 30 * time.Millisecond
	})

	_, err := r.Run(context.Background(), core.NewUserTextMessage("go"))

	var budgetErr *core.BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.Zero(t, budgetErr.MaxTurns)
	assert.Greater(t, budgetErr.Elapsed, time.Duration(0))
	assert.Contains(t, budgetErr.Error(), "time budget")

	th, thErr := r.Thread(budgetErr.RunID)
	require.NoError(t, thErr)
	assert.GreaterOrEqual(t, th.Len(), 1)
}

func TestRunner_RunTimeoutNotBlamedOnTool(t *testing.T) {
	m := model.NewMockModel("m").Enqueue(
		&model.Decision{ToolCalls: []model.ToolCallRequest{{CallID: "t", Name: "slow"}}},
	)

	d := newDescriptor(t, "Worker", m, func(o *agent.DescriptorOptions) {
		o.Tools = []tool.Tool{textTool("slow", func(tc *core.ToolContext, _ map[string]any) ([]core.Block, error) {
			<-tc.Context().Done()
			return nil, tc.Context().Err()
		})}
	})

	r := newRunner(t, "Worker", []*agent.Descriptor{d}, func(o *Options) {
		o.RunTimeout = 30 * time.Millisecond
		o.ToolTimeout = time.Minute
	})

	_, err := r.Run(context.Background(), core.NewUserTextMessage("go"))

	var budgetErr *core.BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)

	th, thErr := r.Thread(budgetErr.RunID)
	require.NoError(t, thErr)

	// The interrupted tool call records the run deadline, not a per-call
	// timeout that never elapsed.
	var tc core.ToolCall
	for _, turn := range th.Snapshot() {
		if c, ok := turn.(core.ToolCall); ok {
			tc = c
		}
	}
	require.True(t, tc.Failed())
	assert.NotContains(t, tc.Err, "timed out after")
}

// blockingModel parks in Decide until its context is cancelled.
type blockingModel struct {
	started chan struct{}
}

func (b *blockingModel) Decide(ctx context.Context, _ model.Request) (*model.Decision, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingModel) Info() model.Info {
	return model.Info{Name: "blocking", Provider: "mock", SupportsTools: true}
}

func TestRunner_CancelStopsRun(t *testing.T) {
	bm := &blockingModel{started: make(chan struct{})}

	d := newDescriptor(t, "Worker", bm)
	r := newRunner(t, "Worker", []*agent.Descriptor{d})

	runID, turns, errs, err := r.StartRun(context.Background(), core.NewUserTextMessage("go"))
	require.NoError(t, err)

	<-bm.started
	require.NoError(t, r.Cancel(runID))

	for range turns {
	}

	runErr := <-errs
	require.Error(t, runErr)
	assert.ErrorIs(t, runErr, context.Canceled)

	// Cancelled runs are deregistered.
	assert.Error(t, r.Cancel(runID))
}

func TestRunner_StartRunStreamsTurnsInOrder(t *testing.T) {
	m := model.NewMockModel("m").Enqueue(
		&model.Decision{ToolCalls: []model.ToolCallRequest{{CallID: "t", Name: "probe"}}},
		&model.Decision{Message: core.Text("done")},
	)

	d := newDescriptor(t, "Worker", m, func(o *agent.DescriptorOptions) {
		o.Tools = []tool.Tool{textTool("probe", func(_ *core.ToolContext, _ map[string]any) ([]core.Block, error) {
			return core.Text("ok"), nil
		})}
	})

	r := newRunner(t, "Worker", []*agent.Descriptor{d})

	runID, turns, errs, err := r.StartRun(context.Background(), core.NewUserTextMessage("go"))
	require.NoError(t, err)

	var streamed []core.Turn
	for turn := range turns {
		streamed = append(streamed, turn)
	}
	require.NoError(t, <-errs)

	th, err := r.Thread(runID)
	require.NoError(t, err)
	assert.Equal(t, th.Snapshot(), streamed)

	require.Len(t, streamed, 3)
	assert.IsType(t, core.UserMessage{}, streamed[0])
	assert.IsType(t, core.ToolCall{}, streamed[1])
	assert.IsType(t, core.AgentMessage{}, streamed[2])
}

func TestRunner_RejectsEmptyUserMessage(t *testing.T) {
	d := newDescriptor(t, "Worker", model.NewMockModel("m"))
	r := newRunner(t, "Worker", []*agent.Descriptor{d})

	_, err := r.Run(context.Background(), core.UserMessage{})

	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)
}
