package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThread_AppendOrderAndSnapshot(t *testing.T) {
	th := NewThread()
	th.Append(NewUserTextMessage("build and test a button"))
	th.Append(NewToolCall("Coder", "write_file", "fc1", map[string]any{"path": "button.tsx"}, Text("ok"), nil, 0))
	th.Append(NewHandoffEvent("Coder", "QA", "needs verification"))
	th.Append(NewAgentMessage("QA", []Block{TextBlock{Text: "looks good"}, ImageBlock{URI: "https://example.com/s.png", Detail: ImageDetailAuto}}))

	snap := th.Snapshot()
	require.Len(t, snap, 4)
	assert.IsType(t, UserMessage{}, snap[0])
	assert.IsType(t, ToolCall{}, snap[1])
	assert.IsType(t, HandoffEvent{}, snap[2])
	assert.IsType(t, AgentMessage{}, snap[3])

	// Snapshot is a copy; appending afterwards must not grow it.
	th.Append(NewUserTextMessage("more"))
	assert.Len(t, snap, 4)
	assert.Equal(t, 5, th.Len())
}

func TestThread_JSONRoundTrip(t *testing.T) {
	th := NewThread()
	th.Append(NewUserTextMessage("hello"))
	th.Append(NewToolCall("Coder", "run_tests", "fc1", map[string]any{"suite": "unit"}, nil, errors.New("tool timed out"), 3*time.Second))
	th.Append(NewHandoffEvent("Coder", "QA", ""))
	th.Append(NewAgentMessage("QA", []Block{
		TextBlock{Text: "screenshot:"},
		ImageBlock{Data: []byte{0x89, 0x50, 0x4e, 0x47}, MIMEType: "image/png", Detail: ImageDetailHigh},
		FileBlock{Ref: "artifact-123", Filename: "report.html", MIMEType: "text/html"},
	}))

	data, err := MarshalTurns(th.Snapshot())
	require.NoError(t, err)

	restored, err := UnmarshalTurns(data)
	require.NoError(t, err)
	assert.Equal(t, th.Snapshot(), restored)

	// Idempotent: a second round trip is byte-identical.
	data2, err := MarshalTurns(restored)
	require.NoError(t, err)
	assert.Equal(t, data, data2)
}

func TestThread_ProjectForSummarizesForeignToolCalls(t *testing.T) {
	th := NewThread()
	th.Append(NewUserTextMessage("task"))
	th.Append(NewToolCall("Coder", "write_file", "fc1", nil, Text("done"), nil, 0))
	th.Append(NewToolCall("Coder", "run_tests", "fc2", nil, nil, errors.New("boom"), 0))
	th.Append(NewHandoffEvent("Coder", "QA", "verify"))

	projected := th.ProjectFor("QA")
	require.Len(t, projected, 4)

	// User message and handoff carried verbatim.
	assert.Equal(t, th.Snapshot()[0], projected[0])
	assert.Equal(t, th.Snapshot()[3], projected[3])

	// Coder's tool calls are collapsed to one-line notes, keeping identity.
	note, ok := projected[1].(AgentMessage)
	require.True(t, ok)
	assert.Equal(t, "Coder", note.Agent)
	assert.Equal(t, th.Snapshot()[1].TurnID(), note.TurnID())
	assert.Contains(t, JoinText(note.Blocks), `ran tool "write_file"`)

	failed, ok := projected[2].(AgentMessage)
	require.True(t, ok)
	assert.Contains(t, JoinText(failed.Blocks), "error: boom")

	// The calling agent's own tool calls are replayed in full.
	own := th.ProjectFor("Coder")
	assert.IsType(t, ToolCall{}, own[1])
	assert.IsType(t, ToolCall{}, own[2])
}

func TestBlocks_JSONRoundTripPreservesOrder(t *testing.T) {
	blocks := []Block{
		TextBlock{Text: "label"},
		ImageBlock{URI: "https://example.com/a.png", Detail: ImageDetailAuto},
		TextBlock{Text: "attachment"},
		FileBlock{Data: []byte("csv,data"), Filename: "data.csv", MIMEType: "text/csv"},
	}

	data, err := MarshalBlocks(blocks)
	require.NoError(t, err)

	restored, err := UnmarshalBlocks(data)
	require.NoError(t, err)
	assert.Equal(t, blocks, restored)
}

func TestJoinText(t *testing.T) {
	blocks := []Block{
		TextBlock{Text: "a"},
		ImageBlock{URI: "x"},
		TextBlock{Text: "b"},
	}
	assert.Equal(t, "a\nb", JoinText(blocks))
	assert.Equal(t, "", JoinText(nil))
}
