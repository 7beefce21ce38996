package core

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewID generates a unique identifier for turns, runs and tool calls.
func NewID() string { return uuid.NewString() }

// Turn is one atomic entry in a Thread. Concrete turn types implement the
// unexported isTurn marker enabling a closed set. Turns are immutable after
// construction.
type Turn interface {
	isTurn()
	// TurnID returns the unique identifier assigned at construction.
	TurnID() string
	// When returns the UTC creation timestamp.
	When() time.Time
}

// turnMeta carries identity shared by all turn variants.
type turnMeta struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func newTurnMeta() turnMeta {
	return turnMeta{ID: NewID(), Timestamp: time.Now().UTC()}
}

func (m turnMeta) TurnID() string  { return m.ID }
func (m turnMeta) When() time.Time { return m.Timestamp }

// UserMessage is input supplied by the caller at the start of a run.
type UserMessage struct {
	turnMeta
	Blocks []Block `json:"blocks"`
}

func (UserMessage) isTurn() {}

// NewUserMessage constructs a user turn from ordered blocks.
func NewUserMessage(blocks []Block) UserMessage {
	return UserMessage{turnMeta: newTurnMeta(), Blocks: blocks}
}

// NewUserTextMessage constructs a user turn from plain text.
func NewUserTextMessage(text string) UserMessage {
	return NewUserMessage(Text(text))
}

// AgentMessage is a message authored by an agent: a final response, an
// intermediate note, or an orchestrator-injected corrective note addressed
// to the agent itself.
type AgentMessage struct {
	turnMeta
	Agent  string  `json:"agent"`
	Blocks []Block `json:"blocks"`
}

func (AgentMessage) isTurn() {}

// NewAgentMessage constructs an agent-authored turn.
func NewAgentMessage(agent string, blocks []Block) AgentMessage {
	return AgentMessage{turnMeta: newTurnMeta(), Agent: agent, Blocks: blocks}
}

// ToolCall records one tool invocation: the request, its ordered result
// blocks, and the error (if any) as data. Exactly one ToolCall turn is
// appended per dispatched call, success or failure.
type ToolCall struct {
	turnMeta
	Agent   string         `json:"agent"`
	Tool    string         `json:"tool"`
	CallID  string         `json:"call_id"`
	Args    map[string]any `json:"args,omitempty"`
	Result  []Block        `json:"result,omitempty"`
	Err     string         `json:"error,omitempty"`
	Elapsed time.Duration  `json:"elapsed,omitempty"`
}

func (ToolCall) isTurn() {}

// NewToolCall constructs a tool call record. A non-nil err is carried as its
// message so downstream reasoning sees the failure as content.
func NewToolCall(agent, tool, callID string, args map[string]any, result []Block, err error, elapsed time.Duration) ToolCall {
	tc := ToolCall{
		turnMeta: newTurnMeta(),
		Agent:    agent,
		Tool:     tool,
		CallID:   callID,
		Args:     args,
		Result:   result,
		Elapsed:  elapsed,
	}
	if err != nil {
		tc.Err = err.Error()
	}
	return tc
}

// Failed reports whether the call recorded an error.
func (t ToolCall) Failed() bool { return t.Err != "" }

// HandoffEvent records a validated transfer of control between agents.
type HandoffEvent struct {
	turnMeta
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

func (HandoffEvent) isTurn() {}

// NewHandoffEvent constructs a hand-off record.
func NewHandoffEvent(from, to, reason string) HandoffEvent {
	return HandoffEvent{turnMeta: newTurnMeta(), From: from, To: to, Reason: reason}
}

// Thread is the append-only ordered history of one run. It is mutated only
// by the orchestrator that owns the run; turns are never reordered or
// rewritten, giving a durable audit trail. Reads are safe for concurrent
// use.
type Thread struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewThread creates an empty thread.
func NewThread() *Thread { return &Thread{} }

// Append adds a turn to the end of the thread.
func (t *Thread) Append(turn Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turn)
}

// Len returns the number of turns.
func (t *Thread) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Snapshot returns a defensive copy of the ordered turn sequence.
func (t *Thread) Snapshot() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// ProjectFor returns the view of the thread a hand-off target receives.
// User messages, agent messages and hand-off events are carried verbatim.
// Tool calls of other agents are summarized into a single text line each so
// carried context stays bounded; the receiving agent's own prior tool calls
// are replayed in full.
func (t *Thread) ProjectFor(agent string) []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Turn, 0, len(t.turns))
	for _, turn := range t.turns {
		tc, ok := turn.(ToolCall)
		if !ok || tc.Agent == agent {
			out = append(out, turn)
			continue
		}
		out = append(out, summarizeToolCall(tc))
	}
	return out
}

// summarizeToolCall collapses a foreign tool call into a one-line note
// attributed to the calling agent. The original turn identity is kept so a
// projection never invents new IDs.
func summarizeToolCall(tc ToolCall) AgentMessage {
	var line string
	if tc.Failed() {
		line = fmt.Sprintf("[%s ran tool %q: error: %s]", tc.Agent, tc.Tool, tc.Err)
	} else {
		line = fmt.Sprintf("[%s ran tool %q: %d result block(s)]", tc.Agent, tc.Tool, len(tc.Result))
	}
	return AgentMessage{
		turnMeta: turnMeta{ID: tc.ID, Timestamp: tc.Timestamp},
		Agent:    tc.Agent,
		Blocks:   Text(line),
	}
}

// turnEnvelope is the wire form of a Turn with a type discriminator.
type turnEnvelope struct {
	Type string          `json:"type"`
	Turn json.RawMessage `json:"turn"`
}

const (
	turnTypeUser    = "user_message"
	turnTypeAgent   = "agent_message"
	turnTypeTool    = "tool_call"
	turnTypeHandoff = "handoff_event"
)

// userMessageJSON et al. mirror the turn variants with blocks pre-encoded,
// since Block is an interface and needs the envelope codec.
type userMessageJSON struct {
	turnMeta
	Blocks json.RawMessage `json:"blocks"`
}

type agentMessageJSON struct {
	turnMeta
	Agent  string          `json:"agent"`
	Blocks json.RawMessage `json:"blocks"`
}

type toolCallJSON struct {
	turnMeta
	Agent   string          `json:"agent"`
	Tool    string          `json:"tool"`
	CallID  string          `json:"call_id"`
	Args    map[string]any  `json:"args,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Err     string          `json:"error,omitempty"`
	Elapsed time.Duration   `json:"elapsed,omitempty"`
}

// MarshalTurns serializes an ordered turn sequence to JSON.
func MarshalTurns(turns []Turn) ([]byte, error) {
	envs := make([]turnEnvelope, 0, len(turns))
	for i, turn := range turns {
		env, err := marshalTurn(turn)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}
		envs = append(envs, env)
	}
	return json.Marshal(envs)
}

func marshalTurn(turn Turn) (turnEnvelope, error) {
	switch v := turn.(type) {
	case UserMessage:
		blocks, err := MarshalBlocks(v.Blocks)
		if err != nil {
			return turnEnvelope{}, err
		}
		raw, err := json.Marshal(userMessageJSON{turnMeta: v.turnMeta, Blocks: blocks})
		return turnEnvelope{Type: turnTypeUser, Turn: raw}, err
	case AgentMessage:
		blocks, err := MarshalBlocks(v.Blocks)
		if err != nil {
			return turnEnvelope{}, err
		}
		raw, err := json.Marshal(agentMessageJSON{turnMeta: v.turnMeta, Agent: v.Agent, Blocks: blocks})
		return turnEnvelope{Type: turnTypeAgent, Turn: raw}, err
	case ToolCall:
		var result json.RawMessage
		if v.Result != nil {
			blocks, err := MarshalBlocks(v.Result)
			if err != nil {
				return turnEnvelope{}, err
			}
			result = blocks
		}
		raw, err := json.Marshal(toolCallJSON{
			turnMeta: v.turnMeta,
			Agent:    v.Agent,
			Tool:     v.Tool,
			CallID:   v.CallID,
			Args:     v.Args,
			Result:   result,
			Err:      v.Err,
			Elapsed:  v.Elapsed,
		})
		return turnEnvelope{Type: turnTypeTool, Turn: raw}, err
	case HandoffEvent:
		raw, err := json.Marshal(v)
		return turnEnvelope{Type: turnTypeHandoff, Turn: raw}, err
	default:
		return turnEnvelope{}, fmt.Errorf("unknown turn type %T", turn)
	}
}

// UnmarshalTurns reconstructs the ordered turn sequence serialized by
// MarshalTurns. Round-tripping yields an identical sequence.
func UnmarshalTurns(data []byte) ([]Turn, error) {
	var envs []turnEnvelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return nil, err
	}
	turns := make([]Turn, 0, len(envs))
	for i, env := range envs {
		turn, err := unmarshalTurn(env)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func unmarshalTurn(env turnEnvelope) (Turn, error) {
	switch env.Type {
	case turnTypeUser:
		var v userMessageJSON
		if err := json.Unmarshal(env.Turn, &v); err != nil {
			return nil, err
		}
		blocks, err := UnmarshalBlocks(v.Blocks)
		if err != nil {
			return nil, err
		}
		return UserMessage{turnMeta: v.turnMeta, Blocks: blocks}, nil
	case turnTypeAgent:
		var v agentMessageJSON
		if err := json.Unmarshal(env.Turn, &v); err != nil {
			return nil, err
		}
		blocks, err := UnmarshalBlocks(v.Blocks)
		if err != nil {
			return nil, err
		}
		return AgentMessage{turnMeta: v.turnMeta, Agent: v.Agent, Blocks: blocks}, nil
	case turnTypeTool:
		var v toolCallJSON
		if err := json.Unmarshal(env.Turn, &v); err != nil {
			return nil, err
		}
		var result []Block
		if len(v.Result) > 0 {
			blocks, err := UnmarshalBlocks(v.Result)
			if err != nil {
				return nil, err
			}
			result = blocks
		}
		return ToolCall{
			turnMeta: v.turnMeta,
			Agent:    v.Agent,
			Tool:     v.Tool,
			CallID:   v.CallID,
			Args:     v.Args,
			Result:   result,
			Err:      v.Err,
			Elapsed:  v.Elapsed,
		}, nil
	case turnTypeHandoff:
		var v HandoffEvent
		if err := json.Unmarshal(env.Turn, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown turn type %q", env.Type)
	}
}
