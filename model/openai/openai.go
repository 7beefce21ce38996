// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API (including function/tool calling and multimodal
// inputs). It adapts AgencyKit's normalized Request/Decision structures into
// the SDK's message format and back.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/hupe1980/agencykit/core"
	"github.com/hupe1980/agencykit/model"
)

// Options configure the OpenAI model adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Decide implements model.Model. It runs one non-streaming chat completion
// and normalizes the choice into a Decision, folding a call to the synthetic
// routing function into Decision.Handoff.
func (m *Model) Decide(ctx context.Context, req model.Request) (*model.Decision, error) {
	params, err := m.buildParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %w", model.ErrNoDecision)
	}

	msg := resp.Choices[0].Message

	decision := &model.Decision{}
	if msg.Content != "" {
		decision.Message = core.Text(msg.Content)
	}

	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("openai: malformed arguments for %s: %w", tc.Function.Name, err)
			}
		}

		if tc.Function.Name == model.HandoffFunctionName {
			if decision.Handoff == nil {
				decision.Handoff = handoffFromArgs(args)
			}

			continue
		}

		decision.ToolCalls = append(decision.ToolCalls, model.ToolCallRequest{
			CallID: tc.ID,
			Name:   tc.Function.Name,
			Args:   args,
		})
	}

	decision.Usage = &model.TokenUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}

	return decision, nil
}

func handoffFromArgs(args map[string]any) *model.HandoffRequest {
	target, _ := args["target"].(string)
	reason, _ := args["reason"].(string)

	return &model.HandoffRequest{Target: target, Reason: reason}
}

// buildParams assembles the OpenAI request parameters including tool
// definitions and the synthetic routing function.
func (m *Model) buildParams(req model.Request) (openai.ChatCompletionNewParams, error) {
	messages, err := buildMessages(req)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}

	if req.ReasoningEffort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(req.ReasoningEffort)
	}

	defs := req.Tools
	if len(req.HandoffTargets) > 0 {
		defs = append(defs, model.HandoffToolDefinition(req.HandoffTargets))
	}

	if len(defs) == 0 {
		return params, nil
	}

	tools := make([]openai.ChatCompletionToolParam, len(defs))
	for i, def := range defs {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  def.Parameters,
			},
		}
	}
	params.Tools = tools

	return params, nil
}

// buildMessages converts the agent-scoped history into OpenAI chat messages.
// The deciding agent's own turns map to assistant / tool messages; peer
// agents' turns are rendered as attributed user messages so the model sees
// them as external input.
func buildMessages(req model.Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	var messages []openai.ChatCompletionMessageParamUnion

	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}

	for _, turn := range req.History {
		switch t := turn.(type) {
		case core.UserMessage:
			messages = append(messages, userMessage("", t.Blocks))
		case core.AgentMessage:
			if t.Agent == req.Agent {
				messages = append(messages, openai.AssistantMessage(core.JoinText(t.Blocks)))
				continue
			}

			messages = append(messages, userMessage(t.Agent, t.Blocks))
		case core.ToolCall:
			if t.Agent != req.Agent {
				// Foreign tool calls are normally summarized upstream.
				messages = append(messages, openai.UserMessage(fmt.Sprintf("[%s ran tool %q]", t.Agent, t.Tool)))
				continue
			}

			own, err := toolCallMessages(t)
			if err != nil {
				return nil, err
			}

			messages = append(messages, own...)
		case core.HandoffEvent:
			messages = append(messages, openai.UserMessage(handoffNote(t)))
		}
	}

	return messages, nil
}

func handoffNote(t core.HandoffEvent) string {
	if t.Reason != "" {
		return fmt.Sprintf("[conversation handed off from %s to %s: %s]", t.From, t.To, t.Reason)
	}

	return fmt.Sprintf("[conversation handed off from %s to %s]", t.From, t.To)
}

// toolCallMessages renders one of the agent's own tool calls as the
// assistant tool-call message plus the matching tool result message. Image
// blocks in the result are re-delivered as a follow-up user message because
// the tool role only carries text.
func toolCallMessages(t core.ToolCall) ([]openai.ChatCompletionMessageParamUnion, error) {
	args, err := json.Marshal(t.Args)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal args for %s: %w", t.Tool, err)
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		{OfAssistant: &openai.ChatCompletionAssistantMessageParam{
			Role: "assistant",
			ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
				ID:   t.CallID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      t.Tool,
					Arguments: string(args),
				},
			}},
		}},
	}

	switch {
	case t.Failed():
		messages = append(messages, openai.ToolMessage("error: "+t.Err, t.CallID))
	default:
		text := core.JoinText(t.Result)
		if text == "" {
			text = "(no text output)"
		}

		messages = append(messages, openai.ToolMessage(text, t.CallID))

		if images := imageBlocks(t.Result); len(images) > 0 {
			messages = append(messages, userMessage(fmt.Sprintf("image output of tool %q", t.Tool), images))
		}
	}

	return messages, nil
}

func imageBlocks(blocks []core.Block) []core.Block {
	var out []core.Block
	for _, b := range blocks {
		if _, ok := b.(core.ImageBlock); ok {
			out = append(out, b)
		}
	}

	return out
}

// userMessage renders blocks as a user message. A non-empty label prefixes
// the content so the model can attribute it.
func userMessage(label string, blocks []core.Block) openai.ChatCompletionMessageParamUnion {
	var parts []openai.ChatCompletionContentPartUnionParam

	if label != "" {
		parts = append(parts, openai.ChatCompletionContentPartUnionParam{
			OfText: &openai.ChatCompletionContentPartTextParam{Text: "[" + label + "]"},
		})
	}

	for _, block := range blocks {
		switch b := block.(type) {
		case core.TextBlock:
			parts = append(parts, openai.ChatCompletionContentPartUnionParam{
				OfText: &openai.ChatCompletionContentPartTextParam{Text: b.Text},
			})
		case core.ImageBlock:
			parts = append(parts, openai.ChatCompletionContentPartUnionParam{
				OfImageURL: &openai.ChatCompletionContentPartImageParam{
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
						URL:    imageURL(b),
						Detail: string(b.Detail),
					},
				},
			})
		case core.FileBlock:
			parts = append(parts, filePart(b))
		}
	}

	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: parts,
			},
		},
	}
}

// imageURL prefers the remote URI and falls back to a base64 data URI.
func imageURL(b core.ImageBlock) string {
	if b.URI != "" {
		return b.URI
	}

	return "data:" + b.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}

func filePart(b core.FileBlock) openai.ChatCompletionContentPartUnionParam {
	if len(b.Data) == 0 {
		text := fmt.Sprintf("[file %s (%s) at %s]", b.Filename, b.MIMEType, b.URI)
		if b.URI == "" {
			text = fmt.Sprintf("[file %s (%s), ref %s]", b.Filename, b.MIMEType, b.Ref)
		}

		return openai.ChatCompletionContentPartUnionParam{
			OfText: &openai.ChatCompletionContentPartTextParam{Text: text},
		}
	}

	return openai.ChatCompletionContentPartUnionParam{
		OfFile: &openai.ChatCompletionContentPartFileParam{
			File: openai.ChatCompletionContentPartFileFileParam{
				FileData: openai.String("data:" + b.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(b.Data)),
				Filename: openai.String(b.Filename),
			},
		},
	}
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}

var _ model.Model = (*Model)(nil)
