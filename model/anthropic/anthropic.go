// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agencykit/core"
	"github.com/hupe1980/agencykit/model"
)

// Reasoning effort levels map onto extended thinking token budgets.
var thinkingBudgets = map[string]int64{
	"low":    1024,
	"medium": 4096,
	"high":   16384,
}

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Decide implements model.Model. It runs one Messages API call and
// normalizes the response into a Decision, folding a call to the synthetic
// routing function into Decision.Handoff.
func (m *Model) Decide(ctx context.Context, req model.Request) (*model.Decision, error) {
	params := anthropic.MessageNewParams{
		Model:     m.opts.Model,
		Messages:  buildMessages(req),
		MaxTokens: m.opts.MaxTokens,
	}

	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}

	if budget, ok := thinkingBudgets[req.ReasoningEffort]; ok {
		// Temperature must stay unset when extended thinking is enabled.
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	} else {
		params.Temperature = anthropic.Float(m.opts.Temperature)
	}

	defs := req.Tools
	if len(req.HandoffTargets) > 0 {
		defs = append(defs, model.HandoffToolDefinition(req.HandoffTargets))
	}

	if len(defs) > 0 {
		params.Tools = buildTools(defs)
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	decision := &model.Decision{
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text := block.AsText()
			if text.Text != "" {
				decision.Message = append(decision.Message, core.TextBlock{Text: text.Text})
			}
		case "tool_use":
			toolUse := block.AsToolUse()

			args := map[string]any{}
			if toolUse.Input != nil {
				raw, err := json.Marshal(toolUse.Input)
				if err != nil {
					return nil, fmt.Errorf("anthropic: malformed input for %s: %w", toolUse.Name, err)
				}

				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("anthropic: malformed input for %s: %w", toolUse.Name, err)
				}
			}

			if toolUse.Name == model.HandoffFunctionName {
				if decision.Handoff == nil {
					target, _ := args["target"].(string)
					reason, _ := args["reason"].(string)
					decision.Handoff = &model.HandoffRequest{Target: target, Reason: reason}
				}

				continue
			}

			decision.ToolCalls = append(decision.ToolCalls, model.ToolCallRequest{
				CallID: toolUse.ID,
				Name:   toolUse.Name,
				Args:   args,
			})
		}
	}

	return decision, nil
}

// buildMessages converts the agent-scoped history into Anthropic messages.
// The deciding agent's own turns map to assistant messages plus tool_result
// user messages; peer agents' turns are rendered as attributed user messages.
func buildMessages(req model.Request) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	for _, turn := range req.History {
		switch t := turn.(type) {
		case core.UserMessage:
			if blocks := contentBlocks(t.Blocks); len(blocks) > 0 {
				messages = append(messages, anthropic.NewUserMessage(blocks...))
			}
		case core.AgentMessage:
			if t.Agent == req.Agent {
				if text := core.JoinText(t.Blocks); text != "" {
					messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
				}

				continue
			}

			blocks := append(
				[]anthropic.ContentBlockParamUnion{anthropic.NewTextBlock("[" + t.Agent + "]")},
				contentBlocks(t.Blocks)...,
			)
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		case core.ToolCall:
			if t.Agent != req.Agent {
				messages = append(messages, anthropic.NewUserMessage(
					anthropic.NewTextBlock(fmt.Sprintf("[%s ran tool %q]", t.Agent, t.Tool)),
				))

				continue
			}

			messages = append(messages, toolCallMessages(t)...)
		case core.HandoffEvent:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(handoffNote(t))))
		}
	}

	return messages
}

func handoffNote(t core.HandoffEvent) string {
	if t.Reason != "" {
		return fmt.Sprintf("[conversation handed off from %s to %s: %s]", t.From, t.To, t.Reason)
	}

	return fmt.Sprintf("[conversation handed off from %s to %s]", t.From, t.To)
}

// toolCallMessages renders one of the agent's own tool calls as the
// assistant tool_use message plus the matching tool_result user message.
// Image blocks in the result follow as a separate user message.
func toolCallMessages(t core.ToolCall) []anthropic.MessageParam {
	messages := []anthropic.MessageParam{
		anthropic.NewAssistantMessage(anthropic.NewToolUseBlock(t.CallID, t.Args, t.Tool)),
	}

	if t.Failed() {
		messages = append(messages, anthropic.NewUserMessage(
			anthropic.NewToolResultBlock(t.CallID, "error: "+t.Err, true),
		))

		return messages
	}

	text := core.JoinText(t.Result)
	if text == "" {
		text = "(no text output)"
	}

	messages = append(messages, anthropic.NewUserMessage(
		anthropic.NewToolResultBlock(t.CallID, text, false),
	))

	var images []anthropic.ContentBlockParamUnion
	for _, b := range t.Result {
		if img, ok := b.(core.ImageBlock); ok {
			images = append(images, imageBlock(img))
		}
	}

	if len(images) > 0 {
		blocks := append(
			[]anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(fmt.Sprintf("[image output of tool %q]", t.Tool))},
			images...,
		)
		messages = append(messages, anthropic.NewUserMessage(blocks...))
	}

	return messages
}

// contentBlocks converts normalized blocks to Anthropic content blocks.
// Files without inline data are referenced as text.
func contentBlocks(blocks []core.Block) []anthropic.ContentBlockParamUnion {
	var out []anthropic.ContentBlockParamUnion

	for _, block := range blocks {
		switch b := block.(type) {
		case core.TextBlock:
			if b.Text != "" {
				out = append(out, anthropic.NewTextBlock(b.Text))
			}
		case core.ImageBlock:
			out = append(out, imageBlock(b))
		case core.FileBlock:
			out = append(out, anthropic.NewTextBlock(fileNote(b)))
		}
	}

	return out
}

func imageBlock(b core.ImageBlock) anthropic.ContentBlockParamUnion {
	if b.URI != "" {
		return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: b.URI})
	}

	return anthropic.NewImageBlockBase64(b.MIMEType, base64.StdEncoding.EncodeToString(b.Data))
}

func fileNote(b core.FileBlock) string {
	if b.URI != "" {
		return fmt.Sprintf("[file %s (%s) at %s]", b.Filename, b.MIMEType, b.URI)
	}

	return fmt.Sprintf("[file %s (%s), ref %s]", b.Filename, b.MIMEType, b.Ref)
}

// buildTools converts normalized tool definitions to Anthropic tool format
func buildTools(defs []model.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(defs))

	for i, def := range defs {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if def.Parameters != nil {
			if properties, exists := def.Parameters["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := def.Parameters["required"]; exists {
				switch req := required.(type) {
				case []string:
					inputSchema.Required = req
				case []any:
					for _, r := range req {
						if s, ok := r.(string); ok {
							inputSchema.Required = append(inputSchema.Required, s)
						}
					}
				}
			}
		}

		tools[i] = anthropic.ToolUnionParamOfTool(inputSchema, def.Name)
	}

	return tools
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}

var _ model.Model = (*Model)(nil)
