package browser

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/agencykit/core"
	"github.com/hupe1980/agencykit/tool"
)

// sessionEffect marks a tool as using the shared browser session so the
// orchestrator serializes it against other browser tools.
func sessionEffect() []tool.SideEffect {
	return []tool.SideEffect{{Class: tool.EffectResource, Resource: Kind}}
}

// NewGetPageScreenshot returns a tool that navigates to a URL and captures a
// screenshot. The result is a text label followed by the image so the
// consumer knows which page it is looking at.
func NewGetPageScreenshot() *tool.FunctionTool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"page_url": map[string]any{
				"type":        "string",
				"description": "URL of the page to capture (e.g. http://localhost:3000)",
			},
			"wait_seconds": map[string]any{
				"type":        "integer",
				"description": "Seconds to wait for the page to load before capturing",
				"minimum":     float64(0),
				"maximum":     float64(30),
			},
			"full_page": map[string]any{
				"type":        "boolean",
				"description": "Capture the full page instead of just the viewport",
			},
		},
		"required": []string{"page_url"},
	}

	return tool.NewFunctionTool(
		"get_page_screenshot",
		"Navigate to a web page and return a screenshot of it.",
		schema,
		func(tc *core.ToolContext, args map[string]any) ([]core.Block, error) {
			b, err := acquire(tc)
			if err != nil {
				return nil, err
			}

			url, _ := args["page_url"].(string)
			if err := b.Navigate(tc.Context(), url); err != nil {
				return nil, fmt.Errorf("navigate to %s: %w", url, err)
			}
			if wait := argInt(args, "wait_seconds", 0); wait > 0 {
				select {
				case <-time.After(time.Duration(wait) * time.Second):
				case <-tc.Context().Done():
					return nil, tc.Context().Err()
				}
			}

			fullPage := argBool(args, "full_page", true)
			png, err := b.Screenshot(tc.Context(), fullPage)
			if err != nil {
				return nil, fmt.Errorf("screenshot of %s: %w", url, err)
			}

			return []core.Block{
				core.TextBlock{Text: fmt.Sprintf("Screenshot of %s", url)},
				core.ImageBlock{Data: png, MIMEType: "image/png", Detail: core.ImageDetailHigh},
			}, nil
		},
		func(o *tool.FunctionToolOptions) { o.SideEffects = sessionEffect() },
	)
}

// NewDiscoverElements returns a tool that lists interactive elements on a
// page together with candidate selectors for follow-up interactions.
func NewDiscoverElements() *tool.FunctionTool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"page_url": map[string]any{
				"type":        "string",
				"description": "URL of the page to inspect",
			},
			"element_types": map[string]any{
				"type":        "array",
				"description": "Element tags to search for (default: button, input, a, select, textarea)",
			},
		},
		"required": []string{"page_url"},
	}

	return tool.NewFunctionTool(
		"discover_elements",
		"Discover interactive elements on a web page and suggest selectors for testing them.",
		schema,
		func(tc *core.ToolContext, args map[string]any) ([]core.Block, error) {
			b, err := acquire(tc)
			if err != nil {
				return nil, err
			}

			url, _ := args["page_url"].(string)
			if err := b.Navigate(tc.Context(), url); err != nil {
				return nil, fmt.Errorf("navigate to %s: %w", url, err)
			}

			elements, err := b.DiscoverElements(tc.Context(), argStrings(args, "element_types"))
			if err != nil {
				return nil, fmt.Errorf("discover elements on %s: %w", url, err)
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Found %d interactive element(s) on %s\n", len(elements), url)
			for i, el := range elements {
				fmt.Fprintf(&sb, "%d. <%s>", i+1, el.Tag)
				if el.Text != "" {
					fmt.Fprintf(&sb, " %q", el.Text)
				}
				sb.WriteString("\n")
				for _, kind := range sortedKeys(el.Selectors) {
					fmt.Fprintf(&sb, "    %s: %s\n", kind, el.Selectors[kind])
				}
			}
			return core.Text(strings.TrimRight(sb.String(), "\n")), nil
		},
		func(o *tool.FunctionToolOptions) { o.SideEffects = sessionEffect() },
	)
}

// NewInteractWithPage returns a tool that performs a sequence of actions
// (click, fill, scroll, hover, press_key, select_option) against a page.
func NewInteractWithPage() *tool.FunctionTool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"page_url": map[string]any{
				"type":        "string",
				"description": "URL to navigate to before interacting",
			},
			"actions": map[string]any{
				"type": "array",
				"description": "Ordered actions to perform. Each item is an object with " +
					"'type' (click, fill, scroll, hover, press_key, select_option), " +
					"'selector', optional 'by' (css, xpath, id, name, text), " +
					"and type-specific fields 'text', 'key' or 'value'.",
			},
		},
		"required": []string{"page_url", "actions"},
	}

	return tool.NewFunctionTool(
		"interact_with_page",
		"Navigate to a web page and perform a sequence of interactions against it.",
		schema,
		func(tc *core.ToolContext, args map[string]any) ([]core.Block, error) {
			actions, err := decodeActions(args["actions"])
			if err != nil {
				// Decoded before acquiring the session so invalid input has
				// no side effects.
				return nil, &tool.ToolError{
					Tool:    "interact_with_page",
					Message: err.Error(),
					Code:    "VALIDATION_ERROR",
					Details: err,
				}
			}

			b, err := acquire(tc)
			if err != nil {
				return nil, err
			}

			url, _ := args["page_url"].(string)
			if err := b.Navigate(tc.Context(), url); err != nil {
				return nil, fmt.Errorf("navigate to %s: %w", url, err)
			}

			outcomes, err := b.Interact(tc.Context(), actions)
			if err != nil {
				// Partial outcomes still matter: the model can see how far
				// the sequence got before correcting the failing step.
				report := strings.Join(outcomes, "\n")
				if report != "" {
					report += "\n"
				}
				return nil, fmt.Errorf("%sinteraction failed: %w", report, err)
			}
			return core.Textf("Performed %d action(s) on %s:\n%s",
				len(actions), url, strings.Join(outcomes, "\n")), nil
		},
		func(o *tool.FunctionToolOptions) { o.SideEffects = sessionEffect() },
	)
}

var actionTypes = map[string]struct{}{
	"click": {}, "fill": {}, "scroll": {}, "hover": {},
	"press_key": {}, "select_option": {},
}

func decodeActions(raw any) ([]Action, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, &core.ValidationError{
			Field:   "actions",
			Value:   raw,
			Message: "expected an array of action objects",
		}
	}
	if len(items) == 0 {
		return nil, &core.ValidationError{
			Field:   "actions",
			Message: "at least one action is required",
		}
	}

	actions := make([]Action, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, &core.ValidationError{
				Field:   fmt.Sprintf("actions[%d]", i),
				Value:   item,
				Message: "expected an action object",
			}
		}
		a := Action{
			Type:     stringField(m, "type"),
			Selector: stringField(m, "selector"),
			By:       stringField(m, "by"),
			Text:     stringField(m, "text"),
			Key:      stringField(m, "key"),
			Value:    stringField(m, "value"),
		}
		if _, ok := actionTypes[a.Type]; !ok {
			return nil, &core.ValidationError{
				Field:   fmt.Sprintf("actions[%d].type", i),
				Value:   a.Type,
				Message: "unknown action type",
			}
		}
		if a.By == "" {
			a.By = "css"
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func argBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func argStrings(args map[string]any, key string) []string {
	items, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
