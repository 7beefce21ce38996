package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agencykit/core"
	"github.com/hupe1980/agencykit/internal/util"
	"github.com/hupe1980/agencykit/logging"
)

func testToolContext(callID string) *core.ToolContext {
	rc := core.NewRunContext(context.Background(), "run-1", core.NewThread(), nil, nil, logging.NoOpLogger{})
	return core.NewToolContext(rc, "Coder", callID)
}

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
	D int    `json:"d" description:"Bounded field" minimum:"1" maximum:"4"`
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	assert.Contains(t, props, "d")

	dSchema, ok := props["d"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), dSchema["minimum"])
	assert.Equal(t, float64(4), dSchema["maximum"])

	req, _ := schema["required"].([]string)
	assert.ElementsMatch(t, []string{"a", "d"}, req)
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer", "minimum": 1, "maximum": 4},
		},
		// Use []any to mirror possible JSON decoded schema shape
		"required": []any{"x"},
	}

	// Success
	err := util.ValidateParameters(map[string]any{"x": 2}, schema)
	assert.NoError(t, err)

	// Missing required
	err = util.ValidateParameters(map[string]any{}, schema)
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "x", vErr.Field)

	// Wrong type
	err = util.ValidateParameters(map[string]any{"x": "not-int"}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "expected type integer")

	// Out of bounds (the "1-4 image variants" case)
	err = util.ValidateParameters(map[string]any{"x": 9}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "above maximum")

	err = util.ValidateParameters(map[string]any{"x": 0}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "below minimum")
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) ([]core.Block, error) {
		a := args["a"].(float64)
		b := args["b"].(float64)
		return core.Textf("%g", a+b), nil
	})

	blocks, err := sumTool.Call(testToolContext("fc1"), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, core.Text("5"), blocks)
	assert.Equal(t, []SideEffect{{Class: EffectNone}}, sumTool.SideEffects())
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []any{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) ([]core.Block, error) {
		t.Fatal("function must not run on invalid args")
		return nil, nil
	})

	_, err := tTool.Call(testToolContext("fc2"), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

func TestFunctionTool_ExecutionErrorWrapped(t *testing.T) {
	tTool := NewFunctionTool("boom", "Fails", map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ToolContext, _ map[string]any) ([]core.Block, error) {
			return nil, errors.New("kaput")
		})

	_, err := tTool.Call(testToolContext("fc3"), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
	assert.Equal(t, "kaput", toolErr.Message)
}

func TestFunctionTool_ToolErrorPassthrough(t *testing.T) {
	custom := NewToolError("custom", "resource busy", "RESOURCE_BUSY")
	tTool := NewFunctionTool("custom", "Custom error", map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ToolContext, _ map[string]any) ([]core.Block, error) {
			return nil, custom
		})

	_, err := tTool.Call(testToolContext("fc4"), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Same(t, custom, toolErr)
}

func TestSideEffect_Conflicts(t *testing.T) {
	browser := SideEffect{Class: EffectResource, Resource: "browser"}
	other := SideEffect{Class: EffectResource, Resource: "imagegen"}
	write := SideEffect{Class: EffectFileWrite}
	pure := SideEffect{Class: EffectNone}

	assert.True(t, browser.Conflicts(browser))
	assert.False(t, browser.Conflicts(other))
	assert.True(t, write.Conflicts(write))
	assert.False(t, pure.Conflicts(write))
	assert.False(t, pure.Conflicts(pure))
}

func TestConflicting(t *testing.T) {
	mk := func(name string, effects ...SideEffect) Tool {
		return NewFunctionTool(name, name, map[string]any{"type": "object", "properties": map[string]any{}},
			func(_ *core.ToolContext, _ map[string]any) ([]core.Block, error) { return nil, nil },
			func(o *FunctionToolOptions) { o.SideEffects = effects },
		)
	}

	screenshot := mk("screenshot", SideEffect{Class: EffectResource, Resource: "browser"})
	interact := mk("interact", SideEffect{Class: EffectResource, Resource: "browser"})
	sum := mk("sum", SideEffect{Class: EffectNone})

	assert.True(t, Conflicting(screenshot, interact))
	assert.False(t, Conflicting(screenshot, sum))
}
