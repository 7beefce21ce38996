package imagegen

import (
	"fmt"

	"github.com/hupe1980/agencykit/core"
	"github.com/hupe1980/agencykit/tool"
)

func backendEffect() []tool.SideEffect {
	return []tool.SideEffect{{Class: tool.EffectResource, Resource: Kind}}
}

func enumValues() []any {
	out := make([]any, 0, len(AspectRatios))
	for _, r := range AspectRatios {
		out = append(out, r)
	}
	return out
}

func variantSchema() map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": "Number of image variants to generate (1-4, default 1)",
		"minimum":     float64(1),
		"maximum":     float64(4),
	}
}

func aspectRatioSchema(def string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": fmt.Sprintf("Aspect ratio of the generated image (default %s)", def),
		"enum":        enumValues(),
	}
}

// variantBlocks persists each variant PNG as an artifact and assembles the
// ordered result: a text label, the inline image, and the saved file ref per
// variant. Order is meaningful to the consumer and preserved end-to-end.
func variantBlocks(tc *core.ToolContext, fileName string, variants [][]byte) ([]core.Block, error) {
	blocks := make([]core.Block, 0, 3*len(variants))
	for i, png := range variants {
		name := fileName
		if len(variants) > 1 {
			name = fmt.Sprintf("%s_v%d", fileName, i+1)
		}
		ref, err := tc.SaveArtifact(name+".png", "image/png", png)
		if err != nil {
			return nil, fmt.Errorf("save variant %d: %w", i+1, err)
		}
		blocks = append(blocks,
			core.TextBlock{Text: name + ".png"},
			core.ImageBlock{Data: png, MIMEType: "image/png"},
			ref,
		)
	}
	return blocks, nil
}

// NewGenerateImage returns a tool that generates 1-4 image variants from a
// text prompt and stores each as a PNG artifact.
func NewGenerateImage() *tool.FunctionTool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Describe the image subject and style. Keep it concise and outcome-focused.",
			},
			"file_name": map[string]any{
				"type":        "string",
				"description": "Name for the generated image file (without extension)",
			},
			"num_variants": variantSchema(),
			"aspect_ratio": aspectRatioSchema("16:9"),
		},
		"required": []string{"prompt", "file_name"},
	}

	return tool.NewFunctionTool(
		"generate_image",
		"Generate image variants from a text prompt.",
		schema,
		func(tc *core.ToolContext, args map[string]any) ([]core.Block, error) {
			g, err := acquire(tc)
			if err != nil {
				return nil, err
			}

			prompt, _ := args["prompt"].(string)
			fileName, _ := args["file_name"].(string)
			count := argInt(args, "num_variants", 1)
			ratio := argString(args, "aspect_ratio", "16:9")

			variants, err := g.Generate(tc.Context(), prompt, ratio, count)
			if err != nil {
				return nil, fmt.Errorf("generate image: %w", err)
			}
			if len(variants) == 0 {
				return nil, fmt.Errorf("no variants were generated")
			}
			return variantBlocks(tc, fileName, variants)
		},
		func(o *tool.FunctionToolOptions) { o.SideEffects = backendEffect() },
	)
}

// NewEditImage returns a tool that applies a described edit to a previously
// generated image, addressed by its artifact ref.
func NewEditImage() *tool.FunctionTool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input_image_ref": map[string]any{
				"type":        "string",
				"description": "Artifact ref of the image to edit (from a previous result)",
			},
			"edit_prompt": map[string]any{
				"type":        "string",
				"description": "Text prompt describing the edits to make",
			},
			"output_file_name": map[string]any{
				"type":        "string",
				"description": "Name for the edited image file (without extension)",
			},
			"num_variants": variantSchema(),
			"aspect_ratio": aspectRatioSchema("1:1"),
		},
		"required": []string{"input_image_ref", "edit_prompt", "output_file_name"},
	}

	return tool.NewFunctionTool(
		"edit_image",
		"Edit an existing image following a text prompt.",
		schema,
		func(tc *core.ToolContext, args map[string]any) ([]core.Block, error) {
			ref, _ := args["input_image_ref"].(string)
			input, err := tc.LoadArtifact(ref)
			if err != nil {
				return nil, fmt.Errorf("load input image %q: %w", ref, err)
			}

			g, err := acquire(tc)
			if err != nil {
				return nil, err
			}

			prompt, _ := args["edit_prompt"].(string)
			fileName, _ := args["output_file_name"].(string)
			count := argInt(args, "num_variants", 1)
			ratio := argString(args, "aspect_ratio", "1:1")

			variants, err := g.Edit(tc.Context(), input, prompt, ratio, count)
			if err != nil {
				return nil, fmt.Errorf("edit image: %w", err)
			}
			if len(variants) == 0 {
				return nil, fmt.Errorf("no variants were generated")
			}
			return variantBlocks(tc, fileName, variants)
		},
		func(o *tool.FunctionToolOptions) { o.SideEffects = backendEffect() },
	)
}

// NewCombineImages returns a tool that merges several previously generated
// images into one following a text instruction.
func NewCombineImages() *tool.FunctionTool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"image_refs": map[string]any{
				"type":        "array",
				"description": "Artifact refs of the images to combine, in order",
			},
			"text_instruction": map[string]any{
				"type":        "string",
				"description": "How to combine the images",
			},
			"file_name": map[string]any{
				"type":        "string",
				"description": "Name for the combined image file (without extension)",
			},
			"num_variants": variantSchema(),
			"aspect_ratio": aspectRatioSchema("1:1"),
		},
		"required": []string{"image_refs", "text_instruction", "file_name"},
	}

	return tool.NewFunctionTool(
		"combine_images",
		"Combine multiple images into one following a text instruction.",
		schema,
		func(tc *core.ToolContext, args map[string]any) ([]core.Block, error) {
			refs := argStrings(args, "image_refs")
			if len(refs) < 2 {
				return nil, &tool.ToolError{
					Tool:    "combine_images",
					Message: "image_refs must list at least two images",
					Code:    "VALIDATION_ERROR",
				}
			}
			images := make([][]byte, 0, len(refs))
			for _, ref := range refs {
				data, err := tc.LoadArtifact(ref)
				if err != nil {
					return nil, fmt.Errorf("load image %q: %w", ref, err)
				}
				images = append(images, data)
			}

			g, err := acquire(tc)
			if err != nil {
				return nil, err
			}

			instruction, _ := args["text_instruction"].(string)
			fileName, _ := args["file_name"].(string)
			count := argInt(args, "num_variants", 1)
			ratio := argString(args, "aspect_ratio", "1:1")

			variants, err := g.Combine(tc.Context(), images, instruction, ratio, count)
			if err != nil {
				return nil, fmt.Errorf("combine images: %w", err)
			}
			if len(variants) == 0 {
				return nil, fmt.Errorf("no variants were generated")
			}
			return variantBlocks(tc, fileName, variants)
		},
		func(o *tool.FunctionToolOptions) { o.SideEffects = backendEffect() },
	)
}

func argString(args map[string]any, key, def string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
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
