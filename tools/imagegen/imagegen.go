// Package imagegen exposes an image generation backend to agents as tools:
// prompt-based generation, editing an existing image, and combining several
// images into one. The backend is a session resource of kind "imagegen";
// generated PNGs are persisted through the run's artifact store so later
// tool calls can reference them by ref instead of re-attaching bytes.
package imagegen

import (
	"context"
	"fmt"

	"github.com/hupe1980/agencykit/core"
	"github.com/hupe1980/agencykit/resource"
)

// Kind is the resource kind under which the generator is registered.
const Kind = "imagegen"

// AspectRatios lists the aspect ratios a backend must accept.
var AspectRatios = []string{"1:1", "2:3", "3:2", "3:4", "4:3", "4:5", "9:16", "16:9", "21:9"}

// Generator is the backend producing images. Each method returns one PNG per
// requested variant, in variant order; variants is always in [1,4].
// Implementations wrap a hosted image model and may fan the variants out
// internally. Close releases the backend at run end.
type Generator interface {
	// Generate produces variants images from a text prompt.
	Generate(ctx context.Context, prompt, aspectRatio string, variants int) ([][]byte, error)

	// Edit applies a text-described edit to an existing image.
	Edit(ctx context.Context, image []byte, prompt, aspectRatio string, variants int) ([][]byte, error)

	// Combine merges several images into one following the instruction.
	Combine(ctx context.Context, images [][]byte, instruction, aspectRatio string, variants int) ([][]byte, error)

	Close() error
}

// Factory adapts a generator opener into a resource factory for Kind.
func Factory(open func(ctx context.Context) (Generator, error)) resource.Factory {
	return func(ctx context.Context) (core.Handle, error) {
		return open(ctx)
	}
}

func acquire(tc *core.ToolContext) (Generator, error) {
	h, err := tc.AcquireResource(Kind)
	if err != nil {
		return nil, err
	}
	g, ok := h.(Generator)
	if !ok {
		return nil, fmt.Errorf("resource %q is %T, not an image generator", Kind, h)
	}
	return g, nil
}
