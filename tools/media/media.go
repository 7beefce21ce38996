// Package media provides tools for loading local media into content blocks:
// image files as ImageBlocks (for vision-capable models) and ad template
// files as FileBlocks. Loading is read-only and enforces an attachment size
// guard so a stray file cannot blow up the provider request.
package media

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/agencykit/core"
	"github.com/hupe1980/agencykit/tool"
)

// DefaultMaxAttachmentBytes caps the size of a single loaded file.
const DefaultMaxAttachmentBytes = 10 << 20 // 10 MiB

// imageMIMETypes maps the supported image extensions to their MIME type.
// Content sniffing is the fallback for files with unknown extensions.
var imageMIMETypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// Options configures the media loading tools.
type Options struct {
	// MaxAttachmentBytes caps the size of a single loaded file.
	MaxAttachmentBytes int64
}

func loadImageFile(path string, maxBytes int64) (core.ImageBlock, error) {
	info, err := os.Stat(path)
	if err != nil {
		return core.ImageBlock{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return core.ImageBlock{}, fmt.Errorf("%s is a directory, not a file", path)
	}
	if info.Size() > maxBytes {
		return core.ImageBlock{}, fmt.Errorf("%s is %d bytes, above the %d byte attachment limit", path, info.Size(), maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return core.ImageBlock{}, fmt.Errorf("read %s: %w", path, err)
	}

	mimeType, ok := imageMIMETypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return core.ImageBlock{}, fmt.Errorf("%s has unsupported type %s, only image files are allowed", path, mimeType)
	}

	return core.ImageBlock{Data: data, MIMEType: mimeType, Detail: core.ImageDetailAuto}, nil
}

// NewLoadImages returns a tool that loads image files from the local
// filesystem into labeled image blocks, preserving the requested order.
func NewLoadImages(optFns ...func(o *Options)) *tool.FunctionTool {
	opts := Options{MaxAttachmentBytes: DefaultMaxAttachmentBytes}
	for _, optFn := range optFns {
		optFn(&opts)
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_paths": map[string]any{
				"type":        "array",
				"description": "Paths of the image files to load (absolute or relative)",
			},
		},
		"required": []string{"file_paths"},
	}

	return tool.NewFunctionTool(
		"load_images",
		"Load image files from the local filesystem so they can be inspected.",
		schema,
		func(tc *core.ToolContext, args map[string]any) ([]core.Block, error) {
			paths := argStrings(args, "file_paths")
			if len(paths) == 0 {
				return nil, &tool.ToolError{
					Tool:    "load_images",
					Message: "file_paths must list at least one image file",
					Code:    "VALIDATION_ERROR",
				}
			}

			blocks := make([]core.Block, 0, 2*len(paths))
			for _, path := range paths {
				img, err := loadImageFile(path, opts.MaxAttachmentBytes)
				if err != nil {
					return nil, err
				}
				blocks = append(blocks, core.TextBlock{Text: path + ":"}, img)
			}
			return blocks, nil
		},
	)
}

// NewLoadTemplates returns a tool that loads every supported image from a
// template directory, in sorted filename order, as label + file pairs. The
// templates travel as FileBlocks so downstream tools can reference them
// without inlining bytes into the conversation.
func NewLoadTemplates(templateDir string, optFns ...func(o *Options)) *tool.FunctionTool {
	opts := Options{MaxAttachmentBytes: DefaultMaxAttachmentBytes}
	for _, optFn := range optFns {
		optFn(&opts)
	}

	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}

	return tool.NewFunctionTool(
		"load_templates",
		"Load the available ad template images.",
		schema,
		func(tc *core.ToolContext, args map[string]any) ([]core.Block, error) {
			entries, err := os.ReadDir(templateDir)
			if err != nil {
				return nil, fmt.Errorf("read template directory %s: %w", templateDir, err)
			}

			names := make([]string, 0, len(entries))
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				if _, ok := imageMIMETypes[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
					continue
				}
				names = append(names, e.Name())
			}
			sort.Strings(names)

			if len(names) == 0 {
				return core.Textf("No templates found in %s", templateDir), nil
			}

			blocks := make([]core.Block, 0, 2*len(names))
			for _, name := range names {
				path := filepath.Join(templateDir, name)
				img, err := loadImageFile(path, opts.MaxAttachmentBytes)
				if err != nil {
					return nil, err
				}
				blocks = append(blocks,
					core.TextBlock{Text: name + ":"},
					core.FileBlock{Data: img.Data, Filename: name, MIMEType: img.MIMEType},
				)
			}
			return blocks, nil
		},
	)
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
