package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agencykit/core"
	"github.com/hupe1980/agencykit/logging"
	"github.com/hupe1980/agencykit/tool"
)

// Minimal valid PNG header so content sniffing recognizes the type.
var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func testToolContext() *core.ToolContext {
	rc := core.NewRunContext(context.Background(), "run-1", core.NewThread(), nil, nil, logging.NoOpLogger{})
	return core.NewToolContext(rc, "DataAnalyst", "call-1")
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadImages(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "chart.png", pngBytes)
	second := writeFile(t, dir, "photo.jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3})

	loadImages := NewLoadImages()
	blocks, err := loadImages.Call(testToolContext(), map[string]any{
		"file_paths": []any{first, second},
	})
	require.NoError(t, err)

	require.Len(t, blocks, 4)
	label, ok := blocks[0].(core.TextBlock)
	require.True(t, ok)
	assert.Equal(t, first+":", label.Text)

	img, ok := blocks[1].(core.ImageBlock)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, pngBytes, img.Data)

	jpg, ok := blocks[3].(core.ImageBlock)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", jpg.MIMEType)
}

func TestLoadImages_MissingFile(t *testing.T) {
	loadImages := NewLoadImages()

	_, err := loadImages.Call(testToolContext(), map[string]any{
		"file_paths": []any{filepath.Join(t.TempDir(), "missing.png")},
	})

	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
}

func TestLoadImages_RejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", []byte("plain text"))

	loadImages := NewLoadImages()
	_, err := loadImages.Call(testToolContext(), map[string]any{
		"file_paths": []any{path},
	})

	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Contains(t, toolErr.Message, "only image files are allowed")
}

func TestLoadImages_SizeGuard(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "big.png", append(pngBytes, make([]byte, 64)...))

	loadImages := NewLoadImages(func(o *Options) { o.MaxAttachmentBytes = 16 })
	_, err := loadImages.Call(testToolContext(), map[string]any{
		"file_paths": []any{path},
	})

	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Contains(t, toolErr.Message, "attachment limit")
}

func TestLoadTemplates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_template.png", pngBytes)
	writeFile(t, dir, "a_template.png", pngBytes)
	writeFile(t, dir, "notes.txt", []byte("skipped"))

	loadTemplates := NewLoadTemplates(dir)
	blocks, err := loadTemplates.Call(testToolContext(), map[string]any{})
	require.NoError(t, err)

	// Sorted filename order, non-image files skipped.
	require.Len(t, blocks, 4)
	first, ok := blocks[0].(core.TextBlock)
	require.True(t, ok)
	assert.Equal(t, "a_template.png:", first.Text)

	file, ok := blocks[1].(core.FileBlock)
	require.True(t, ok)
	assert.Equal(t, "a_template.png", file.Filename)
	assert.Equal(t, "image/png", file.MIMEType)

	second, ok := blocks[2].(core.TextBlock)
	require.True(t, ok)
	assert.Equal(t, "b_template.png:", second.Text)
}

func TestLoadTemplates_EmptyDir(t *testing.T) {
	loadTemplates := NewLoadTemplates(t.TempDir())

	blocks, err := loadTemplates.Call(testToolContext(), map[string]any{})
	require.NoError(t, err)

	assert.Contains(t, core.JoinText(blocks), "No templates found")
}
