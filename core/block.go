package core

import (
	"encoding/json"
	"fmt"
)

// ImageDetail controls how much resolution a consumer should spend on an
// image block when forwarding it to a vision-capable model.
type ImageDetail string

const (
	// ImageDetailAuto lets the consumer pick an appropriate fidelity.
	ImageDetailAuto ImageDetail = "auto"
	// ImageDetailHigh requests full-resolution processing.
	ImageDetailHigh ImageDetail = "high"
)

// Block represents one typed unit of content produced by a tool or agent.
// Concrete block types implement the unexported isBlock marker enabling a
// closed set. A tool result is an ordered sequence of blocks; order is
// meaningful (e.g. a text label immediately preceding the image it labels)
// and must be preserved end-to-end.
type Block interface{ isBlock() }

// TextBlock is a plain text content segment.
type TextBlock struct {
	Text string `json:"text"`
}

func (TextBlock) isBlock() {}

// ImageBlock is an inline or referenced image. Exactly one of Data or URI
// should be set. MIMEType is required when Data is set.
type ImageBlock struct {
	Data     []byte      `json:"data,omitempty"` // Raw image bytes (base64 in JSON)
	URI      string      `json:"uri,omitempty"`  // External retrieval URI
	MIMEType string      `json:"mime_type,omitempty"`
	Detail   ImageDetail `json:"detail,omitempty"`
}

func (ImageBlock) isBlock() {}

// FileBlock is a file attachment. The payload is carried inline (Data), by
// URI, or by an opaque backend-issued reference (Ref, e.g. an artifact id).
// The orchestrator never interprets the payload, only forwards it.
type FileBlock struct {
	Data     []byte `json:"data,omitempty"`
	URI      string `json:"uri,omitempty"`
	Ref      string `json:"ref,omitempty"`
	Filename string `json:"filename,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

func (FileBlock) isBlock() {}

// Text is a convenience constructor for a single-text block slice.
func Text(s string) []Block { return []Block{TextBlock{Text: s}} }

// Textf is Text with fmt.Sprintf formatting.
func Textf(format string, args ...any) []Block {
	return Text(fmt.Sprintf(format, args...))
}

// JoinText concatenates all text blocks in order, separated by newlines.
// Non-text blocks are skipped.
func JoinText(blocks []Block) string {
	var out string
	for _, b := range blocks {
		tb, ok := b.(TextBlock)
		if !ok {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += tb.Text
	}
	return out
}

// blockEnvelope is the wire form of a Block with a type discriminator.
type blockEnvelope struct {
	Type  string          `json:"type"`
	Block json.RawMessage `json:"block"`
}

const (
	blockTypeText  = "text"
	blockTypeImage = "image"
	blockTypeFile  = "file"
)

// MarshalBlocks serializes an ordered block slice to JSON preserving order
// and concrete types.
func MarshalBlocks(blocks []Block) ([]byte, error) {
	envs := make([]blockEnvelope, 0, len(blocks))
	for i, b := range blocks {
		var (
			typ string
			raw []byte
			err error
		)
		switch v := b.(type) {
		case TextBlock:
			typ = blockTypeText
			raw, err = json.Marshal(v)
		case ImageBlock:
			typ = blockTypeImage
			raw, err = json.Marshal(v)
		case FileBlock:
			typ = blockTypeFile
			raw, err = json.Marshal(v)
		default:
			return nil, fmt.Errorf("unknown block type at index %d: %T", i, b)
		}
		if err != nil {
			return nil, err
		}
		envs = append(envs, blockEnvelope{Type: typ, Block: raw})
	}
	return json.Marshal(envs)
}

// UnmarshalBlocks reconstructs an ordered block slice from JSON produced by
// MarshalBlocks.
func UnmarshalBlocks(data []byte) ([]Block, error) {
	var envs []blockEnvelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return nil, err
	}
	blocks := make([]Block, 0, len(envs))
	for i, env := range envs {
		switch env.Type {
		case blockTypeText:
			var b TextBlock
			if err := json.Unmarshal(env.Block, &b); err != nil {
				return nil, err
			}
			blocks = append(blocks, b)
		case blockTypeImage:
			var b ImageBlock
			if err := json.Unmarshal(env.Block, &b); err != nil {
				return nil, err
			}
			blocks = append(blocks, b)
		case blockTypeFile:
			var b FileBlock
			if err := json.Unmarshal(env.Block, &b); err != nil {
				return nil, err
			}
			blocks = append(blocks, b)
		default:
			return nil, fmt.Errorf("unknown block type at index %d: %q", i, env.Type)
		}
	}
	return blocks, nil
}
