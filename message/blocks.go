package message

import (
	"encoding/json"
	"fmt"
)

// BlockKind identifies the variant of a content block.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
	BlockImage      BlockKind = "image"
	BlockDocument   BlockKind = "document"
)

// Block is a closed tagged union over the content block variants. Exactly
// one of the pointer fields is set, matching Kind. Consumers switch on Kind
// exhaustively rather than inspecting fields.
type Block struct {
	Kind BlockKind `json:"kind"`

	Text       *TextBlock       `json:"text,omitempty"`
	ToolUse    *ToolUseBlock    `json:"tool_use,omitempty"`
	ToolResult *ToolResultBlock `json:"tool_result,omitempty"`
	Image      *ImageBlock      `json:"image,omitempty"`
	Document   *DocumentBlock   `json:"document,omitempty"`
}

// TextBlock holds plain text content.
type TextBlock struct {
	Text string `json:"text"`
}

// ToolUseBlock is a model-emitted request to invoke a named tool.
// Input holds the structured arguments once parsed (possibly after repair);
// RawInput preserves the argument text exactly as the backend sent it.
// When parsing fails even after repair, Input is nil and InputError carries
// the parse failure for the executor to surface as an error result.
type ToolUseBlock struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Input      json.RawMessage `json:"input,omitempty"`
	RawInput   string          `json:"raw_input,omitempty"`
	InputError string          `json:"input_error,omitempty"`
}

// ToolResultBlock answers one tool-use block, referencing it by id.
type ToolResultBlock struct {
	ToolUseID string  `json:"tool_use_id"`
	Blocks    []Block `json:"blocks,omitempty"`
	IsError   bool    `json:"is_error,omitempty"`
}

// ImageBlock carries image bytes until they are released, after which only
// the size-bearing placeholder remains.
type ImageBlock struct {
	MediaType   string `json:"media_type"`
	Data        []byte `json:"data,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

// DocumentBlock carries document bytes until they are released.
type DocumentBlock struct {
	MediaType   string `json:"media_type"`
	Name        string `json:"name,omitempty"`
	Data        []byte `json:"data,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

// Text creates a text block.
func Text(text string) Block {
	return Block{Kind: BlockText, Text: &TextBlock{Text: text}}
}

// ToolUse creates a tool-use block.
func ToolUse(id, name string, input json.RawMessage) Block {
	return Block{Kind: BlockToolUse, ToolUse: &ToolUseBlock{
		ID:    id,
		Name:  name,
		Input: input,
	}}
}

// ToolResult creates a tool-result block whose content is a single text
// block.
func ToolResult(toolUseID, text string) Block {
	return Block{Kind: BlockToolResult, ToolResult: &ToolResultBlock{
		ToolUseID: toolUseID,
		Blocks:    []Block{Text(text)},
	}}
}

// ErrorResult creates a tool-result block flagged as an error.
func ErrorResult(toolUseID, text string) Block {
	return Block{Kind: BlockToolResult, ToolResult: &ToolResultBlock{
		ToolUseID: toolUseID,
		Blocks:    []Block{Text(text)},
		IsError:   true,
	}}
}

// Image creates an image block holding raw bytes.
func Image(mediaType string, data []byte) Block {
	return Block{Kind: BlockImage, Image: &ImageBlock{
		MediaType: mediaType,
		Data:      data,
	}}
}

// Document creates a document block holding raw bytes.
func Document(mediaType, name string, data []byte) Block {
	return Block{Kind: BlockDocument, Document: &DocumentBlock{
		MediaType: mediaType,
		Name:      name,
		Data:      data,
	}}
}

// PlainText returns the text content of a block, or "" for non-text kinds.
// Tool-result blocks yield the concatenated text of their nested blocks.
func (b Block) PlainText() string {
	switch b.Kind {
	case BlockText:
		if b.Text != nil {
			return b.Text.Text
		}
	case BlockToolResult:
		if b.ToolResult != nil {
			return joinText(b.ToolResult.Blocks)
		}
	case BlockImage:
		if b.Image != nil {
			return b.Image.Placeholder
		}
	case BlockDocument:
		if b.Document != nil {
			return b.Document.Placeholder
		}
	case BlockToolUse:
		// Tool-use blocks have no displayable text.
	}
	return ""
}

func joinText(blocks []Block) string {
	var out string
	for _, b := range blocks {
		if t := b.PlainText(); t != "" {
			if out != "" {
				out += "\n"
			}
			out += t
		}
	}
	return out
}

func cloneBlocks(blocks []Block) []Block {
	if blocks == nil {
		return nil
	}
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = b.clone()
	}
	return out
}

// clone copies the block's variant struct so the copy has storage of its
// own. Nested tool-result blocks are cloned recursively.
func (b Block) clone() Block {
	switch b.Kind {
	case BlockText:
		if b.Text != nil {
			t := *b.Text
			b.Text = &t
		}
	case BlockToolUse:
		if b.ToolUse != nil {
			tu := *b.ToolUse
			b.ToolUse = &tu
		}
	case BlockToolResult:
		if b.ToolResult != nil {
			tr := *b.ToolResult
			tr.Blocks = cloneBlocks(tr.Blocks)
			b.ToolResult = &tr
		}
	case BlockImage:
		if b.Image != nil {
			img := *b.Image
			b.Image = &img
		}
	case BlockDocument:
		if b.Document != nil {
			doc := *b.Document
			b.Document = &doc
		}
	}
	return b
}

// releasePayload drops binary payloads from a single block, returning the
// number of bytes freed. Nested tool-result blocks are walked recursively.
func (b *Block) releasePayload() int {
	freed := 0
	switch b.Kind {
	case BlockImage:
		if b.Image != nil && len(b.Image.Data) > 0 {
			freed = len(b.Image.Data)
			b.Image.Placeholder = fmt.Sprintf("[%s content: %d bytes]", b.Image.MediaType, freed)
			b.Image.Data = nil
		}
	case BlockDocument:
		if b.Document != nil && len(b.Document.Data) > 0 {
			freed = len(b.Document.Data)
			b.Document.Placeholder = fmt.Sprintf("[%s content: %d bytes]", b.Document.MediaType, freed)
			b.Document.Data = nil
		}
	case BlockToolResult:
		if b.ToolResult != nil {
			for i := range b.ToolResult.Blocks {
				freed += b.ToolResult.Blocks[i].releasePayload()
			}
		}
	case BlockText, BlockToolUse:
		// No binary payload.
	}
	return freed
}
