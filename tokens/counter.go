package tokens

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/Swarm-Code/ceregrep-client-sub000/message"
)

const (
	// estimateCharsPerToken is the character-per-token ratio used when no
	// encoding is available. Matches the common 4-chars-per-token rule.
	estimateCharsPerToken = 4

	// imagePayloadTokens approximates the cost of an unreleased image
	// payload in the context window.
	imagePayloadTokens = 1600

	// messageOverheadTokens accounts for per-message role framing on the
	// wire.
	messageOverheadTokens = 4

	defaultEncoding = "cl100k_base"
)

// Counter counts tokens in a piece of text.
type Counter interface {
	CountText(text string) int
}

// NewCounter returns an encoding-backed counter, falling back to the
// character estimator when the encoding cannot be initialized. Counting is
// therefore always available.
func NewCounter() Counter {
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return EstimateCounter{}
	}
	return &EncodingCounter{enc: enc}
}

// EncodingCounter counts with a BPE encoding.
type EncodingCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *EncodingCounter) CountText(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// EstimateCounter approximates token counts from character length.
type EstimateCounter struct{}

func (EstimateCounter) CountText(text string) int {
	if text == "" {
		return 0
	}
	n := (len(text) + estimateCharsPerToken - 1) / estimateCharsPerToken
	if n < 1 {
		n = 1
	}
	return n
}

// CountMessage counts the tokens of one message, including per-message
// framing overhead.
func CountMessage(c Counter, m message.Message) int {
	total := messageOverheadTokens
	for _, b := range m.Blocks {
		total += countBlock(c, b)
	}
	return total
}

// CountHistory counts an entire conversation. Recounting an unchanged
// history yields the same total.
func CountHistory(c Counter, history []message.Message) int {
	total := 0
	for _, m := range history {
		total += CountMessage(c, m)
	}
	return total
}

func countBlock(c Counter, b message.Block) int {
	switch b.Kind {
	case message.BlockText:
		if b.Text != nil {
			return c.CountText(b.Text.Text)
		}
	case message.BlockToolUse:
		if b.ToolUse != nil {
			input := b.ToolUse.RawInput
			if input == "" {
				input = string(b.ToolUse.Input)
			}
			return c.CountText(b.ToolUse.Name) + c.CountText(input)
		}
	case message.BlockToolResult:
		if b.ToolResult != nil {
			total := 0
			for _, nested := range b.ToolResult.Blocks {
				total += countBlock(c, nested)
			}
			return total
		}
	case message.BlockImage:
		if b.Image != nil {
			if len(b.Image.Data) > 0 {
				return imagePayloadTokens
			}
			return c.CountText(b.Image.Placeholder)
		}
	case message.BlockDocument:
		if b.Document != nil {
			if len(b.Document.Data) > 0 {
				return len(b.Document.Data) / estimateCharsPerToken
			}
			return c.CountText(b.Document.Placeholder) + c.CountText(b.Document.Name)
		}
	}
	return 0
}
