package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Swarm-Code/ceregrep-client-sub000/message"
)

// SanitizeLimits bounds the outbound request shape.
type SanitizeLimits struct {
	// MaxToolResultChars caps each text block inside a tool result. Larger
	// content is truncated on whole-line boundaries with an explicit marker.
	MaxToolResultChars int

	// MaxHistoryMessages is the hard ceiling on outbound history length.
	// Over the ceiling, only the most recent messages are sent.
	MaxHistoryMessages int
}

// DefaultSanitizeLimits returns the default outbound limits.
func DefaultSanitizeLimits() SanitizeLimits {
	return SanitizeLimits{
		MaxToolResultChars: 30000,
		MaxHistoryMessages: 120,
	}
}

// SanitizeRequest rewrites a request into a wire-safe form: control
// characters are scrubbed from every text field, unparseable tool-use
// argument text is quote-balanced, oversized tool results are truncated,
// the history is trimmed to the message ceiling, and tool pairings broken
// by trimming or cancellation are repaired. Sanitization is total: the
// result always encodes.
func SanitizeRequest(req Request, limits SanitizeLimits) Request {
	out := req
	out.System = scrubText(req.System)
	out.Messages = trimHistory(req.Messages, limits.MaxHistoryMessages)
	out.Messages = repairPairings(out.Messages)

	sanitized := make([]message.Message, len(out.Messages))
	for i, m := range out.Messages {
		sanitized[i] = sanitizeMessage(m, limits)
	}
	out.Messages = sanitized
	return out
}

// trimHistory keeps the most recent max messages. The request's system
// prompt lives outside the history, so it always survives trimming.
func trimHistory(history []message.Message, max int) []message.Message {
	if max <= 0 || len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}

// repairPairings fixes tool pairings broken by trimming or a cancelled
// dispatch: results whose tool_use was trimmed away are dropped, and
// tool_use blocks that never received a result are rewritten as plain text
// so strict backends do not reject the history.
func repairPairings(history []message.Message) []message.Message {
	declared := make(map[string]bool)
	answered := make(map[string]bool)
	for _, m := range history {
		for _, b := range m.Blocks {
			switch b.Kind {
			case message.BlockToolUse:
				if b.ToolUse != nil {
					declared[b.ToolUse.ID] = true
				}
			case message.BlockToolResult:
				if b.ToolResult != nil && declared[b.ToolResult.ToolUseID] {
					answered[b.ToolResult.ToolUseID] = true
				}
			case message.BlockText, message.BlockImage, message.BlockDocument:
			}
		}
	}

	var out []message.Message
	for _, m := range history {
		var blocks []message.Block
		for _, b := range m.Blocks {
			switch b.Kind {
			case message.BlockToolUse:
				if b.ToolUse != nil && !answered[b.ToolUse.ID] {
					blocks = append(blocks, message.Text(fmt.Sprintf(
						"[tool call interrupted: id=%s name=%s]", b.ToolUse.ID, b.ToolUse.Name)))
					continue
				}
				blocks = append(blocks, b)
			case message.BlockToolResult:
				if b.ToolResult != nil && !declared[b.ToolResult.ToolUseID] {
					continue // orphaned result; its tool_use was trimmed away
				}
				blocks = append(blocks, b)
			default:
				blocks = append(blocks, b)
			}
		}
		if len(blocks) == 0 {
			continue
		}
		m.Blocks = blocks
		out = append(out, m)
	}
	return out
}

func sanitizeMessage(m message.Message, limits SanitizeLimits) message.Message {
	blocks := make([]message.Block, len(m.Blocks))
	for i, b := range m.Blocks {
		blocks[i] = sanitizeBlock(b, limits, false)
	}
	m.Blocks = blocks
	return m
}

func sanitizeBlock(b message.Block, limits SanitizeLimits, insideResult bool) message.Block {
	switch b.Kind {
	case message.BlockText:
		if b.Text != nil {
			text := scrubText(b.Text.Text)
			if insideResult {
				text = capResultText(text, limits.MaxToolResultChars)
			}
			b.Text = &message.TextBlock{Text: text}
		}
	case message.BlockToolUse:
		if b.ToolUse != nil {
			tu := *b.ToolUse
			if len(tu.Input) == 0 && tu.RawInput != "" {
				// Unparsed argument text is re-serialized verbatim; make it
				// at least string-safe for the wire.
				tu.RawInput = balanceQuotes(escapeControlChars(tu.RawInput))
			}
			b.ToolUse = &tu
		}
	case message.BlockToolResult:
		if b.ToolResult != nil {
			tr := *b.ToolResult
			nested := make([]message.Block, len(tr.Blocks))
			for i, nb := range tr.Blocks {
				nested[i] = sanitizeBlock(nb, limits, true)
			}
			tr.Blocks = nested
			b.ToolResult = &tr
		}
	case message.BlockImage, message.BlockDocument:
		// Binary payloads are encoded by the wire layer; nothing to scrub.
	}
	return b
}

// scrubText removes control characters that backends reject, keeping
// newlines and tabs. CRLF is normalized to LF.
func scrubText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7F {
			return -1
		}
		return r
	}, s)
}

// capResultText truncates oversized text on whole-line boundaries, keeping
// the head and tail with a marker stating the original size and the shown
// fraction. Content without line structure falls back to a character split.
func capResultText(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}

	headBudget := maxChars * 3 / 5
	tailBudget := maxChars - headBudget

	head := text[:headBudget]
	tail := text[len(text)-tailBudget:]

	if strings.Contains(text, "\n") {
		if i := strings.LastIndexByte(head, '\n'); i > 0 {
			head = head[:i+1]
		}
		if i := strings.IndexByte(tail, '\n'); i >= 0 {
			tail = tail[i+1:]
		}
	}

	shown := len(head) + len(tail)
	pct := shown * 100 / len(text)
	middle := text[len(head) : len(text)-len(tail)]
	omitted := strings.Count(middle, "\n")

	marker := fmt.Sprintf(
		"\n[Output truncated: showing %d of %d characters (%d%%). %d lines omitted from the middle.]\n",
		shown, len(text), pct, omitted)
	return head + marker + tail
}

// marshalToolInput returns the wire form of a tool-use block's arguments:
// the parsed input when available, otherwise the sanitized raw text, and
// "{}" when the call carried no arguments at all.
func marshalToolInput(tu message.ToolUseBlock) string {
	if len(tu.Input) > 0 {
		return string(tu.Input)
	}
	if tu.RawInput != "" {
		return tu.RawInput
	}
	return "{}"
}

// mustJSON marshals v, falling back to a quoted error string. Sanitized
// request data never actually fails to encode.
func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprintf("encode error: %v", err))
	}
	return data
}
