package message

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// RoleToolProgress marks messages carrying tool-result blocks emitted by
	// the tool executor between assistant turns.
	RoleToolProgress Role = "tool_progress"
)

// StopReason reports why the backend stopped generating an assistant turn.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
	StopError        StopReason = "error"
	StopUnknown      StopReason = "unknown"
)

// Usage holds token counts reported by (or estimated for) one provider
// response. CachedTokens counts input tokens served from the backend's
// prompt cache; they are not included in InputTokens.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	CachedTokens int `json:"cached_tokens,omitempty"`
}

// Add returns the element-wise sum of two usage values.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		CachedTokens: u.CachedTokens + other.CachedTokens,
	}
}

// Total returns input + output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Meta carries provider metadata attached to assistant messages only.
type Meta struct {
	Usage      Usage         `json:"usage"`
	Duration   time.Duration `json:"duration"`
	CostUSD    float64       `json:"cost_usd"`
	StopReason StopReason    `json:"stop_reason"`
	Model      string        `json:"model,omitempty"`
}

// Message is one entry in a conversation history.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Blocks    []Block   `json:"blocks"`
	Meta      *Meta     `json:"meta,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// New creates a message with a fresh id.
func New(role Role, blocks ...Block) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Blocks:    blocks,
		CreatedAt: time.Now(),
	}
}

// NewUserText creates a user message with a single text block.
func NewUserText(text string) Message {
	return New(RoleUser, Text(text))
}

// NewAssistantText creates an assistant message with a single text block.
func NewAssistantText(text string) Message {
	return New(RoleAssistant, Text(text))
}

// NewToolProgress creates a tool-progress message from tool-result blocks.
func NewToolProgress(results ...Block) Message {
	return New(RoleToolProgress, results...)
}

// Text returns the concatenated text of all text blocks in the message.
func (m Message) Text() string {
	var out string
	for _, b := range m.Blocks {
		if b.Kind == BlockText && b.Text != nil {
			if out != "" {
				out += "\n"
			}
			out += b.Text.Text
		}
	}
	return out
}

// ToolUses returns the tool-use blocks of the message in order.
func (m Message) ToolUses() []ToolUseBlock {
	var uses []ToolUseBlock
	for _, b := range m.Blocks {
		if b.Kind == BlockToolUse && b.ToolUse != nil {
			uses = append(uses, *b.ToolUse)
		}
	}
	return uses
}

// ToolResults returns the tool-result blocks of the message in order.
func (m Message) ToolResults() []ToolResultBlock {
	var results []ToolResultBlock
	for _, b := range m.Blocks {
		if b.Kind == BlockToolResult && b.ToolResult != nil {
			results = append(results, *b.ToolResult)
		}
	}
	return results
}

// HasToolUse reports whether the message contains at least one tool-use
// block.
func (m Message) HasToolUse() bool {
	for _, b := range m.Blocks {
		if b.Kind == BlockToolUse {
			return true
		}
	}
	return false
}

// ReleasePayloads replaces binary payloads (image and document bytes) with
// size-bearing placeholders, returning the total bytes freed. Safe to call
// repeatedly; released blocks are left untouched.
func (m *Message) ReleasePayloads() int {
	freed := 0
	for i := range m.Blocks {
		freed += m.Blocks[i].releasePayload()
	}
	return freed
}

// Clone returns a copy of the message whose blocks have independent
// storage: releasing payloads or rewriting blocks on the clone leaves the
// receiver untouched, and vice versa. Payload and argument byte slices are
// shared, not copied; consumers replace those fields wholesale rather than
// writing into them.
func (m Message) Clone() Message {
	out := m
	if m.Meta != nil {
		meta := *m.Meta
		out.Meta = &meta
	}
	out.Blocks = cloneBlocks(m.Blocks)
	return out
}
