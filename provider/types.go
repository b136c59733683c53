package provider

import (
	"context"

	"github.com/Swarm-Code/ceregrep-client-sub000/message"
)

// ToolDef declares a tool to the backend: name, description, and a
// JSON-Schema-like input schema (object with named properties and a
// required subset).
type ToolDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Request is the backend-independent request envelope. The adapter rebuilds
// the wire shape from these fields; internal objects never round-trip raw.
type Request struct {
	Model       string
	System      string
	Messages    []message.Message
	Tools       []ToolDef
	MaxTokens   int
	Temperature *float64
}

// Response is the backend-independent response envelope. Message is a fully
// formed assistant message; tool-use blocks carry the backend's raw argument
// text and are parsed (and if needed repaired) by the Client before the
// response is returned to callers.
type Response struct {
	Message    message.Message
	Usage      message.Usage
	StopReason message.StopReason
	Model      string
}

// Adapter translates requests for one concrete backend. Implementations do
// not retry, pace, or repair; the Client layers those around every adapter
// uniformly.
type Adapter interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}
