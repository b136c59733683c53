package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"

	"github.com/Swarm-Code/ceregrep-client-sub000/message"
	"github.com/Swarm-Code/ceregrep-client-sub000/tokens"
)

// ChatAPI is the gollm-backed adapter profile. It serves the hosted chat
// backends (anthropic, openai) through gollm's unified prompt interface,
// flattening the structured history into a single prompt and recovering
// tool calls from the generated text.
type ChatAPI struct {
	backend string
	llm     gollm.LLM
	model   string
}

// ChatAPIOption configures a ChatAPI adapter.
type ChatAPIOption func(*chatAPIConfig)

type chatAPIConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key. When empty, gollm reads it from the
// backend's conventional environment variable.
func WithAPIKey(key string) ChatAPIOption {
	return func(c *chatAPIConfig) { c.apiKey = key }
}

// WithModel sets the default model for the adapter.
func WithModel(model string) ChatAPIOption {
	return func(c *chatAPIConfig) { c.model = model }
}

// WithMaxTokens sets the default completion budget.
func WithMaxTokens(n int) ChatAPIOption {
	return func(c *chatAPIConfig) { c.maxTokens = n }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) ChatAPIOption {
	return func(c *chatAPIConfig) { c.temperature = t }
}

// WithGollmOptions appends extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) ChatAPIOption {
	return func(c *chatAPIConfig) { c.extraOpts = append(c.extraOpts, opts...) }
}

// NewChatAPI creates a ChatAPI adapter for the given gollm backend name.
func NewChatAPI(backend string, opts ...ChatAPIOption) (*ChatAPI, error) {
	cfg := &chatAPIConfig{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		switch backend {
		case "openai":
			model = "gpt-5.2"
		default:
			model = "claude-sonnet-4-5"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(backend),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // The client handles retries.
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigError{AdapterError: AdapterError{
			Message: fmt.Sprintf("creating gollm LLM for backend %s", backend),
			Cause:   err,
		}}
	}

	return &ChatAPI{backend: backend, llm: llm, model: model}, nil
}

// NewChatAPIFromLLM wraps an existing gollm.LLM instance.
func NewChatAPIFromLLM(backend string, llm gollm.LLM) *ChatAPI {
	return &ChatAPI{backend: backend, llm: llm}
}

// Name returns the backend identifier.
func (a *ChatAPI) Name() string {
	return a.backend
}

// Complete sends one blocking completion request.
func (a *ChatAPI) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)
	a.applyRequestOptions(req)

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}

	return a.buildResponse(req, text), nil
}

// translateRequest flattens the structured history into a gollm Prompt.
// Assistant turns and tool results become prefixed context lines since the
// gollm prompt interface carries a single user text.
func (a *ChatAPI) translateRequest(req Request) *gollm.Prompt {
	promptText := flattenHistory(req.Messages)
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption

	if req.System != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(req.System), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens > 0 {
		promptOpts = append(promptOpts, gollm.WithMaxLength(req.MaxTokens))
	}

	if len(req.Tools) > 0 {
		gtools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			gtools = append(gtools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.InputSchema,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(gtools))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// flattenHistory renders the structured history as prefixed context lines.
func flattenHistory(history []message.Message) string {
	var parts []string
	for _, msg := range history {
		switch msg.Role {
		case message.RoleUser:
			if text := msg.Text(); text != "" {
				parts = append(parts, text)
			}
		case message.RoleAssistant:
			if text := msg.Text(); text != "" {
				parts = append(parts, "[Assistant]: "+text)
			}
			for _, tu := range msg.ToolUses() {
				parts = append(parts, fmt.Sprintf("[Tool Call] %s: %s", tu.Name, marshalToolInput(tu)))
			}
		case message.RoleToolProgress:
			for _, tr := range msg.ToolResults() {
				prefix := "[Tool Result]"
				if tr.IsError {
					prefix = "[Tool Error]"
				}
				parts = append(parts, prefix+": "+resultText(tr))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// applyRequestOptions pushes request-level overrides into the gollm LLM.
func (a *ChatAPI) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens > 0 {
		a.llm.SetOption("max_tokens", req.MaxTokens)
	}
}

// buildResponse constructs a Response from the generated text, recovering
// any tool calls gollm embedded in it.
func (a *ChatAPI) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	var blocks []message.Block
	calls := parseEmbeddedToolCalls(text)

	cleaned := stripToolCallJSON(text, len(calls) > 0)
	if cleaned != "" {
		blocks = append(blocks, message.Text(cleaned))
	}
	for _, b := range calls {
		blocks = append(blocks, b)
	}
	if len(blocks) == 0 {
		blocks = []message.Block{message.Text(text)}
	}

	stop := message.StopEndTurn
	if len(calls) > 0 {
		stop = message.StopToolUse
	}

	return &Response{
		Message:    message.New(message.RoleAssistant, blocks...),
		Usage:      estimateUsage(req, text),
		StopReason: stop,
		Model:      model,
	}
}

// parseEmbeddedToolCalls extracts tool calls that gollm returns as JSON in
// the response text. Arguments are kept raw so the client's repair pass can
// handle malformed payloads.
func parseEmbeddedToolCalls(text string) []message.Block {
	type rawCall struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	var rawCalls []rawCall

	if start := strings.Index(text, `{"tool_calls"`); start != -1 {
		var wrapper struct {
			ToolCalls []rawCall `json:"tool_calls"`
		}
		dec := json.NewDecoder(strings.NewReader(text[start:]))
		if err := dec.Decode(&wrapper); err == nil {
			rawCalls = wrapper.ToolCalls
		}
	} else if start := strings.Index(text, `[{"name"`); start != -1 {
		dec := json.NewDecoder(strings.NewReader(text[start:]))
		var list []rawCall
		if err := dec.Decode(&list); err == nil {
			rawCalls = list
		}
	}

	if len(rawCalls) == 0 {
		return nil
	}

	blocks := make([]message.Block, 0, len(rawCalls))
	for _, rc := range rawCalls {
		if rc.Name == "" {
			continue
		}
		id := "call_" + uuid.NewString()[:8]
		b := message.ToolUse(id, rc.Name, nil)
		b.ToolUse.RawInput = string(rc.Arguments)
		if json.Valid(rc.Arguments) {
			b.ToolUse.Input = rc.Arguments
		}
		blocks = append(blocks, b)
	}
	return blocks
}

// stripToolCallJSON removes the parsed tool call JSON from the visible text.
func stripToolCallJSON(text string, hadCalls bool) string {
	if !hadCalls {
		return strings.TrimSpace(text)
	}
	result := text
	for _, pattern := range []string{`{"tool_calls"`, `[{"name"`} {
		if idx := strings.Index(result, pattern); idx != -1 {
			result = result[:idx]
		}
	}
	return strings.TrimSpace(result)
}

// resultText joins the text content of a tool result's nested blocks.
func resultText(tr message.ToolResultBlock) string {
	var parts []string
	for _, b := range tr.Blocks {
		if t := b.PlainText(); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// estimateUsage approximates token usage from text length. gollm does not
// expose the backend's usage block, so actual counts would require the raw
// wire response.
func estimateUsage(req Request, output string) message.Usage {
	var c tokens.EstimateCounter
	in := tokens.CountHistory(c, req.Messages)
	if req.System != "" {
		in += c.CountText(req.System)
	}
	return message.Usage{
		InputTokens:  in,
		OutputTokens: c.CountText(output),
	}
}

// translateError classifies a gollm error into the adapter error hierarchy.
// gollm flattens backend errors into strings, so classification goes by
// message content.
func (a *ChatAPI) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	backendErr := func(status int, retryable bool) BackendError {
		return BackendError{
			AdapterError: AdapterError{Message: msg, Cause: err},
			Backend:      a.backend,
			StatusCode:   status,
			Retryable:    retryable,
		}
	}

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return &AuthError{BackendError: backendErr(401, false)}
	case strings.Contains(lower, "403") || strings.Contains(lower, "forbidden"):
		return &AuthError{BackendError: backendErr(403, false)}
	case strings.Contains(lower, "404") || strings.Contains(lower, "not found"):
		return &InvalidRequestError{BackendError: backendErr(404, false)}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return &RateLimitError{BackendError: backendErr(429, true)}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		return &ContextLengthError{BackendError: backendErr(413, false)}
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503") || strings.Contains(lower, "internal server") || strings.Contains(lower, "overloaded"):
		return &ServerError{BackendError: backendErr(500, true)}
	case strings.Contains(lower, "context canceled") || strings.Contains(lower, "context cancelled"):
		return &AbortError{AdapterError: AdapterError{Message: msg, Cause: err}}
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return &TimeoutError{AdapterError: AdapterError{Message: msg, Cause: err}}
	default:
		return &NetworkError{AdapterError: AdapterError{Message: msg, Cause: err}}
	}
}
