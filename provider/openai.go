package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Swarm-Code/ceregrep-client-sub000/message"
)

const httpClientTimeout = 10 * time.Minute

// defaultHTTPClient is shared across adapters so connection pools are reused.
var defaultHTTPClient = &http.Client{
	Timeout: httpClientTimeout,
}

// OpenAICompat serves any OpenAI-compatible chat completions endpoint:
// Fireworks, Groq, Cerebras, vLLM, Ollama, and similar servers. Unlike the
// ChatAPI profile it speaks the wire format directly, so structured tool
// calls and real usage numbers survive the round trip.
type OpenAICompat struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	headers    map[string]string
	httpClient *http.Client
}

// OpenAIConfig configures an OpenAICompat adapter.
type OpenAIConfig struct {
	// BaseURL is the API root, e.g. "https://api.fireworks.ai/inference/v1".
	// The adapter appends "/chat/completions".
	BaseURL string
	// APIKey is sent as a Bearer token when non-empty. Local servers
	// usually ignore it.
	APIKey string
	// Model is the default model when a request names none.
	Model string
	// Name identifies the backend in errors and pacing. Defaults to
	// "openai_compat".
	Name string
	// Headers are extra headers set on every request.
	Headers map[string]string
	// HTTPClient overrides the shared default client.
	HTTPClient *http.Client
}

// NewOpenAICompat creates an adapter for an OpenAI-compatible server.
func NewOpenAICompat(cfg OpenAIConfig) *OpenAICompat {
	name := cfg.Name
	if name == "" {
		name = "openai_compat"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = defaultHTTPClient
	}
	return &OpenAICompat{
		name:       name,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		headers:    cfg.Headers,
		httpClient: client,
	}
}

// Name returns the backend identifier.
func (p *OpenAICompat) Name() string {
	return p.name
}

// Wire structures for the OpenAI chat completions format.

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Tools       []oaiTool    `json:"tools,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	MaxTokens   *int         `json:"max_tokens,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content,omitempty"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type oaiTool struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type oaiToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function,omitempty"`
}

type oaiChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []oaiChoice  `json:"choices"`
	Usage   *oaiUsage    `json:"usage,omitempty"`
	Error   *oaiAPIError `json:"error,omitempty"`
}

type oaiChoice struct {
	Index        int         `json:"index"`
	Message      *oaiMessage `json:"message,omitempty"`
	FinishReason string      `json:"finish_reason"`
}

type oaiUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	TotalTokens         int `json:"total_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details,omitempty"`
}

type oaiAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Complete sends one blocking chat completion request.
func (p *OpenAICompat) Complete(ctx context.Context, req Request) (*Response, error) {
	chatReq := oaiChatRequest{
		Model:       chooseModel(req.Model, p.model),
		Messages:    p.buildMessages(req),
		Tools:       buildWireTools(req.Tools),
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		v := req.MaxTokens
		chatReq.MaxTokens = &v
	}
	if len(chatReq.Messages) == 0 {
		return nil, &ConfigError{AdapterError: AdapterError{Message: "request has no messages"}}
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, &AdapterError{Message: "marshaling chat request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &ConfigError{AdapterError: AdapterError{Message: "building request", Cause: err}}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for key, value := range p.headers {
		if value != "" {
			httpReq.Header.Set(key, value)
		}
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, p.classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{AdapterError: AdapterError{Message: "reading response body", Cause: err}}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessageFrom(respBody)
		return nil, FromStatusCode(p.name, resp.StatusCode, msg, parseRetryAfter(resp.Header.Get("Retry-After")))
	}

	var chatResp oaiChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, &ServerError{BackendError: BackendError{
			AdapterError: AdapterError{Message: "unparseable response body", Cause: err},
			Backend:      p.name,
			StatusCode:   resp.StatusCode,
			Retryable:    true,
		}}
	}
	if chatResp.Error != nil {
		return nil, FromStatusCode(p.name, resp.StatusCode, chatResp.Error.Message, nil)
	}
	if len(chatResp.Choices) == 0 {
		return nil, &ServerError{BackendError: BackendError{
			AdapterError: AdapterError{Message: "response contained no choices"},
			Backend:      p.name,
			Retryable:    true,
		}}
	}

	return p.buildResponse(req, chatResp), nil
}

// buildMessages maps the structured history onto OpenAI wire messages.
// The system prompt leads, assistant tool calls ride their message, and
// each tool result becomes its own role:"tool" message.
func (p *OpenAICompat) buildMessages(req Request) []oaiMessage {
	var result []oaiMessage

	if req.System != "" {
		result = append(result, oaiMessage{Role: "system", Content: req.System})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case message.RoleUser:
			if text := msg.Text(); text != "" {
				result = append(result, oaiMessage{Role: "user", Content: text})
			}
		case message.RoleAssistant:
			text := msg.Text()
			calls := buildWireToolCalls(msg.ToolUses())
			if text == "" && len(calls) == 0 {
				continue
			}
			result = append(result, oaiMessage{
				Role:      "assistant",
				Content:   text,
				ToolCalls: calls,
			})
		case message.RoleToolProgress:
			for _, tr := range msg.ToolResults() {
				result = append(result, oaiMessage{
					Role:       "tool",
					Content:    resultText(tr),
					ToolCallID: tr.ToolUseID,
				})
			}
		}
	}
	return result
}

func buildWireToolCalls(uses []message.ToolUseBlock) []oaiToolCall {
	calls := make([]oaiToolCall, 0, len(uses))
	for _, tu := range uses {
		call := oaiToolCall{ID: tu.ID, Type: "function"}
		call.Function.Name = tu.Name
		call.Function.Arguments = marshalToolInput(tu)
		calls = append(calls, call)
	}
	return calls
}

func buildWireTools(defs []ToolDef) []oaiTool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]oaiTool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, oaiTool{
			Type: "function",
			Function: oaiFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  mustJSON(def.InputSchema),
			},
		})
	}
	return tools
}

// buildResponse converts the wire response into the adapter types. Tool
// call arguments stay raw; the client's repair pass parses them.
func (p *OpenAICompat) buildResponse(req Request, chatResp oaiChatResponse) *Response {
	choice := chatResp.Choices[0]

	var blocks []message.Block
	var gotCalls bool
	if choice.Message != nil {
		if choice.Message.Content != "" {
			blocks = append(blocks, message.Text(choice.Message.Content))
		}
		for i, call := range choice.Message.ToolCalls {
			id := call.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", i)
			}
			b := message.ToolUse(id, call.Function.Name, nil)
			b.ToolUse.RawInput = call.Function.Arguments
			if raw := json.RawMessage(call.Function.Arguments); json.Valid(raw) {
				b.ToolUse.Input = raw
			}
			blocks = append(blocks, b)
			gotCalls = true
		}
	}
	if len(blocks) == 0 {
		blocks = []message.Block{message.Text("")}
	}

	stop := mapFinishReason(choice.FinishReason)
	if gotCalls {
		stop = message.StopToolUse
	}

	model := chatResp.Model
	if model == "" {
		model = chooseModel(req.Model, p.model)
	}

	var usage message.Usage
	if chatResp.Usage != nil {
		usage = message.Usage{
			InputTokens:  chatResp.Usage.PromptTokens,
			OutputTokens: chatResp.Usage.CompletionTokens,
		}
		if d := chatResp.Usage.PromptTokensDetails; d != nil && d.CachedTokens > 0 {
			usage.CachedTokens = d.CachedTokens
			if usage.InputTokens >= d.CachedTokens {
				usage.InputTokens -= d.CachedTokens
			}
		}
	} else {
		var outText string
		if choice.Message != nil {
			outText = choice.Message.Content
		}
		usage = estimateUsage(req, outText)
	}

	return &Response{
		Message:    message.New(message.RoleAssistant, blocks...),
		Usage:      usage,
		StopReason: stop,
		Model:      model,
	}
}

func mapFinishReason(reason string) message.StopReason {
	switch reason {
	case "stop":
		return message.StopEndTurn
	case "tool_calls", "function_call":
		return message.StopToolUse
	case "length":
		return message.StopMaxTokens
	case "":
		return message.StopUnknown
	default:
		return message.StopUnknown
	}
}

func (p *OpenAICompat) classifyTransportError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return &AbortError{AdapterError: AdapterError{Message: "request cancelled", Cause: err}}
	case errors.Is(err, context.DeadlineExceeded):
		return &TimeoutError{AdapterError: AdapterError{Message: "request deadline exceeded", Cause: err}}
	default:
		return &NetworkError{AdapterError: AdapterError{Message: p.name + " request failed", Cause: err}}
	}
}

// errorMessageFrom extracts the error message from an API error body,
// falling back to the raw body.
func errorMessageFrom(body []byte) string {
	var wrapper struct {
		Error *oaiAPIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error != nil && wrapper.Error.Message != "" {
		return wrapper.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 500 {
		msg = msg[:500]
	}
	if msg == "" {
		msg = "request failed"
	}
	return msg
}

// parseRetryAfter reads a Retry-After header as either delta seconds or an
// HTTP date.
func parseRetryAfter(header string) *time.Duration {
	if header == "" {
		return nil
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return &d
		}
	}
	return nil
}

func chooseModel(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}
