package provider

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Swarm-Code/ceregrep-client-sub000/message"
)

// Client drives the full request pipeline around one backend adapter:
// sanitize, pace, retry, repair, account. The agent loop talks to backends
// only through a Client.
type Client struct {
	adapter Adapter
	retry   RetryPolicy
	pacer   *Pacer
	limits  SanitizeLimits
	rates   RateTable
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) { c.retry = p }
}

// WithPacer installs a rate pacer. Share one pacer across clients talking
// to the same backend to make the minimum interval process-wide.
func WithPacer(p *Pacer) ClientOption {
	return func(c *Client) { c.pacer = p }
}

// WithSanitizeLimits overrides the outbound sanitization limits.
func WithSanitizeLimits(l SanitizeLimits) ClientOption {
	return func(c *Client) { c.limits = l }
}

// WithRateTable overrides the cost rate table.
func WithRateTable(t RateTable) ClientOption {
	return func(c *Client) { c.rates = t }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient wraps an adapter with the default pipeline.
func NewClient(adapter Adapter, opts ...ClientOption) *Client {
	c := &Client{
		adapter: adapter,
		retry:   DefaultRetryPolicy(),
		limits:  DefaultSanitizeLimits(),
		rates:   DefaultRateTable(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backend returns the wrapped adapter's name.
func (c *Client) Backend() string {
	if c.adapter == nil {
		return ""
	}
	return c.adapter.Name()
}

// Complete sends one request through the pipeline and returns the assistant
// response with usage, cost, duration, and stop reason attached. On success
// the binary payloads of the caller's messages are released in place, since
// the backend has consumed them.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.adapter == nil {
		return nil, &ConfigError{AdapterError: AdapterError{Message: "client has no backend adapter"}}
	}

	wireReq := SanitizeRequest(req, c.limits)

	policy := c.retry
	userRetry := policy.OnRetry
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		c.logger.Warn("retrying backend request",
			"backend", c.adapter.Name(), "attempt", attempt, "delay", delay, "error", err)
		if userRetry != nil {
			userRetry(err, attempt, delay)
		}
	}

	start := time.Now()
	resp, err := Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
		if perr := c.pacer.Wait(ctx); perr != nil {
			return nil, &AbortError{AdapterError: AdapterError{
				Message: "cancelled while pacing",
				Cause:   perr,
			}}
		}
		return c.adapter.Complete(ctx, wireReq)
	})
	if err != nil {
		var invalid *InvalidRequestError
		if errors.As(err, &invalid) && invalid.Digest.MessageCount == 0 {
			invalid.Digest = DigestRequest(wireReq)
		}
		return nil, err
	}

	c.repairToolUses(resp)

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	resp.Message.Role = message.RoleAssistant
	resp.Message.Meta = &message.Meta{
		Usage:      resp.Usage,
		Duration:   time.Since(start),
		CostUSD:    c.rates.Cost(model, resp.Usage),
		StopReason: resp.StopReason,
		Model:      model,
	}

	for i := range req.Messages {
		req.Messages[i].ReleasePayloads()
	}

	return resp, nil
}

// repairToolUses runs the repair pass over every tool-use block in the
// response. Unrepairable arguments leave Input nil with InputError set; the
// loop is never blocked by one bad tool call.
func (c *Client) repairToolUses(resp *Response) {
	for i := range resp.Message.Blocks {
		b := &resp.Message.Blocks[i]
		if b.Kind != message.BlockToolUse || b.ToolUse == nil {
			continue
		}
		tu := b.ToolUse
		if len(tu.Input) > 0 && json.Valid(tu.Input) {
			continue
		}

		raw := tu.RawInput
		if raw == "" {
			raw = string(tu.Input)
		}
		input, repaired, err := ParseToolInput(raw)
		if err != nil {
			tu.Input = nil
			tu.InputError = err.Error()
			c.logger.Warn("tool arguments unparseable after repair",
				"tool", tu.Name, "id", tu.ID)
			continue
		}
		tu.Input = input
		tu.InputError = ""
		if repaired {
			c.logger.Debug("repaired malformed tool arguments",
				"tool", tu.Name, "id", tu.ID)
		}
	}
}
