package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Swarm-Code/ceregrep-client-sub000/message"
)

// Decision is a permission callback's answer for one tool call.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"

	// Ask defers the decision. The prompt UI lives behind the callback, so
	// the executor re-invokes it once to collect the settled answer; a
	// second ask counts as deny.
	Ask Decision = "ask"
)

// PermissionFunc gates tool execution. The executor consults it for mutating
// and agent tools; read-only tools run without asking.
type PermissionFunc func(ctx context.Context, name string, input json.RawMessage) Decision

// PreHook runs before a tool executes. It may rewrite the input by returning
// a non-nil replacement, veto the call by returning a *Refusal, or stop the
// whole turn by returning a *Halt. Any other error is logged and the call
// proceeds with its original input.
type PreHook func(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error)

// PostHook inspects a finished tool result; it cannot rewrite it. Returning
// a *Halt stops the turn. Any other error is logged and ignored.
type PostHook func(ctx context.Context, name string, result message.Block) error

// Refusal vetoes one tool call from a pre-hook. The reason becomes the error
// result shown to the model.
type Refusal struct {
	Reason string
}

func (r *Refusal) Error() string {
	return "tool call refused: " + r.Reason
}

// Halt aborts the remainder of the turn. Results produced before the halt
// are kept.
type Halt struct {
	Reason string
}

func (h *Halt) Error() string {
	return "turn halted: " + h.Reason
}

// ExecutorConfig wires an Executor's collaborators. Zero values disable the
// optional ones.
type ExecutorConfig struct {
	Permission PermissionFunc
	PreHook    PreHook
	PostHook   PostHook
	Limits     TruncationLimits
	Logger     *slog.Logger
	Events     *Emitter
}

// Executor resolves and runs the tool calls from one assistant turn.
type Executor struct {
	registry   *Registry
	permission PermissionFunc
	preHook    PreHook
	postHook   PostHook
	limits     TruncationLimits
	logger     *slog.Logger
	events     *Emitter
}

// NewExecutor creates an Executor over the given registry.
func NewExecutor(registry *Registry, cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry:   registry,
		permission: cfg.Permission,
		preHook:    cfg.PreHook,
		postHook:   cfg.PostHook,
		limits:     cfg.Limits,
		logger:     logger,
		events:     cfg.Events,
	}
}

// Execute runs every tool-use block from one assistant turn serially, in the
// order the model requested them, and returns one tool-progress message per
// call. Later calls observe the side effects of earlier ones. The error is
// non-nil only when the turn must stop early (a hook halt or cancellation);
// messages produced before the stop are returned either way.
func (e *Executor) Execute(ctx context.Context, calls []message.ToolUseBlock) ([]message.Message, error) {
	msgs := make([]message.Message, 0, len(calls))
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return msgs, err
		}
		block, err := e.executeOne(ctx, call)
		msgs = append(msgs, message.NewToolProgress(block))
		if err != nil {
			return msgs, err
		}
	}
	return msgs, nil
}

func (e *Executor) executeOne(ctx context.Context, call message.ToolUseBlock) (message.Block, error) {
	e.events.Emit(EventToolStart, map[string]interface{}{
		"tool_name": call.Name,
		"call_id":   call.ID,
	})

	fail := func(text string) message.Block {
		e.events.Emit(EventToolEnd, map[string]interface{}{
			"call_id": call.ID,
			"error":   text,
		})
		return message.ErrorResult(call.ID, text)
	}

	if call.InputError != "" {
		return fail(fmt.Sprintf("arguments for tool %s could not be parsed: %s",
			call.Name, call.InputError)), nil
	}

	tool := e.registry.Get(call.Name)
	if tool == nil {
		return fail(fmt.Sprintf("no such tool: %s", call.Name)), nil
	}

	input := call.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}

	if denied, reason := e.gate(ctx, tool, input); denied {
		return fail(reason), nil
	}

	if e.preHook != nil {
		rewritten, err := e.preHook(ctx, call.Name, input)
		if err != nil {
			var refusal *Refusal
			if errors.As(err, &refusal) {
				return fail(refusal.Error()), nil
			}
			var halt *Halt
			if errors.As(err, &halt) {
				return fail(halt.Error()), halt
			}
			e.logger.Warn("pre-hook failed, continuing with original input",
				"tool", call.Name, "error", err)
		} else if rewritten != nil {
			input = rewritten
		}
	}

	output, runErr := e.runTool(ctx, tool, call.ID, input)
	if runErr != nil {
		return fail(fmt.Sprintf("tool error (%s): %v", call.Name, runErr)), nil
	}

	// The event stream carries the full output; only the model-facing
	// result is truncated.
	e.events.Emit(EventToolEnd, map[string]interface{}{
		"call_id": call.ID,
		"output":  output,
	})
	result := message.ToolResult(call.ID, e.limits.Apply(call.Name, output))

	if e.postHook != nil {
		if err := e.postHook(ctx, call.Name, result); err != nil {
			var halt *Halt
			if errors.As(err, &halt) {
				return result, halt
			}
			e.logger.Warn("post-hook failed", "tool", call.Name, "error", err)
		}
	}
	return result, nil
}

// gate applies the permission callback. Read-only tools are auto-allowed; an
// ask that never settles, and any decision other than allow, is a deny.
func (e *Executor) gate(ctx context.Context, tool *Tool, input json.RawMessage) (denied bool, reason string) {
	if e.permission == nil || tool.Capability == CapReadOnly {
		return false, ""
	}
	decision := e.permission(ctx, tool.Name, input)
	if decision == Ask {
		decision = e.permission(ctx, tool.Name, input)
	}
	if decision != Allow {
		return true, fmt.Sprintf("permission denied for tool %s", tool.Name)
	}
	return false, ""
}

// runTool executes the tool body, converting panics into errors so one bad
// tool cannot take down the turn.
func (e *Executor) runTool(ctx context.Context, tool *Tool, callID string, input json.RawMessage) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()

	switch {
	case tool.RunStream != nil:
		emit := func(chunk string) {
			e.events.Emit(EventToolDelta, map[string]interface{}{
				"call_id": callID,
				"chunk":   chunk,
			})
		}
		return tool.RunStream(ctx, input, emit)
	case tool.Run != nil:
		return tool.Run(ctx, input)
	default:
		return "", fmt.Errorf("tool %s has no execution body", tool.Name)
	}
}
