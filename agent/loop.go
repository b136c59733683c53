package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Swarm-Code/ceregrep-client-sub000/compact"
	"github.com/Swarm-Code/ceregrep-client-sub000/message"
	"github.com/Swarm-Code/ceregrep-client-sub000/provider"
	"github.com/Swarm-Code/ceregrep-client-sub000/tokens"
)

// State is the loop's position in its lifecycle.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingModel State = "awaiting_model"
	StateToolDispatch  State = "tool_dispatch"
	StateDone          State = "done"
	StateCancelled     State = "cancelled"
	StateFailed        State = "failed"
)

// Outcome classifies how a run ended. Cancellation is its own outcome, never
// folded into failure.
type Outcome string

const (
	OutcomeDone      Outcome = "done"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// DefaultLoopWindow is the repetition detector's sliding window.
const DefaultLoopWindow = 10

// Config wires a Loop. Client is required; everything else has a usable
// zero value.
type Config struct {
	// Client sends provider requests.
	Client *provider.Client

	// Registry supplies the tools offered to the model. Nil means none.
	Registry *Registry

	Model        string
	SystemPrompt string

	// MaxTokens caps each response; zero lets the backend default apply.
	MaxTokens int

	// MaxTurns caps assistant turns per run; zero means unlimited.
	MaxTurns int

	// Window decides when compaction must run. A zero window is derived
	// from the model's catalog entry.
	Window compact.Window

	// Compaction tunes the strategy substituted when the window overflows.
	Compaction compact.Config

	Permission PermissionFunc
	PreHook    PreHook
	PostHook   PostHook
	Limits     TruncationLimits

	// LoopDetection enables the repeated-tool-call guard over LoopWindow
	// calls (DefaultLoopWindow when zero).
	LoopDetection bool
	LoopWindow    int

	// EventBuffer sizes the event channel; zero means 256.
	EventBuffer int

	Counter tokens.Counter
	Logger  *slog.Logger
}

// Loop is the turn-taking state machine for one conversation. It drives one
// run at a time; runs may be issued sequentially, accumulating usage.
type Loop struct {
	id         string
	cfg        Config
	registry   *Registry
	executor   *Executor
	window     compact.Window
	compactor  *compact.Compactor
	counter    tokens.Counter
	accountant *tokens.Accountant
	emitter    *Emitter
	logger     *slog.Logger

	mu       sync.Mutex
	state    State
	steering []string
}

// NewLoop creates a Loop from cfg.
func NewLoop(cfg Config) *Loop {
	id := uuid.NewString()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	counter := cfg.Counter
	if counter == nil {
		counter = tokens.NewCounter()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	window := cfg.Window
	if window.ContextLength == 0 {
		window = compact.NewWindow(provider.ContextWindowFor(cfg.Model))
	}
	emitter := NewEmitter(id, cfg.EventBuffer)

	compactOpts := []compact.Option{
		compact.WithCounter(counter),
		compact.WithLogger(logger),
	}
	if cfg.Client != nil {
		compactOpts = append(compactOpts, compact.WithCompleter(cfg.Client))
	}

	l := &Loop{
		id:         id,
		cfg:        cfg,
		registry:   registry,
		window:     window,
		compactor:  compact.New(cfg.Compaction, compactOpts...),
		counter:    counter,
		accountant: tokens.NewAccountant(counter),
		emitter:    emitter,
		logger:     logger,
		state:      StateIdle,
	}
	l.executor = NewExecutor(registry, ExecutorConfig{
		Permission: cfg.Permission,
		PreHook:    cfg.PreHook,
		PostHook:   cfg.PostHook,
		Limits:     cfg.Limits,
		Logger:     logger,
		Events:     emitter,
	})
	return l
}

// ID returns the run identifier used in events and logs.
func (l *Loop) ID() string { return l.id }

// State returns the loop's current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Events returns the event channel for host integration.
func (l *Loop) Events() <-chan Event {
	return l.emitter.Events()
}

// Usage returns the usage accumulated across this loop's runs.
func (l *Loop) Usage() message.Usage {
	return l.accountant.Totals()
}

// Steer queues guidance that is injected as a user message before the next
// provider call.
func (l *Loop) Steer(text string) {
	l.mu.Lock()
	l.steering = append(l.steering, text)
	l.mu.Unlock()
}

// ObserveRetry matches provider.RetryPolicy's OnRetry callback so hosts can
// surface the client's retry waits on this loop's event stream.
func (l *Loop) ObserveRetry(err error, attempt int, delay time.Duration) {
	l.emitter.Emit(EventRetryWait, map[string]interface{}{
		"attempt": attempt,
		"delay":   delay.String(),
		"error":   fmt.Sprint(err),
	})
}

// Close shuts the event channel. Events emitted afterwards are dropped.
func (l *Loop) Close() {
	l.emitter.Close()
}

// Result is the terminal outcome of one run.
type Result struct {
	Outcome Outcome

	// History is the full updated conversation, including everything
	// appended before a cancellation or failure.
	History []message.Message

	// Usage is the loop's accumulated usage at the end of the run.
	Usage message.Usage

	// Turns counts assistant turns taken during this run.
	Turns int

	// Err carries the terminal error for Failed runs and the cancellation
	// cause for Cancelled ones; nil for Done.
	Err error
}

// RunStream is a handle on an in-flight run. The caller drives it: receive
// from Messages() until it closes, then read Result().
type RunStream struct {
	msgs chan message.Message
	done chan struct{}
	res  *Result
}

// Messages yields each message the run appends (one per assistant turn and
// one per tool result), in order.
func (s *RunStream) Messages() <-chan message.Message {
	return s.msgs
}

// Result blocks until the run finishes and returns its outcome.
func (s *RunStream) Result() *Result {
	<-s.done
	return s.res
}

func (s *RunStream) yield(ctx context.Context, m message.Message) {
	select {
	case s.msgs <- m:
	case <-ctx.Done():
	}
}

// Start begins a run: prior history (possibly empty) plus one new user turn.
// The stream's Messages channel applies ordinary backpressure; an abandoned
// stream still drains when ctx is cancelled.
func (l *Loop) Start(ctx context.Context, history []message.Message, userInput string) *RunStream {
	stream := &RunStream{
		msgs: make(chan message.Message),
		done: make(chan struct{}),
	}

	l.mu.Lock()
	if l.state == StateAwaitingModel || l.state == StateToolDispatch {
		l.mu.Unlock()
		stream.res = &Result{
			Outcome: OutcomeFailed,
			History: history,
			Err:     fmt.Errorf("agent: run already in progress"),
		}
		close(stream.msgs)
		close(stream.done)
		return stream
	}
	l.state = StateAwaitingModel
	l.mu.Unlock()

	go func() {
		res := l.run(ctx, stream, history, userInput)
		l.setState(stateFor(res.Outcome))
		stream.res = res
		close(stream.msgs)
		close(stream.done)
	}()
	return stream
}

// Run drives a run to completion without streaming. The error is non-nil
// only for Failed outcomes; cancellation is reported through the result.
func (l *Loop) Run(ctx context.Context, history []message.Message, userInput string) (*Result, error) {
	stream := l.Start(ctx, history, userInput)
	for range stream.Messages() {
	}
	res := stream.Result()
	if res.Outcome == OutcomeFailed {
		return res, res.Err
	}
	return res, nil
}

func (l *Loop) run(ctx context.Context, stream *RunStream, prior []message.Message, userInput string) *Result {
	hist := append(append([]message.Message(nil), prior...), message.NewUserText(userInput))

	l.emitter.Emit(EventRunStart, map[string]interface{}{
		"prior_messages": len(prior),
	})
	l.logger.Debug("run started", "run_id", l.id, "prior_messages", len(prior))

	turns := 0
	finish := func(outcome Outcome, err error) *Result {
		data := map[string]interface{}{"outcome": string(outcome), "turns": turns}
		if err != nil {
			data["error"] = err.Error()
		}
		l.emitter.Emit(EventRunEnd, data)
		l.logger.Debug("run finished", "run_id", l.id, "outcome", string(outcome), "turns", turns)
		return &Result{
			Outcome: outcome,
			History: hist,
			Usage:   l.accountant.Totals(),
			Turns:   turns,
			Err:     err,
		}
	}

	if l.cfg.Client == nil {
		return finish(OutcomeFailed, fmt.Errorf("agent: no provider client configured"))
	}

	for {
		if l.cfg.MaxTurns > 0 && turns >= l.cfg.MaxTurns {
			return finish(OutcomeFailed, fmt.Errorf("agent: turn ceiling reached after %d turns", turns))
		}
		if ctx.Err() != nil {
			return finish(OutcomeCancelled, ctx.Err())
		}

		hist = l.drainSteering(hist)
		hist = l.maybeCompact(ctx, hist)

		l.setState(StateAwaitingModel)
		l.emitter.Emit(EventModelRequest, map[string]interface{}{
			"messages": len(hist),
		})

		resp, err := l.cfg.Client.Complete(ctx, provider.Request{
			Model:     l.cfg.Model,
			System:    l.cfg.SystemPrompt,
			Messages:  hist,
			Tools:     l.registry.Descriptors(),
			MaxTokens: l.cfg.MaxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				return finish(OutcomeCancelled, err)
			}
			return finish(OutcomeFailed, err)
		}

		l.accountant.Record(resp.Usage)
		hist = append(hist, resp.Message)
		turns++
		l.emitter.Emit(EventModelResponse, map[string]interface{}{
			"stop_reason":   string(resp.StopReason),
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		})
		stream.yield(ctx, resp.Message)

		calls := resp.Message.ToolUses()
		if len(calls) == 0 {
			return finish(OutcomeDone, nil)
		}

		l.setState(StateToolDispatch)
		results, execErr := l.executor.Execute(ctx, calls)
		hist = append(hist, results...)
		for _, m := range results {
			stream.yield(ctx, m)
		}
		if execErr != nil {
			if ctx.Err() != nil {
				return finish(OutcomeCancelled, execErr)
			}
			return finish(OutcomeFailed, execErr)
		}

		if l.cfg.LoopDetection && DetectLoop(hist, l.loopWindow()) {
			warning := fmt.Sprintf("The last %d tool calls follow a repeating pattern. Step back and try a different approach.", l.loopWindow())
			hist = append(hist, message.NewUserText(warning))
			l.emitter.Emit(EventLoopWarning, map[string]interface{}{"message": warning})
			l.logger.Warn("repeating tool calls detected", "run_id", l.id, "window", l.loopWindow())
		}
	}
}

// drainSteering moves queued steering into the history as user messages.
func (l *Loop) drainSteering(hist []message.Message) []message.Message {
	l.mu.Lock()
	queued := l.steering
	l.steering = nil
	l.mu.Unlock()

	for _, text := range queued {
		hist = append(hist, message.NewUserText(text))
		l.emitter.Emit(EventSteering, map[string]interface{}{"content": text})
		l.logger.Debug("steering injected", "run_id", l.id)
	}
	return hist
}

// maybeCompact substitutes a compacted history when the window says the next
// request would not fit. A compaction failure keeps the full history.
func (l *Loop) maybeCompact(ctx context.Context, hist []message.Message) []message.Message {
	total := l.accountant.ContextTokens(hist)
	if !l.window.NeedsCompaction(total) {
		return hist
	}

	l.logger.Info("context window over threshold, compacting",
		"run_id", l.id, "tokens", total, "limit", l.window.Limit())

	res, err := l.compactor.Compact(ctx, hist)
	if err != nil {
		l.logger.Warn("compaction failed, keeping full history", "run_id", l.id, "error", err)
		l.emitter.Emit(EventCompaction, map[string]interface{}{"error": err.Error()})
		return hist
	}

	l.accountant.ResetContext()
	l.emitter.Emit(EventCompaction, map[string]interface{}{
		"removed":   res.Removed,
		"preserved": res.Preserved,
		"messages":  len(res.Messages),
	})
	l.logger.Info("history compacted", "run_id", l.id,
		"removed", res.Removed, "preserved", res.Preserved)
	return res.Messages
}

func (l *Loop) loopWindow() int {
	if l.cfg.LoopWindow > 0 {
		return l.cfg.LoopWindow
	}
	return DefaultLoopWindow
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func stateFor(o Outcome) State {
	switch o {
	case OutcomeDone:
		return StateDone
	case OutcomeCancelled:
		return StateCancelled
	default:
		return StateFailed
	}
}
