package compact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Swarm-Code/ceregrep-client-sub000/message"
	"github.com/Swarm-Code/ceregrep-client-sub000/provider"
	"github.com/Swarm-Code/ceregrep-client-sub000/tokens"
)

// Strategy selects how a Compactor shrinks a conversation.
type Strategy string

const (
	// PreserveRecent keeps only the most recent messages, as many as fit
	// the configured token budget. No model calls are made.
	PreserveRecent Strategy = "preserve_recent"

	// PreserveImportant keeps the most recent messages plus every earlier
	// user message and any earlier assistant message that reports a
	// problem. No model calls are made.
	PreserveImportant Strategy = "preserve_important"

	// SmartCompression keeps the recent tail verbatim and replaces the
	// older remainder with a single model-written summary. A failed
	// summary call degrades to PreserveRecent.
	SmartCompression Strategy = "smart_compression"

	// AutoCompact replaces the entire conversation with one synthetic
	// message assembled from eight parallel extraction passes.
	AutoCompact Strategy = "auto_compact"
)

// DefaultMaxTokens is the token budget a compacted history should fit when
// the caller does not set one.
const DefaultMaxTokens = 8192

// DefaultRecentFloor is how many trailing messages PreserveImportant always
// keeps.
const DefaultRecentFloor = 5

// summaryBudget caps the response size of the SmartCompression summary call.
const summaryBudget = 2048

// Config tunes a Compactor. The zero value selects PreserveRecent with
// default budgets.
type Config struct {
	// Strategy picks the compaction algorithm. Empty means PreserveRecent.
	Strategy Strategy

	// MaxTokens is the token budget the compacted history should fit.
	// Zero means DefaultMaxTokens.
	MaxTokens int

	// RecentFloor is the number of trailing messages PreserveImportant
	// always keeps. Zero means DefaultRecentFloor.
	RecentFloor int

	// Model overrides the model used for summary and extraction calls.
	// Empty lets the provider client choose.
	Model string
}

// Completer is the one provider capability compaction needs. *provider.Client
// satisfies it.
type Completer interface {
	Complete(ctx context.Context, req provider.Request) (*provider.Response, error)
}

// Section is one extraction pass's output under AutoCompact.
type Section struct {
	Title   string
	Content string
	Failed  bool
}

// Result describes one compaction pass.
type Result struct {
	// Messages is the compacted history, ready to replace the original.
	Messages []message.Message

	// Summary is the synthetic assistant message produced by the
	// model-backed strategies; nil for the pure retention strategies.
	Summary *message.Message

	// Sections holds the per-section extraction outputs when the
	// AutoCompact strategy ran.
	Sections []Section

	// Preserved counts original messages kept verbatim; Removed counts
	// original messages dropped or folded into the summary.
	Preserved int
	Removed   int
}

// Compactor applies one compaction strategy to conversation histories.
type Compactor struct {
	cfg       Config
	completer Completer
	counter   tokens.Counter
	logger    *slog.Logger
}

// Option configures a Compactor.
type Option func(*Compactor)

// WithCompleter supplies the provider client used by the model-backed
// strategies. The pure retention strategies never touch it.
func WithCompleter(cp Completer) Option {
	return func(c *Compactor) { c.completer = cp }
}

// WithCounter overrides the token counter used to derive retention budgets.
func WithCounter(tc tokens.Counter) Option {
	return func(c *Compactor) { c.counter = tc }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compactor) { c.logger = l }
}

// New returns a Compactor for the given config.
func New(cfg Config, opts ...Option) *Compactor {
	c := &Compactor{
		cfg:     cfg,
		counter: tokens.NewCounter(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compact shrinks history according to the configured strategy and reports
// what was kept, dropped, and synthesized. The input history is never
// modified: kept messages are returned as independent copies, so later
// in-place payload releases on either side cannot reach across.
func (c *Compactor) Compact(ctx context.Context, history []message.Message) (*Result, error) {
	if len(history) == 0 {
		return &Result{}, nil
	}
	switch c.cfg.Strategy {
	case "", PreserveRecent:
		return c.preserveRecent(history), nil
	case PreserveImportant:
		return c.preserveImportant(history), nil
	case SmartCompression, AutoCompact:
		if c.completer == nil {
			return nil, fmt.Errorf("compact: strategy %q requires a completer", c.cfg.Strategy)
		}
	default:
		return nil, fmt.Errorf("compact: unknown strategy %q", c.cfg.Strategy)
	}
	if c.cfg.Strategy == SmartCompression {
		return c.smartCompression(ctx, history), nil
	}
	return c.autoCompact(ctx, history)
}

func (c *Compactor) maxTokens() int {
	if c.cfg.MaxTokens > 0 {
		return c.cfg.MaxTokens
	}
	return DefaultMaxTokens
}

func (c *Compactor) recentFloor() int {
	if c.cfg.RecentFloor > 0 {
		return c.cfg.RecentFloor
	}
	return DefaultRecentFloor
}

// recentBudget derives how many trailing messages fit the token budget.
func (c *Compactor) recentBudget(history []message.Message) int {
	total := tokens.CountHistory(c.counter, history)
	return PreserveEstimate(c.maxTokens(), total/len(history))
}

func (c *Compactor) preserveRecent(history []message.Message) *Result {
	keep := c.recentBudget(history)
	if keep >= len(history) {
		return &Result{Messages: cloneHistory(history), Preserved: len(history)}
	}
	kept := cloneHistory(history[len(history)-keep:])
	return &Result{
		Messages:  kept,
		Preserved: len(kept),
		Removed:   len(history) - len(kept),
	}
}

// problemKeywords marks assistant messages PreserveImportant keeps even when
// they fall outside the recent tail.
var problemKeywords = []string{"error", "failure", "warning", "critical", "issue"}

func (c *Compactor) preserveImportant(history []message.Message) *Result {
	floor := c.recentFloor()
	if len(history) <= floor {
		return &Result{Messages: cloneHistory(history), Preserved: len(history)}
	}
	cut := len(history) - floor
	kept := make([]message.Message, 0, len(history))
	for i, m := range history {
		if i >= cut || keepImportant(m) {
			kept = append(kept, m.Clone())
		}
	}
	return &Result{
		Messages:  kept,
		Preserved: len(kept),
		Removed:   len(history) - len(kept),
	}
}

func keepImportant(m message.Message) bool {
	switch m.Role {
	case message.RoleUser:
		return true
	case message.RoleAssistant:
		text := strings.ToLower(m.Text())
		for _, kw := range problemKeywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
	}
	return false
}

// smartCompression keeps roughly the most recent 30% of messages verbatim
// and asks the model to fold everything older into one summary message. Any
// failure on the summary call degrades to plain tail retention rather than
// losing the conversation.
func (c *Compactor) smartCompression(ctx context.Context, history []message.Message) *Result {
	keep := len(history) * 3 / 10
	if keep < minPreserved {
		keep = minPreserved
	}
	if keep >= len(history) {
		return &Result{Messages: cloneHistory(history), Preserved: len(history)}
	}
	older := history[:len(history)-keep]
	recent := history[len(history)-keep:]

	summary, err := c.summarize(ctx, older)
	if err != nil {
		c.logger.Warn("summary call failed, falling back to tail retention",
			"strategy", SmartCompression, "error", err)
		return c.preserveRecent(history)
	}

	msgs := make([]message.Message, 0, keep+1)
	msgs = append(msgs, *summary)
	msgs = append(msgs, cloneHistory(recent)...)
	return &Result{
		Messages:  msgs,
		Summary:   summary,
		Preserved: keep,
		Removed:   len(older),
	}
}

const summarySystem = "You are compressing a conversation between a user " +
	"and a coding agent so it can continue in a smaller context window."

const summaryInstruction = "Summarize the conversation so far. Keep file " +
	"paths, commands, code identifiers, decisions, and unresolved problems. " +
	"Write plain prose with no preamble."

func (c *Compactor) summarize(ctx context.Context, older []message.Message) (*message.Message, error) {
	req := provider.Request{
		Model:     c.cfg.Model,
		System:    summarySystem,
		Messages:  append(cloneHistory(older), message.NewUserText(summaryInstruction)),
		MaxTokens: summaryBudget,
	}
	resp, err := c.completer.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(resp.Message.Text())
	if text == "" {
		return nil, fmt.Errorf("compact: summary response was empty")
	}
	m := message.NewAssistantText("[Conversation summary]\n\n" + text)
	return &m, nil
}

// cloneHistory copies the history with independent block storage. The
// provider client releases payloads on request messages in place after a
// successful send, and the extraction passes send their copies
// concurrently, so messages handed to the completer must not share blocks
// with the caller's history or with each other.
func cloneHistory(history []message.Message) []message.Message {
	out := make([]message.Message, len(history))
	for i, m := range history {
		out[i] = m.Clone()
	}
	return out
}
