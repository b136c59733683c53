package tokens

import "github.com/Swarm-Code/ceregrep-client-sub000/message"

// Accountant aggregates usage totals across one agent loop run and tracks
// the most recently observed context size. It is not safe for concurrent
// use; the loop is its only writer.
type Accountant struct {
	counter Counter
	totals  message.Usage

	// lastContext is the backend-reported size of the most recent request
	// (input + output tokens). It overrides the local estimate when larger,
	// since reported usage is ground truth for what the backend actually
	// tokenized.
	lastContext int
}

// NewAccountant creates an accountant using the given counter for local
// estimates.
func NewAccountant(c Counter) *Accountant {
	if c == nil {
		c = EstimateCounter{}
	}
	return &Accountant{counter: c}
}

// Record adds a provider response's usage to the running totals and observes
// the reported context size. Totals never decrease.
func (a *Accountant) Record(u message.Usage) {
	a.totals = a.totals.Add(u)
	if size := u.InputTokens + u.OutputTokens; size > a.lastContext {
		a.lastContext = size
	}
}

// Totals returns the accumulated usage for the run.
func (a *Accountant) Totals() message.Usage {
	return a.totals
}

// ContextTokens returns the best available estimate of the history's size in
// tokens: the local count, or the last backend-reported context size if that
// is larger.
func (a *Accountant) ContextTokens(history []message.Message) int {
	est := CountHistory(a.counter, history)
	if a.lastContext > est {
		return a.lastContext
	}
	return est
}

// ResetContext clears the observed context size. The loop calls this after
// compaction replaces the history, so a stale reported size cannot keep
// re-triggering compaction.
func (a *Accountant) ResetContext() {
	a.lastContext = 0
}
