package compact

// DefaultThreshold is the fraction of the model's context window that may
// fill before compaction becomes necessary.
const DefaultThreshold = 0.85

// minPreserved is the smallest number of trailing messages any strategy
// keeps, no matter how large individual messages run.
const minPreserved = 3

// Window tracks a model's context budget and decides when a conversation has
// grown past the point where it must be compacted before the next request.
type Window struct {
	// ContextLength is the model's total context window in tokens.
	ContextLength int

	// Threshold is the fill fraction that triggers compaction. Zero or
	// negative means DefaultThreshold.
	Threshold float64
}

// NewWindow returns a Window for a model with the given context length,
// using the default threshold.
func NewWindow(contextLength int) Window {
	return Window{ContextLength: contextLength}
}

func (w Window) threshold() float64 {
	if w.Threshold <= 0 {
		return DefaultThreshold
	}
	return w.Threshold
}

// Limit returns the token count above which compaction is needed.
func (w Window) Limit() int {
	return int(float64(w.ContextLength) * w.threshold())
}

// NeedsCompaction reports whether a conversation currently holding
// totalTokens must be compacted before growing further. The comparison is
// strict: a conversation exactly at the limit still fits.
func (w Window) NeedsCompaction(totalTokens int) bool {
	return totalTokens > w.Limit()
}

// PreserveEstimate converts a token budget into a message count by dividing
// through the average message size. It never returns fewer than three
// messages, so a handful of oversized turns cannot starve retention
// entirely.
func PreserveEstimate(budgetTokens, avgTokensPerMessage int) int {
	if avgTokensPerMessage <= 0 {
		return minPreserved
	}
	n := budgetTokens / avgTokensPerMessage
	if n < minPreserved {
		n = minPreserved
	}
	return n
}
