package agent

import (
	"fmt"
	"strings"
)

// DefaultOutputChars caps tool output sent back to the model when no
// per-tool override is configured.
const DefaultOutputChars = 30000

// TruncationLimits configures output ceilings for tool results. Per-tool
// overrides take precedence over the defaults; a zero ceiling disables that
// cut.
type TruncationLimits struct {
	MaxChars map[string]int
	MaxLines map[string]int

	// DefaultMaxChars applies to tools without an override. Zero means
	// DefaultOutputChars.
	DefaultMaxChars int

	// DefaultMaxLines applies to tools without an override. Zero means no
	// line ceiling.
	DefaultMaxLines int
}

// DefaultTruncationLimits returns the stock limits.
func DefaultTruncationLimits() TruncationLimits {
	return TruncationLimits{DefaultMaxChars: DefaultOutputChars}
}

func (l TruncationLimits) forTool(name string) (maxChars, maxLines int) {
	maxChars = l.DefaultMaxChars
	if maxChars == 0 {
		maxChars = DefaultOutputChars
	}
	if v, ok := l.MaxChars[name]; ok {
		maxChars = v
	}
	maxLines = l.DefaultMaxLines
	if v, ok := l.MaxLines[name]; ok {
		maxLines = v
	}
	return maxChars, maxLines
}

// Apply truncates one tool's output under its configured ceilings.
func (l TruncationLimits) Apply(toolName, output string) string {
	maxChars, maxLines := l.forTool(toolName)
	out := Truncate(output, maxChars)
	if maxLines > 0 {
		out = TruncateLines(out, maxLines)
	}
	return out
}

// Truncate caps output at maxChars, keeping the head and tail and replacing
// the middle with a marker stating the original size and the fraction still
// visible. Cuts fall on line boundaries when the content has them; a single
// oversized line is cut mid-line since no boundary exists.
func Truncate(output string, maxChars int) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}

	head, tail, omittedLines := splitHeadTail(output, maxChars/2)
	shown := len(head) + len(tail)
	marker := fmt.Sprintf(
		"\n[... output truncated: showing %d of %d characters (%d%%), %d lines omitted ...]\n",
		shown, len(output), shown*100/len(output), omittedLines)
	return head + marker + tail
}

// splitHeadTail takes as many whole lines as fit the budget from each end of
// output and counts the newlines left out of the middle.
func splitHeadTail(output string, budget int) (head, tail string, omittedLines int) {
	lines := strings.SplitAfter(output, "\n")

	headEnd := 0
	i := 0
	for ; i < len(lines); i++ {
		if headEnd+len(lines[i]) > budget {
			break
		}
		headEnd += len(lines[i])
	}

	tailStart := len(output)
	for j := len(lines) - 1; j >= i; j-- {
		if (len(output)-tailStart)+len(lines[j]) > budget {
			break
		}
		tailStart -= len(lines[j])
	}

	if headEnd == 0 && tailStart == len(output) {
		head = output[:budget]
		tail = output[len(output)-budget:]
		return head, tail, strings.Count(output[budget:len(output)-budget], "\n")
	}
	return output[:headEnd], output[tailStart:], strings.Count(output[headEnd:tailStart], "\n")
}

// TruncateLines caps output at maxLines using a head/tail split with an
// omission marker in the middle.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}
