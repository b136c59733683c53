package agent

import (
	"crypto/sha256"
	"fmt"

	"github.com/Swarm-Code/ceregrep-client-sub000/message"
)

// toolCallSignature computes a deterministic signature for one tool call:
// the tool name plus a hash of its arguments.
func toolCallSignature(tu message.ToolUseBlock) string {
	args := []byte(tu.RawInput)
	if len(tu.Input) > 0 {
		args = tu.Input
	}
	h := sha256.Sum256(args)
	return fmt.Sprintf("%s:%x", tu.Name, h[:8])
}

// recentToolSignatures collects the signatures of the most recent count tool
// calls, in chronological order.
func recentToolSignatures(history []message.Message, count int) []string {
	var sigs []string
	for i := len(history) - 1; i >= 0 && len(sigs) < count; i-- {
		m := history[i]
		if m.Role != message.RoleAssistant {
			continue
		}
		uses := m.ToolUses()
		for j := len(uses) - 1; j >= 0 && len(sigs) < count; j-- {
			sigs = append(sigs, toolCallSignature(uses[j]))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectLoop reports whether the last windowSize tool calls follow a
// repeating pattern of length 1, 2, or 3. Fewer calls than the window means
// no detection.
func DetectLoop(history []message.Message, windowSize int) bool {
	sigs := recentToolSignatures(history, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}
