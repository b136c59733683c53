package agent

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/Swarm-Code/ceregrep-client-sub000/message"
)

// callHistory builds an assistant turn plus tool result for each
// name/arguments pair, in order.
func callHistory(calls ...[2]string) []message.Message {
	var hist []message.Message
	for i, c := range calls {
		id := fmt.Sprintf("tu_%d", i)
		hist = append(hist,
			message.New(message.RoleAssistant, message.ToolUse(id, c[0], json.RawMessage(c[1]))),
			message.NewToolProgress(message.ToolResult(id, "ok")),
		)
	}
	return hist
}

func TestDetectLoopRepeatedCall(t *testing.T) {
	var calls [][2]string
	for i := 0; i < 6; i++ {
		calls = append(calls, [2]string{"read_file", `{"path":"a.go"}`})
	}
	if !DetectLoop(callHistory(calls...), 6) {
		t.Error("expected a single repeated call to be detected")
	}
}

func TestDetectLoopAlternatingPair(t *testing.T) {
	var calls [][2]string
	for i := 0; i < 3; i++ {
		calls = append(calls,
			[2]string{"read_file", `{"path":"a.go"}`},
			[2]string{"grep", `{"pattern":"x"}`})
	}
	if !DetectLoop(callHistory(calls...), 6) {
		t.Error("expected an alternating pair to be detected")
	}
}

func TestDetectLoopRepeatingTriplet(t *testing.T) {
	var calls [][2]string
	for i := 0; i < 3; i++ {
		calls = append(calls,
			[2]string{"read_file", `{"path":"a.go"}`},
			[2]string{"edit", `{"path":"a.go"}`},
			[2]string{"bash", `{"command":"make test"}`})
	}
	if !DetectLoop(callHistory(calls...), 9) {
		t.Error("expected a repeating triplet to be detected")
	}
}

func TestDetectLoopDistinctArguments(t *testing.T) {
	var calls [][2]string
	for i := 0; i < 6; i++ {
		calls = append(calls, [2]string{"read_file", fmt.Sprintf(`{"path":"file%d.go"}`, i)})
	}
	if DetectLoop(callHistory(calls...), 6) {
		t.Error("the same tool with different arguments must not be detected")
	}
}

func TestDetectLoopFewerCallsThanWindow(t *testing.T) {
	calls := [][2]string{
		{"read_file", `{"path":"a.go"}`},
		{"read_file", `{"path":"a.go"}`},
	}
	if DetectLoop(callHistory(calls...), 6) {
		t.Error("fewer calls than the window must not be detected")
	}
}

func TestDetectLoopIgnoresNonAssistantMessages(t *testing.T) {
	hist := callHistory(
		[2]string{"bash", `{"command":"ls"}`},
		[2]string{"bash", `{"command":"ls"}`},
		[2]string{"bash", `{"command":"ls"}`},
	)
	hist = append(hist, message.NewUserText("keep going"))
	if !DetectLoop(hist, 3) {
		t.Error("expected detection to look through interleaved user messages")
	}
}
