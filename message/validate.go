package message

import "fmt"

// ValidatePairing checks the tool-use/tool-result invariants over a
// conversation history: every tool-result block references exactly one
// preceding tool-use id, no tool-use id is declared twice, no tool-use is
// answered twice, and results appear in the same relative order as their
// tool-use blocks were requested.
func ValidatePairing(history []Message) error {
	useOrder := make(map[string]int)
	answered := make(map[string]bool)
	nextUse := 0
	lastResultOrder := -1

	for _, m := range history {
		for _, b := range m.Blocks {
			switch b.Kind {
			case BlockToolUse:
				if b.ToolUse == nil {
					return fmt.Errorf("message %s: tool_use block with no payload", m.ID)
				}
				id := b.ToolUse.ID
				if id == "" {
					return fmt.Errorf("message %s: tool_use block with empty id", m.ID)
				}
				if _, dup := useOrder[id]; dup {
					return fmt.Errorf("message %s: duplicate tool_use id %q", m.ID, id)
				}
				useOrder[id] = nextUse
				nextUse++
				// A new assistant turn starts a fresh dispatch group.
				lastResultOrder = -1
			case BlockToolResult:
				if b.ToolResult == nil {
					return fmt.Errorf("message %s: tool_result block with no payload", m.ID)
				}
				id := b.ToolResult.ToolUseID
				order, ok := useOrder[id]
				if !ok {
					return fmt.Errorf("message %s: tool_result references unknown tool_use id %q", m.ID, id)
				}
				if answered[id] {
					return fmt.Errorf("message %s: tool_use id %q answered more than once", m.ID, id)
				}
				if order <= lastResultOrder {
					return fmt.Errorf("message %s: tool_result for %q out of request order", m.ID, id)
				}
				answered[id] = true
				lastResultOrder = order
			case BlockText, BlockImage, BlockDocument:
				// No pairing constraints.
			}
		}
	}
	return nil
}
