package message

import (
	"encoding/json"
	"strings"
	"testing"
)

func pairedHistory() []Message {
	return []Message{
		NewUserText("list files"),
		New(RoleAssistant,
			ToolUse("tu_1", "Bash", json.RawMessage(`{"command":"ls"}`)),
			ToolUse("tu_2", "Bash", json.RawMessage(`{"command":"pwd"}`)),
		),
		NewToolProgress(ToolResult("tu_1", "a.txt\nb.txt")),
		NewToolProgress(ToolResult("tu_2", "/home")),
		NewAssistantText("two files in /home"),
	}
}

func TestValidatePairingAccepts(t *testing.T) {
	if err := ValidatePairing(pairedHistory()); err != nil {
		t.Fatalf("valid history rejected: %v", err)
	}
}

func TestValidatePairingUnknownID(t *testing.T) {
	history := []Message{
		NewUserText("go"),
		NewToolProgress(ToolResult("tu_missing", "output")),
	}
	err := ValidatePairing(history)
	if err == nil {
		t.Fatal("expected error for unknown tool_use id")
	}
	if !strings.Contains(err.Error(), "tu_missing") {
		t.Errorf("error does not name the offending id: %v", err)
	}
}

func TestValidatePairingDuplicateAnswer(t *testing.T) {
	history := []Message{
		New(RoleAssistant, ToolUse("tu_1", "read", nil)),
		NewToolProgress(ToolResult("tu_1", "once")),
		NewToolProgress(ToolResult("tu_1", "twice")),
	}
	if err := ValidatePairing(history); err == nil {
		t.Fatal("expected error for doubly answered tool_use")
	}
}

func TestValidatePairingDuplicateUseID(t *testing.T) {
	history := []Message{
		New(RoleAssistant, ToolUse("tu_1", "read", nil)),
		NewToolProgress(ToolResult("tu_1", "first")),
		New(RoleAssistant, ToolUse("tu_1", "read", nil)),
	}
	if err := ValidatePairing(history); err == nil {
		t.Fatal("expected error for duplicate tool_use id")
	}
}

func TestValidatePairingOutOfOrder(t *testing.T) {
	history := []Message{
		New(RoleAssistant,
			ToolUse("tu_1", "read", nil),
			ToolUse("tu_2", "write", nil),
		),
		NewToolProgress(ToolResult("tu_2", "wrote")),
		NewToolProgress(ToolResult("tu_1", "read")),
	}
	err := ValidatePairing(history)
	if err == nil {
		t.Fatal("expected error for out-of-order results")
	}
	if !strings.Contains(err.Error(), "order") {
		t.Errorf("expected ordering error, got: %v", err)
	}
}

func TestValidatePairingAcrossTurns(t *testing.T) {
	// A later dispatch group is not constrained by the previous group's
	// result positions.
	history := []Message{
		New(RoleAssistant, ToolUse("tu_1", "read", nil), ToolUse("tu_2", "read", nil)),
		NewToolProgress(ToolResult("tu_1", "a")),
		NewToolProgress(ToolResult("tu_2", "b")),
		New(RoleAssistant, ToolUse("tu_3", "read", nil)),
		NewToolProgress(ToolResult("tu_3", "c")),
	}
	if err := ValidatePairing(history); err != nil {
		t.Fatalf("valid multi-turn history rejected: %v", err)
	}
}
