package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeSpec(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestToolNameFor(t *testing.T) {
	cases := map[string]string{
		"code-reviewer": "agent_code_reviewer",
		"docs":          "agent_docs",
		"test-gen-pro":  "agent_test_gen_pro",
	}
	for id, want := range cases {
		if got := toolNameFor(id); got != want {
			t.Errorf("toolNameFor(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestLibraryMergesProjectOverGlobal(t *testing.T) {
	global := t.TempDir()
	project := t.TempDir()
	writeSpec(t, global, "code-reviewer.yaml", "id: code-reviewer\ndescription: global reviewer\n")
	writeSpec(t, global, "docs.yaml", "id: docs\ndescription: writes docs\n")
	writeSpec(t, project, "code-reviewer.yaml", "id: code-reviewer\ndescription: project reviewer\nmax_turns: 5\n")
	writeSpec(t, project, "tests.yml", "id: tests\ndescription: writes tests\n")

	lib := NewLibrary(global, project, WithLibraryLogger(discardLogger()))
	specs := lib.Specs()
	if len(specs) != 3 {
		t.Fatalf("expected 3 specs, got %d", len(specs))
	}
	byID := make(map[string]SubAgentSpec, len(specs))
	for _, s := range specs {
		byID[s.ID] = s
	}
	if got := byID["code-reviewer"].Description; got != "project reviewer" {
		t.Errorf("expected the project spec to win, got %q", got)
	}
	if got := byID["code-reviewer"].MaxTurns; got != 5 {
		t.Errorf("expected max_turns 5, got %d", got)
	}
	if _, ok := byID["docs"]; !ok {
		t.Error("expected the global-only spec to load")
	}
	if _, ok := byID["tests"]; !ok {
		t.Error("expected .yml files to load")
	}
}

func TestLibraryDefaultsIDFromFilename(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "linter.yaml", "description: runs the linter\n")

	lib := NewLibrary(dir, "", WithLibraryLogger(discardLogger()))
	specs := lib.Specs()
	if len(specs) != 1 {
		t.Fatalf("expected 1 spec, got %d", len(specs))
	}
	if specs[0].ID != "linter" {
		t.Errorf("expected the filename stem as id, got %q", specs[0].ID)
	}
}

func TestLibrarySkipsInvalidSpec(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "good.yaml", "id: good\n")
	writeSpec(t, dir, "broken.yaml", "{")
	writeSpec(t, dir, "notes.txt", "not a spec at all")

	lib := NewLibrary(dir, "", WithLibraryLogger(discardLogger()))
	specs := lib.Specs()
	if len(specs) != 1 || specs[0].ID != "good" {
		t.Errorf("expected only the valid spec, got %+v", specs)
	}
}

func TestLibraryCachesUntilTTLExpires(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "one.yaml", "id: one\n")

	cached := NewLibrary(dir, "", WithLibraryLogger(discardLogger()), WithLibraryTTL(time.Hour))
	if got := len(cached.Specs()); got != 1 {
		t.Fatalf("expected 1 spec, got %d", got)
	}
	writeSpec(t, dir, "two.yaml", "id: two\n")
	if got := len(cached.Specs()); got != 1 {
		t.Errorf("expected the cached listing within the TTL, got %d specs", got)
	}

	expiring := NewLibrary(dir, "", WithLibraryLogger(discardLogger()), WithLibraryTTL(time.Nanosecond))
	if got := len(expiring.Specs()); got != 2 {
		t.Fatalf("expected 2 specs, got %d", got)
	}
	writeSpec(t, dir, "three.yaml", "id: three\n")
	time.Sleep(time.Millisecond)
	if got := len(expiring.Specs()); got != 3 {
		t.Errorf("expected a re-list after TTL expiry, got %d specs", got)
	}
}

func TestLibraryMissingDirectories(t *testing.T) {
	lib := NewLibrary(filepath.Join(t.TempDir(), "absent"), "", WithLibraryLogger(discardLogger()))
	if got := lib.Specs(); len(got) != 0 {
		t.Errorf("expected no specs, got %d", len(got))
	}
}

func TestRegisterAgentTools(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "code-reviewer.yaml", "id: code-reviewer\ndescription: reviews code\n")
	writeSpec(t, dir, "docs.yaml", "id: docs\ndescription: writes docs\n")
	lib := NewLibrary(dir, "", WithLibraryLogger(discardLogger()))

	reg := NewRegistry()
	RegisterAgentTools(reg, lib, Config{Logger: discardLogger()})

	want := []string{"agent_code_reviewer", "agent_docs"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	tool := reg.Get("agent_code_reviewer")
	if tool.Capability != CapAgent {
		t.Errorf("expected the agent capability, got %q", tool.Capability)
	}
	if tool.Description != "reviews code" {
		t.Errorf("expected the spec description, got %q", tool.Description)
	}
	props, _ := tool.InputSchema["properties"].(map[string]interface{})
	if _, ok := props["prompt"]; !ok {
		t.Error("expected a prompt property in the input schema")
	}
}

func TestAgentToolRequiresPrompt(t *testing.T) {
	_, err := runAgentTool(context.Background(), SubAgentSpec{ID: "docs"},
		Config{Logger: discardLogger()}, json.RawMessage(`{}`))
	if err == nil || !strings.Contains(err.Error(), "prompt is required") {
		t.Errorf("expected a prompt requirement error, got %v", err)
	}
}
