package provider

import (
	"encoding/json"
	"strings"
	"testing"
)

func mustParseRepaired(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	input, repaired, err := ParseToolInput(raw)
	if err != nil {
		t.Fatalf("ParseToolInput(%q) failed: %v", raw, err)
	}
	if !repaired {
		t.Fatalf("ParseToolInput(%q): expected repair to be needed", raw)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(input, &m); err != nil {
		t.Fatalf("repaired output %q is not valid JSON: %v", input, err)
	}
	return m
}

func TestParseToolInputValidPassthrough(t *testing.T) {
	input, repaired, err := ParseToolInput(`{"pattern": "foo"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repaired {
		t.Error("valid JSON should not be flagged as repaired")
	}
	if string(input) != `{"pattern": "foo"}` {
		t.Errorf("expected passthrough, got %q", input)
	}
}

func TestParseToolInputEmpty(t *testing.T) {
	for _, raw := range []string{"", "  ", "null"} {
		input, repaired, err := ParseToolInput(raw)
		if err != nil {
			t.Fatalf("ParseToolInput(%q) failed: %v", raw, err)
		}
		if repaired {
			t.Errorf("ParseToolInput(%q): expected repaired=false", raw)
		}
		if string(input) != "{}" {
			t.Errorf("ParseToolInput(%q): expected {}, got %q", raw, input)
		}
	}
}

func TestParseToolInputPythonDict(t *testing.T) {
	m := mustParseRepaired(t, `{'pattern': 'foo', 'path': '/tmp'}`)
	if m["pattern"] != "foo" {
		t.Errorf("expected pattern=foo, got %v", m["pattern"])
	}
	if m["path"] != "/tmp" {
		t.Errorf("expected path=/tmp, got %v", m["path"])
	}
}

func TestParseToolInputPythonConstants(t *testing.T) {
	m := mustParseRepaired(t, `{'enabled': True, 'limit': None, 'strict': False}`)
	if m["enabled"] != true {
		t.Errorf("expected enabled=true, got %v", m["enabled"])
	}
	if m["limit"] != nil {
		t.Errorf("expected limit=null, got %v", m["limit"])
	}
	if m["strict"] != false {
		t.Errorf("expected strict=false, got %v", m["strict"])
	}
}

func TestParseToolInputEscapedApostrophe(t *testing.T) {
	m := mustParseRepaired(t, `{'note': 'don\'t panic'}`)
	if m["note"] != "don't panic" {
		t.Errorf("expected apostrophe preserved, got %q", m["note"])
	}
}

func TestParseToolInputEmbeddedDoubleQuotes(t *testing.T) {
	m := mustParseRepaired(t, `{'say': 'he said "hi"'}`)
	if m["say"] != `he said "hi"` {
		t.Errorf("expected embedded quotes escaped, got %q", m["say"])
	}
}

func TestParseToolInputTrailingComma(t *testing.T) {
	m := mustParseRepaired(t, `{"path": "/tmp", "recursive": true,}`)
	if m["path"] != "/tmp" {
		t.Errorf("expected path=/tmp, got %v", m["path"])
	}
}

func TestParseToolInputUnbalancedQuote(t *testing.T) {
	m := mustParseRepaired(t, `{"cmd": "ls}`)
	if m["cmd"] != "ls}" {
		t.Errorf("expected cmd=%q, got %v", "ls}", m["cmd"])
	}
}

func TestParseToolInputControlCharacters(t *testing.T) {
	m := mustParseRepaired(t, "{\"text\": \"line1\nline2\tend\"}")
	if m["text"] != "line1\nline2\tend" {
		t.Errorf("expected control characters escaped, got %q", m["text"])
	}
}

func TestParseToolInputRepairsStack(t *testing.T) {
	// Needs trailing-comma removal and Python normalization together.
	m := mustParseRepaired(t, `{'ok': True, 'count': None,}`)
	if m["ok"] != true {
		t.Errorf("expected ok=true, got %v", m["ok"])
	}
}

func TestParseToolInputUnrepairable(t *testing.T) {
	input, _, err := ParseToolInput(`{pattern: foo`)
	if err == nil {
		t.Fatalf("expected error for bare identifiers, got %q", input)
	}
	tae, ok := err.(*ToolArgumentError)
	if !ok {
		t.Fatalf("expected ToolArgumentError, got %T", err)
	}
	if tae.Raw != `{pattern: foo` {
		t.Errorf("expected raw input preserved, got %q", tae.Raw)
	}
	if !strings.Contains(tae.Error(), "not valid JSON") {
		t.Errorf("expected human-readable message, got %q", tae.Error())
	}
}

func TestParseToolInputLongPreviewTruncated(t *testing.T) {
	raw := "{bad " + strings.Repeat("x", 400)
	_, _, err := ParseToolInput(raw)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "...") {
		t.Errorf("expected truncated preview, got %q", err.Error())
	}
	if len(err.Error()) > 300 {
		t.Errorf("error message too long: %d chars", len(err.Error()))
	}
}

func TestParseToolInputFalseDoesNotEatWords(t *testing.T) {
	// "Truex" is not the constant True and must stay untouched.
	_, _, err := ParseToolInput(`{'v': Truex}`)
	if err == nil {
		t.Error("expected Truex to remain unparseable")
	}
}
