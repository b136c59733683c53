package provider

import "testing"

func TestGetModelInfoByID(t *testing.T) {
	info := GetModelInfo("claude-sonnet-4-5")
	if info == nil {
		t.Fatal("expected catalog hit")
	}
	if info.Backend != "chat" {
		t.Errorf("expected chat backend, got %q", info.Backend)
	}
	if info.ContextWindow != 200000 {
		t.Errorf("expected 200k context window, got %d", info.ContextWindow)
	}
}

func TestGetModelInfoByAlias(t *testing.T) {
	info := GetModelInfo("claude-sonnet-latest")
	if info == nil {
		t.Fatal("expected alias hit")
	}
	if info.ID != "claude-sonnet-4-5" {
		t.Errorf("alias resolved to %q", info.ID)
	}

	// Alias matching is case-insensitive.
	if upper := GetModelInfo("KIMI-K2"); upper == nil || upper.ID != "kimi-k2-instruct" {
		t.Error("expected case-insensitive alias match")
	}
}

func TestGetModelInfoUnknown(t *testing.T) {
	if info := GetModelInfo("not-a-model"); info != nil {
		t.Errorf("expected nil for unknown model, got %+v", info)
	}
}

func TestContextWindowFor(t *testing.T) {
	if got := ContextWindowFor("gpt-5.2"); got != 1047576 {
		t.Errorf("expected gpt-5.2 window 1047576, got %d", got)
	}
	if got := ContextWindowFor("unknown"); got != DefaultContextWindow {
		t.Errorf("expected default window %d, got %d", DefaultContextWindow, got)
	}
}

func TestModelsForBackend(t *testing.T) {
	compat := ModelsForBackend("openai_compat")
	if len(compat) == 0 {
		t.Fatal("expected openai_compat models in the catalog")
	}
	for _, m := range compat {
		if m.Backend != "openai_compat" {
			t.Errorf("model %s has backend %q", m.ID, m.Backend)
		}
	}

	if len(ModelsForBackend("nonexistent")) != 0 {
		t.Error("expected no models for unknown backend")
	}
}

func TestCatalogRatesPresent(t *testing.T) {
	for _, m := range Models {
		if m.InputCostPerMillion <= 0 || m.OutputCostPerMillion <= 0 {
			t.Errorf("model %s is missing rates", m.ID)
		}
		if m.ContextWindow <= 0 {
			t.Errorf("model %s is missing a context window", m.ID)
		}
	}
}
