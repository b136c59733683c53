package provider

import "strings"

// ModelInfo describes a known model: identity, context window, and the
// per-million-token rates the cost accounting uses.
type ModelInfo struct {
	ID            string
	Backend       string
	DisplayName   string
	ContextWindow int
	MaxOutput     int

	InputCostPerMillion  float64
	OutputCostPerMillion float64
	CachedCostPerMillion float64

	Aliases []string
}

// DefaultContextWindow is assumed for models missing from the catalog.
const DefaultContextWindow = 200000

// Models is the built-in model catalog.
var Models = []ModelInfo{
	{
		ID:                   "claude-opus-4-6",
		Backend:              "chat",
		DisplayName:          "Claude Opus 4.6",
		ContextWindow:        200000,
		MaxOutput:            32000,
		InputCostPerMillion:  15.0,
		OutputCostPerMillion: 75.0,
		CachedCostPerMillion: 1.50,
		Aliases:              []string{"claude-opus-latest"},
	},
	{
		ID:                   "claude-sonnet-4-5",
		Backend:              "chat",
		DisplayName:          "Claude Sonnet 4.5",
		ContextWindow:        200000,
		MaxOutput:            64000,
		InputCostPerMillion:  3.0,
		OutputCostPerMillion: 15.0,
		CachedCostPerMillion: 0.30,
		Aliases:              []string{"claude-sonnet-latest"},
	},
	{
		ID:                   "claude-haiku-4-5",
		Backend:              "chat",
		DisplayName:          "Claude Haiku 4.5",
		ContextWindow:        200000,
		MaxOutput:            64000,
		InputCostPerMillion:  1.0,
		OutputCostPerMillion: 5.0,
		CachedCostPerMillion: 0.10,
	},
	{
		ID:                   "gpt-5.2",
		Backend:              "chat",
		DisplayName:          "GPT-5.2",
		ContextWindow:        1047576,
		MaxOutput:            100000,
		InputCostPerMillion:  2.50,
		OutputCostPerMillion: 10.0,
		CachedCostPerMillion: 0.25,
	},
	{
		ID:                   "qwen3-coder-480b",
		Backend:              "openai_compat",
		DisplayName:          "Qwen3 Coder 480B",
		ContextWindow:        262144,
		MaxOutput:            66536,
		InputCostPerMillion:  0.45,
		OutputCostPerMillion: 1.80,
		Aliases:              []string{"qwen3-coder"},
	},
	{
		ID:                   "kimi-k2-instruct",
		Backend:              "openai_compat",
		DisplayName:          "Kimi K2 Instruct",
		ContextWindow:        131072,
		MaxOutput:            16384,
		InputCostPerMillion:  0.60,
		OutputCostPerMillion: 2.50,
		Aliases:              []string{"kimi-k2"},
	},
	{
		ID:                   "glm-4.6",
		Backend:              "openai_compat",
		DisplayName:          "GLM 4.6",
		ContextWindow:        200000,
		MaxOutput:            128000,
		InputCostPerMillion:  0.60,
		OutputCostPerMillion: 2.20,
	},
}

// GetModelInfo looks a model up by id or alias. Returns nil when unknown.
func GetModelInfo(id string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == id {
			return &Models[i]
		}
	}
	lower := strings.ToLower(id)
	for i := range Models {
		for _, alias := range Models[i].Aliases {
			if strings.ToLower(alias) == lower {
				return &Models[i]
			}
		}
	}
	return nil
}

// ContextWindowFor returns the model's context window, or
// DefaultContextWindow when the model is not in the catalog.
func ContextWindowFor(model string) int {
	if info := GetModelInfo(model); info != nil && info.ContextWindow > 0 {
		return info.ContextWindow
	}
	return DefaultContextWindow
}

// ModelsForBackend lists catalog entries for one backend.
func ModelsForBackend(backend string) []ModelInfo {
	var out []ModelInfo
	for _, m := range Models {
		if m.Backend == backend {
			out = append(out, m)
		}
	}
	return out
}
