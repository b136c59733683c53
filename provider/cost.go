package provider

import "github.com/Swarm-Code/ceregrep-client-sub000/message"

// Rates holds per-million-token prices for one model.
type Rates struct {
	InputPerMillion  float64
	OutputPerMillion float64
	CachedPerMillion float64
}

// RateTable maps model ids to rates. Unknown models cost zero rather than
// failing the request; usage counts are still reported.
type RateTable map[string]Rates

// DefaultRateTable builds the rate table from the model catalog.
func DefaultRateTable() RateTable {
	t := make(RateTable, len(Models))
	for _, m := range Models {
		t[m.ID] = Rates{
			InputPerMillion:  m.InputCostPerMillion,
			OutputPerMillion: m.OutputCostPerMillion,
			CachedPerMillion: m.CachedCostPerMillion,
		}
	}
	return t
}

// Lookup resolves rates by model id, falling back to catalog aliases.
func (t RateTable) Lookup(model string) (Rates, bool) {
	if r, ok := t[model]; ok {
		return r, true
	}
	if info := GetModelInfo(model); info != nil {
		if r, ok := t[info.ID]; ok {
			return r, true
		}
	}
	return Rates{}, false
}

// Cost computes the monetary cost of one response's usage in USD. Cached
// input tokens are billed at the cached rate; InputTokens excludes them.
func (t RateTable) Cost(model string, u message.Usage) float64 {
	r, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	const million = 1_000_000.0
	cost := float64(u.InputTokens) * r.InputPerMillion / million
	cost += float64(u.CachedTokens) * r.CachedPerMillion / million
	cost += float64(u.OutputTokens) * r.OutputPerMillion / million
	return cost
}
