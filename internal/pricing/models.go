package pricing

import (
	"regexp"
	"sort"
	"strings"
)

// ModelPrice holds per-token USD rates for one model.
type ModelPrice struct {
	InputCostPerToken           float64 `json:"input_cost_per_token"`
	OutputCostPerToken          float64 `json:"output_cost_per_token"`
	CacheReadInputTokenCost     float64 `json:"cache_read_input_token_cost,omitempty"`
	CacheCreationInputTokenCost float64 `json:"cache_creation_input_token_cost,omitempty"`
}

// Table maps a model key to its price.
type Table map[string]ModelPrice

const (
	opusKey   = "claude-opus-4-5"
	sonnetKey = "claude-sonnet-4-5"
	haikuKey  = "claude-haiku-4-5"
)

var defaultPrices = Table{
	opusKey: {
		InputCostPerToken:           5e-6,
		OutputCostPerToken:          25e-6,
		CacheReadInputTokenCost:     0.5e-6,
		CacheCreationInputTokenCost: 6.25e-6,
	},
	sonnetKey: {
		InputCostPerToken:           3e-6,
		OutputCostPerToken:          15e-6,
		CacheReadInputTokenCost:     0.3e-6,
		CacheCreationInputTokenCost: 3.75e-6,
	},
	haikuKey: {
		InputCostPerToken:           1e-6,
		OutputCostPerToken:          5e-6,
		CacheReadInputTokenCost:     0.1e-6,
		CacheCreationInputTokenCost: 1.25e-6,
	},
}

// DefaultPrices returns a copy of the built-in table used when no other
// price source is available.
func DefaultPrices() Table {
	t := make(Table, len(defaultPrices))
	for k, v := range defaultPrices {
		t[k] = v
	}
	return t
}

var normalizeRules = []*regexp.Regexp{
	regexp.MustCompile(`-20\d{6}.*$`), // dated release
	regexp.MustCompile(`-v\d+:\d+$`),  // bedrock revision
	regexp.MustCompile(`^anthropic\.`),
	regexp.MustCompile(`^vertex_ai/`),
	regexp.MustCompile(`@.*$`),
}

// NormalizeModelName strips release dates, vendor revisions and vendor
// prefixes so that e.g. "claude-sonnet-4-5-20250929" becomes
// "claude-sonnet-4-5".
func NormalizeModelName(model string) string {
	for _, re := range normalizeRules {
		model = re.ReplaceAllString(model, "")
	}
	return model
}

// GetModelPrice resolves a price for model. It tries an exact key, the
// normalized key, a substring match in either direction, and finally
// falls back to the family defaults. It always returns a price.
func GetModelPrice(model string, table Table) ModelPrice {
	if p, ok := table[model]; ok {
		return p
	}

	normalized := NormalizeModelName(model)
	if p, ok := table[normalized]; ok {
		return p
	}

	if normalized != "" {
		keys := make([]string, 0, len(table))
		for k := range table {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if strings.Contains(key, normalized) || strings.Contains(normalized, NormalizeModelName(key)) {
				return table[key]
			}
		}
	}

	switch {
	case strings.Contains(model, "opus"):
		return defaultPrices[opusKey]
	case strings.Contains(model, "sonnet"):
		return defaultPrices[sonnetKey]
	case strings.Contains(model, "haiku"):
		return defaultPrices[haikuKey]
	}
	return defaultPrices[sonnetKey]
}

// CalculateCost returns the USD cost of the given token counts.
func CalculateCost(input, output, cacheRead, cacheCreation int64, p ModelPrice) float64 {
	return float64(input)*p.InputCostPerToken +
		float64(output)*p.OutputCostPerToken +
		float64(cacheRead)*p.CacheReadInputTokenCost +
		float64(cacheCreation)*p.CacheCreationInputTokenCost
}
