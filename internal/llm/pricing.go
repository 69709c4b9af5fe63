package llm

import "strings"

// ModelCost holds per-million-token pricing for a model in USD.
type ModelCost struct {
	InputPerMTok  float64 // USD per 1M input tokens
	OutputPerMTok float64 // USD per 1M output tokens
}

// Cost calculates the total USD cost for the given token counts.
func (c ModelCost) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*c.InputPerMTok/1_000_000 +
		float64(outputTokens)*c.OutputPerMTok/1_000_000
}

// LookupCost returns the pricing for a model ID, or nil if unknown. OpenRouter
// IDs ("openai/gpt-4o-mini") fall back to the vendor-less name.
func LookupCost(modelID string) *ModelCost {
	if c, ok := modelCosts[modelID]; ok {
		return &c
	}
	if i := strings.LastIndexByte(modelID, '/'); i >= 0 {
		if c, ok := modelCosts[modelID[i+1:]]; ok {
			return &c
		}
	}
	return nil
}

// SessionCost estimates the USD cost of a set of usage rows. Unknown models
// are skipped and reported back.
func SessionCost(usage map[string]Usage) (total float64, unknown []string) {
	for model, u := range usage {
		c := LookupCost(model)
		if c == nil {
			unknown = append(unknown, model)
			continue
		}
		total += c.Cost(u.InputTokens, u.OutputTokens)
	}
	return total, unknown
}

// modelCosts is the embedded pricing table (USD per 1M tokens).
var modelCosts = map[string]ModelCost{
	// Anthropic
	"claude-3-5-haiku-20241022":  {0.8, 4},
	"claude-haiku-4-5":           {1, 5},
	"claude-haiku-4-5-20251001":  {1, 5},
	"claude-sonnet-4-20250514":   {3, 15},
	"claude-sonnet-4-5":          {3, 15},
	"claude-sonnet-4-5-20250929": {3, 15},

	// OpenAI
	"gpt-4.1":                {2, 8},
	"gpt-4.1-mini":           {0.4, 1.6},
	"gpt-4.1-nano":           {0.1, 0.4},
	"gpt-4o":                 {2.5, 10},
	"gpt-4o-2024-08-06":      {2.5, 10},
	"gpt-4o-2024-11-20":      {2.5, 10},
	"gpt-4o-mini":            {0.15, 0.6},
	"gpt-4o-mini-2024-07-18": {0.15, 0.6},
	"gpt-5-mini":             {0.25, 2},
	"gpt-5-nano":             {0.05, 0.4},

	// Google
	"gemini-2.0-flash":      {0.1, 0.4},
	"gemini-2.0-flash-lite": {0.075, 0.3},
	"gemini-2.5-flash":      {0.3, 2.5},
	"gemini-2.5-flash-lite": {0.1, 0.4},
	"gemini-2.5-pro":        {1.25, 10},
}
