// Static price table for cost display (January 2026 list prices, USD per
// million tokens). Unknown models cost zero rather than erroring; cost
// display is informational, never authoritative billing.

package tokens

import (
	"strings"

	"github.com/loomlabs/loom/llm"
)

// Pricing holds USD-per-million-token rates for one model family.
type Pricing struct {
	InputPerMTok      float64
	OutputPerMTok     float64
	CacheReadPerMTok  float64
	CacheWritePerMTok float64
}

// Longest-prefix match against model ids, so dated snapshots
// (claude-opus-4-5-20251101) inherit their family's pricing.
var priceTable = map[string]Pricing{
	"claude-opus-4-5": {InputPerMTok: 5, OutputPerMTok: 25, CacheReadPerMTok: 0.5, CacheWritePerMTok: 6.25},
	"claude-sonnet-4": {InputPerMTok: 3, OutputPerMTok: 15, CacheReadPerMTok: 0.3, CacheWritePerMTok: 3.75},
	"claude-haiku-4":  {InputPerMTok: 1, OutputPerMTok: 5, CacheReadPerMTok: 0.1, CacheWritePerMTok: 1.25},
	"gpt-5.2":         {InputPerMTok: 1.25, OutputPerMTok: 10, CacheReadPerMTok: 0.125},
	"gpt-4o":          {InputPerMTok: 2.5, OutputPerMTok: 10, CacheReadPerMTok: 1.25},
	"deepseek-v3":     {InputPerMTok: 0.27, OutputPerMTok: 1.1, CacheReadPerMTok: 0.07},
	"deepseek-r1":     {InputPerMTok: 0.55, OutputPerMTok: 2.19, CacheReadPerMTok: 0.14},
	"gemini-3-pro":    {InputPerMTok: 2, OutputPerMTok: 12, CacheReadPerMTok: 0.2},
	"gemini-3-flash":  {InputPerMTok: 0.3, OutputPerMTok: 2.5, CacheReadPerMTok: 0.03},
}

// PricingFor returns the price entry for a model id, matching by longest
// known prefix. The zero Pricing is returned for unknown models.
func PricingFor(modelID string) Pricing {
	best := ""
	for prefix := range priceTable {
		if strings.HasPrefix(modelID, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	return priceTable[best]
}

// Cost computes the USD cost of the given usage under a model's pricing.
func Cost(modelID string, u llm.TokenUsage) float64 {
	p := PricingFor(modelID)
	const mtok = 1_000_000
	return float64(u.InputTokens)*p.InputPerMTok/mtok +
		float64(u.OutputTokens)*p.OutputPerMTok/mtok +
		float64(u.CacheReadTokens)*p.CacheReadPerMTok/mtok +
		float64(u.CacheWriteTokens)*p.CacheWritePerMTok/mtok
}
