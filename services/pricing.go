package services

import (
	"fmt"
	"sort"
)

// Supported AI providers. Session configs must name one of these together
// with a model the pricing table knows.
const (
	ProviderGoogle    = "google"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const milliCentsFactor = 1000

// ModelPricing carries the per-1000-token rates for one provider/model
// pairing, in milli-cents. Integer rates keep cost accounting exact.
type ModelPricing struct {
	InputPer1K  int64
	OutputPer1K int64
}

// PricingTable maps recognized provider/model pairings to their rates. It
// doubles as the registry of pairings a session may be configured with:
// a pairing without a price is a pairing the system will not call.
type PricingTable struct {
	rates map[string]ModelPricing
}

func pricingKey(provider, model string) string {
	return fmt.Sprintf("%s/%s", provider, model)
}

// NewPricingTable returns the static table of supported pairings.
func NewPricingTable() *PricingTable {
	return &PricingTable{rates: map[string]ModelPricing{
		pricingKey(ProviderGoogle, "gemini-2.5-flash"):          {InputPer1K: 30, OutputPer1K: 250},
		pricingKey(ProviderGoogle, "gemini-2.5-pro"):            {InputPer1K: 125, OutputPer1K: 1000},
		pricingKey(ProviderGoogle, "gemini-2.0-flash"):          {InputPer1K: 10, OutputPer1K: 40},
		pricingKey(ProviderOpenAI, "gpt-4o"):                    {InputPer1K: 250, OutputPer1K: 1000},
		pricingKey(ProviderOpenAI, "gpt-4o-mini"):               {InputPer1K: 15, OutputPer1K: 60},
		pricingKey(ProviderOpenAI, "gpt-4.1"):                   {InputPer1K: 200, OutputPer1K: 800},
		pricingKey(ProviderOpenAI, "gpt-4.1-mini"):              {InputPer1K: 40, OutputPer1K: 160},
		pricingKey(ProviderAnthropic, "claude-sonnet-4-0"):      {InputPer1K: 300, OutputPer1K: 1500},
		pricingKey(ProviderAnthropic, "claude-opus-4-0"):        {InputPer1K: 1500, OutputPer1K: 7500},
		pricingKey(ProviderAnthropic, "claude-3-5-haiku-latest"): {InputPer1K: 80, OutputPer1K: 400},
	}}
}

// Recognized reports whether the provider/model pairing may be used in a
// session config.
func (t *PricingTable) Recognized(provider, model string) bool {
	_, ok := t.rates[pricingKey(provider, model)]
	return ok
}

// Rates returns the pricing for a pairing.
func (t *PricingTable) Rates(provider, model string) (ModelPricing, bool) {
	p, ok := t.rates[pricingKey(provider, model)]
	return p, ok
}

// Cost computes the milli-cent cost of a call using integer arithmetic:
// (tokens * ratePer1K) / 1000, truncated, summed over both directions.
// Unrecognized pairings cost zero; creation-time validation keeps them
// from ever reaching a provider.
func (t *PricingTable) Cost(provider, model string, inputTokens, outputTokens int64) int64 {
	p, ok := t.rates[pricingKey(provider, model)]
	if !ok {
		return 0
	}
	inputCost := (inputTokens * p.InputPer1K) / milliCentsFactor
	outputCost := (outputTokens * p.OutputPer1K) / milliCentsFactor
	return inputCost + outputCost
}

// Pairings lists every recognized provider/model pairing, sorted, for
// surfacing in validation errors and the capabilities endpoint.
func (t *PricingTable) Pairings() []string {
	out := make([]string, 0, len(t.rates))
	for key := range t.rates {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
