package http

// Pricing estimates API cost from token usage.
type Pricing interface {
	GetCost(provider, model string, tokensIn, tokensOut int) float64
}

// ModelPricing is USD per 1M tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// DefaultPricing looks up published per-model rates. Unknown providers
// and models cost zero, which also covers local Ollama models.
type DefaultPricing struct {
	prices map[string]map[string]ModelPricing
}

func NewDefaultPricing() *DefaultPricing {
	return &DefaultPricing{prices: buildPricingTable()}
}

func (p *DefaultPricing) GetCost(provider, model string, tokensIn, tokensOut int) float64 {
	modelPrice, ok := p.prices[provider][model]
	if !ok {
		return 0.0
	}
	return float64(tokensIn)/1_000_000.0*modelPrice.InputPer1M +
		float64(tokensOut)/1_000_000.0*modelPrice.OutputPer1M
}

// Pricing as of 2025-12. Sources:
// - OpenAI: https://openai.com/api/pricing/
// - Anthropic: https://claude.com/pricing
// - Gemini: https://ai.google.dev/gemini-api/docs/pricing
// - Groq: https://groq.com/pricing
func buildPricingTable() map[string]map[string]ModelPricing {
	return map[string]map[string]ModelPricing{
		"openai": {
			"gpt-4o":      {InputPer1M: 2.50, OutputPer1M: 10.00},
			"gpt-4o-mini": {InputPer1M: 0.15, OutputPer1M: 0.60},
			"o1":          {InputPer1M: 15.00, OutputPer1M: 60.00},
			"o3-mini":     {InputPer1M: 1.10, OutputPer1M: 4.40},
			"o4-mini":     {InputPer1M: 1.10, OutputPer1M: 4.40},
		},
		"anthropic": {
			"claude-opus-4-5-20251101":   {InputPer1M: 5.00, OutputPer1M: 25.00},
			"claude-sonnet-4-5-20250929": {InputPer1M: 3.00, OutputPer1M: 15.00},
			"claude-haiku-4-5":           {InputPer1M: 1.00, OutputPer1M: 5.00},
			"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
			"claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
		},
		"gemini": {
			"gemini-2.5-pro":   {InputPer1M: 1.25, OutputPer1M: 10.00},
			"gemini-2.5-flash": {InputPer1M: 0.15, OutputPer1M: 0.60},
			"gemini-1.5-pro":   {InputPer1M: 1.25, OutputPer1M: 5.00},
			"gemini-1.5-flash": {InputPer1M: 0.075, OutputPer1M: 0.30},
		},
		"groq": {
			"llama-3.3-70b-versatile": {InputPer1M: 0.59, OutputPer1M: 0.79},
			"llama-3.1-8b-instant":    {InputPer1M: 0.05, OutputPer1M: 0.08},
		},
		// Ollama is local and free; no table entry needed.
	}
}
