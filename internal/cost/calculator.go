// Package cost estimates USD spend from token usage.
package cost

import (
	"strings"

	"github.com/sells-group/medrag-cli/internal/config"
)

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps a model name (or model name prefix) to its pricing.
type Rates map[string]ModelRate

// Calculator computes costs for chat completions.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// FromConfig returns a Calculator over DefaultRates overlaid with the
// pricing.models section of cfg.
func FromConfig(cfg config.PricingConfig) *Calculator {
	rates := DefaultRates()
	for model, p := range cfg.Models {
		rates[model] = ModelRate{Input: p.Input, Output: p.Output}
	}
	return NewCalculator(rates)
}

// Rate looks up model exactly, then by the longest matching prefix so that
// dated snapshots ("gpt-4o-mini-2024-07-18") resolve to their family.
func (c *Calculator) Rate(model string) (ModelRate, bool) {
	if r, ok := c.rates[model]; ok {
		return r, true
	}
	best := ""
	for name := range c.rates {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return ModelRate{}, false
	}
	return c.rates[best], true
}

// Chat computes the cost of prompt and completion tokens for model.
// Unknown models cost 0.
func (c *Calculator) Chat(model string, prompt, completion int64) float64 {
	rate, ok := c.Rate(model)
	if !ok {
		return 0
	}
	return (float64(prompt)/1e6)*rate.Input + (float64(completion)/1e6)*rate.Output
}

// DefaultRates returns list prices for the default models of each provider.
func DefaultRates() Rates {
	return Rates{
		"gpt-4o":                     {Input: 2.50, Output: 10.00},
		"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
		"gpt-4.1":                    {Input: 2.00, Output: 8.00},
		"gpt-4.1-mini":               {Input: 0.40, Output: 1.60},
		"gpt-3.5-turbo":              {Input: 0.50, Output: 1.50},
		"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		"gemini-2.5-flash":           {Input: 0.30, Output: 2.50},
		"gemini-2.5-pro":             {Input: 1.25, Output: 10.00},
	}
}
