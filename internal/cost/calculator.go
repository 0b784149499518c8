package cost

import "strings"

// ModelRate holds per-model token pricing (per million tokens) plus any flat
// per-request fee.
type ModelRate struct {
	Input    float64 `yaml:"input" mapstructure:"input"`
	Output   float64 `yaml:"output" mapstructure:"output"`
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// Rates maps provider and model to pricing.
type Rates map[string]map[string]ModelRate

// Set records the rate for a provider model.
func (r Rates) Set(provider, model string, rate ModelRate) {
	p := strings.ToLower(provider)
	if r[p] == nil {
		r[p] = make(map[string]ModelRate)
	}
	r[p][model] = rate
}

// Lookup returns the rate for a provider model.
func (r Rates) Lookup(provider, model string) (ModelRate, bool) {
	rate, ok := r[strings.ToLower(provider)][model]
	return rate, ok
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	if rates == nil {
		rates = Rates{}
	}
	return &Calculator{rates: rates}
}

// Call computes the cost of one completion. Unknown models cost zero.
func (c *Calculator) Call(provider, model string, input, output int) float64 {
	rate, ok := c.rates.Lookup(provider, model)
	if !ok {
		return 0
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output

	return inCost + outCost + rate.PerQuery
}

// Known reports whether the calculator has a rate for the provider model.
func (c *Calculator) Known(provider, model string) bool {
	_, ok := c.rates.Lookup(provider, model)
	return ok
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	r := Rates{}
	r.Set("openai", "gpt-4o", ModelRate{Input: 2.50, Output: 10.00})
	r.Set("openai", "gpt-3.5-turbo", ModelRate{Input: 0.50, Output: 1.50})
	r.Set("anthropic", "claude-3-opus-20240229", ModelRate{Input: 15.00, Output: 75.00})
	r.Set("anthropic", "claude-3-5-sonnet-20240620", ModelRate{Input: 3.00, Output: 15.00})
	r.Set("google", "gemini-1.5-pro-latest", ModelRate{Input: 1.25, Output: 5.00})
	r.Set("perplexity", "sonar-pro", ModelRate{Input: 3.00, Output: 15.00, PerQuery: 0.005})
	return r
}
