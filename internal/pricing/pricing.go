package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedModel marks model identifiers missing from the catalog.
var ErrUnsupportedModel = errors.New("unsupported model")

// DefaultModel is the model used when none is configured.
const DefaultModel = "alibaba/tongyi-deepresearch-30b-a3b"

// ModelPricing holds pricing and context information for a specific model.
// Prices are dollars per million tokens; zero means the segment is free
// or the price is unknown.
type ModelPricing struct {
	Model                string  `json:"model"`
	ContextWindowTokens  int     `json:"context_window_tokens"`
	MaxOutputTokens      int     `json:"max_output_tokens"`
	InputPricePerMillion float64 `json:"input_price_per_million"`
	OutputPricePerMill   float64 `json:"output_price_per_million"`
}

// CostBreakdown is the computed dollar cost for a run.
type CostBreakdown struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	InputCost        float64 `json:"input_cost"`
	OutputCost       float64 `json:"output_cost"`
}

// TotalCost returns the combined input and output cost.
func (c CostBreakdown) TotalCost() float64 {
	return c.InputCost + c.OutputCost
}

// Add merges another breakdown into this one.
func (c CostBreakdown) Add(other CostBreakdown) CostBreakdown {
	return CostBreakdown{
		PromptTokens:     c.PromptTokens + other.PromptTokens,
		CompletionTokens: c.CompletionTokens + other.CompletionTokens,
		InputCost:        c.InputCost + other.InputCost,
		OutputCost:       c.OutputCost + other.OutputCost,
	}
}

// EstimateCost computes the dollar cost for the provided token usage.
func (p ModelPricing) EstimateCost(promptTokens, completionTokens int64) CostBreakdown {
	return CostBreakdown{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		InputCost:        segmentCost(promptTokens, p.InputPricePerMillion),
		OutputCost:       segmentCost(completionTokens, p.OutputPricePerMill),
	}
}

func segmentCost(tokens int64, pricePerMillion float64) float64 {
	if pricePerMillion <= 0 {
		return 0
	}
	return float64(tokens) / 1_000_000 * pricePerMillion
}

var catalog = map[string]ModelPricing{
	DefaultModel: {
		Model:                DefaultModel,
		ContextWindowTokens:  131_100,
		MaxOutputTokens:      131_100,
		InputPricePerMillion: 0.09,
		OutputPricePerMill:   0.40,
	},
}

// Lookup returns pricing for a model. Short names without the provider
// prefix (e.g. "tongyi-deepresearch-30b-a3b") are accepted.
func Lookup(model string) (ModelPricing, bool) {
	normalized := strings.ToLower(strings.TrimSpace(model))
	if p, ok := catalog[normalized]; ok {
		return p, true
	}
	for name, p := range catalog {
		if short := name[strings.LastIndex(name, "/")+1:]; short == normalized {
			return p, true
		}
	}
	return ModelPricing{}, false
}

// Resolve returns pricing for a model, or ErrUnsupportedModel when the
// catalog has no entry.
func Resolve(model string) (ModelPricing, error) {
	p, ok := Lookup(model)
	if !ok {
		return ModelPricing{}, fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
	}
	return p, nil
}
