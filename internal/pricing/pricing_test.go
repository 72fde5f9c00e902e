package pricing

import (
	"errors"
	"math"
	"testing"
)

func TestEstimateCost(t *testing.T) {
	p, ok := Lookup(DefaultModel)
	if !ok {
		t.Fatalf("default model missing from catalog")
	}

	cost := p.EstimateCost(1_000_000, 500_000)
	if !closeTo(cost.InputCost, 0.09) {
		t.Fatalf("input cost = %f, want 0.09", cost.InputCost)
	}
	if !closeTo(cost.OutputCost, 0.20) {
		t.Fatalf("output cost = %f, want 0.20", cost.OutputCost)
	}
	if !closeTo(cost.TotalCost(), 0.29) {
		t.Fatalf("total cost = %f, want 0.29", cost.TotalCost())
	}
	if cost.PromptTokens != 1_000_000 || cost.CompletionTokens != 500_000 {
		t.Fatalf("token counts not carried through: %+v", cost)
	}
}

func TestEstimateCostZeroTokens(t *testing.T) {
	p, _ := Lookup(DefaultModel)
	cost := p.EstimateCost(0, 0)
	if cost.TotalCost() != 0 {
		t.Fatalf("zero tokens should cost nothing, got %f", cost.TotalCost())
	}
}

func TestLookupShortName(t *testing.T) {
	p, ok := Lookup("tongyi-deepresearch-30b-a3b")
	if !ok {
		t.Fatalf("short name lookup failed")
	}
	if p.Model != DefaultModel {
		t.Fatalf("short name resolved to %q", p.Model)
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	if _, ok := Lookup("Alibaba/Tongyi-DeepResearch-30B-A3B"); !ok {
		t.Fatalf("lookup should be case insensitive")
	}
}

func TestResolveUnsupported(t *testing.T) {
	_, err := Resolve("gpt-99-ultra")
	if err == nil {
		t.Fatalf("expected error for unknown model")
	}
	if !errors.Is(err, ErrUnsupportedModel) {
		t.Fatalf("error should wrap ErrUnsupportedModel, got %v", err)
	}
}

func TestCostBreakdownAdd(t *testing.T) {
	a := CostBreakdown{PromptTokens: 10, CompletionTokens: 20, InputCost: 0.1, OutputCost: 0.2}
	b := CostBreakdown{PromptTokens: 5, CompletionTokens: 5, InputCost: 0.05, OutputCost: 0.05}
	sum := a.Add(b)
	if sum.PromptTokens != 15 || sum.CompletionTokens != 25 {
		t.Fatalf("token sum wrong: %+v", sum)
	}
	if !closeTo(sum.TotalCost(), 0.4) {
		t.Fatalf("total = %f, want 0.4", sum.TotalCost())
	}
}

func closeTo(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}
