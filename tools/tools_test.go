package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	fetchmodels "github.com/mohammad-safakhou/deepresearch/tools/web_fetch/models"
	searchmodels "github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
)

type stubSearcher struct {
	results []searchmodels.Result
	err     error
	gotQ    string
	gotK    int
}

func (s *stubSearcher) Discover(ctx context.Context, q string, k int) ([]searchmodels.Result, error) {
	s.gotQ, s.gotK = q, k
	return s.results, s.err
}

type stubFetcher struct {
	result fetchmodels.Result
	err    error
	gotURL string
}

func (f *stubFetcher) Exec(ctx context.Context, url string) (fetchmodels.Result, error) {
	f.gotURL = url
	return f.result, f.err
}

func TestCoerceJoin(t *testing.T) {
	got, coerced, err := CoerceJoin("hello")
	if err != nil || coerced || got != "hello" {
		t.Fatalf("string passthrough: %q coerced=%v err=%v", got, coerced, err)
	}

	got, coerced, err = CoerceJoin([]any{"go", "memory", "model"})
	if err != nil || !coerced || got != "go memory model" {
		t.Fatalf("list join: %q coerced=%v err=%v", got, coerced, err)
	}

	got, coerced, err = CoerceJoin([]any{"a", "", "  ", "b"})
	if err != nil || got != "a b" {
		t.Fatalf("blank elements should be dropped: %q", got)
	}

	if _, _, err = CoerceJoin(nil); err == nil {
		t.Fatalf("nil argument should error")
	}

	got, coerced, err = CoerceJoin(42.0)
	if err != nil || !coerced || got != "42" {
		t.Fatalf("number coercion: %q coerced=%v err=%v", got, coerced, err)
	}
}

func TestCoerceFirst(t *testing.T) {
	got, coerced, err := CoerceFirst([]any{"https://a.com", "https://b.com"})
	if err != nil || !coerced || got != "https://a.com" {
		t.Fatalf("list first: %q coerced=%v err=%v", got, coerced, err)
	}

	if _, _, err := CoerceFirst([]any{}); err == nil {
		t.Fatalf("empty list should error")
	}
	if _, _, err := CoerceFirst(nil); err == nil {
		t.Fatalf("nil should error")
	}
}

func TestIntArg(t *testing.T) {
	args := map[string]any{"n": 7.0}
	if got := IntArg(args, "n", 3); got != 7 {
		t.Fatalf("float64 arg = %d, want 7", got)
	}
	if got := IntArg(args, "missing", 3); got != 3 {
		t.Fatalf("fallback = %d, want 3", got)
	}
	if got := IntArg(map[string]any{"n": "x"}, "n", 3); got != 3 {
		t.Fatalf("non-numeric should fall back, got %d", got)
	}
}

func TestRegistryOrderAndLookup(t *testing.T) {
	search := NewSearchTool(&stubSearcher{}, "brave", 10)
	fetch := NewFetchTool(&stubFetcher{})
	r := NewRegistry(search, fetch)

	if r.Get("search") != search || r.Get("fetch") != fetch {
		t.Fatalf("lookup broken")
	}
	if r.Get("unknown") != nil {
		t.Fatalf("unknown tool should be nil")
	}

	schemas := r.Schemas()
	if len(schemas) != 2 || schemas[0].Name != "search" || schemas[1].Name != "fetch" {
		t.Fatalf("schemas should follow registration order: %+v", schemas)
	}
	if schemas[0].Parameters["type"] != "object" {
		t.Fatalf("schema parameters malformed: %+v", schemas[0].Parameters)
	}
}

func TestSearchToolFormatsResults(t *testing.T) {
	searcher := &stubSearcher{results: []searchmodels.Result{
		{Title: "Solar storms", URL: "https://example.com/storms", Snippet: "Big flares."},
		{Title: "Satellites", URL: "https://example.com/sats", Snippet: "Orbits."},
	}}
	tool := NewSearchTool(searcher, "brave", 10)

	res, err := tool.Execute(context.Background(), map[string]any{"query": "solar storms"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success: %s", res.Content)
	}
	if searcher.gotQ != "solar storms" || searcher.gotK != 10 {
		t.Fatalf("searcher got %q k=%d", searcher.gotQ, searcher.gotK)
	}
	for _, want := range []string{"# Search Results", "## Result 1", "**Title**: Solar storms", "**URL**: https://example.com/sats", "**Snippet**: Big flares."} {
		if !strings.Contains(res.Content, want) {
			t.Fatalf("formatted output missing %q:\n%s", want, res.Content)
		}
	}
	if res.Metadata["count"] != 2 {
		t.Fatalf("metadata count = %v", res.Metadata["count"])
	}
}

func TestSearchToolCoercesListQuery(t *testing.T) {
	searcher := &stubSearcher{}
	tool := NewSearchTool(searcher, "brave", 5)
	if _, err := tool.Execute(context.Background(), map[string]any{"query": []any{"solar", "storms"}}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if searcher.gotQ != "solar storms" {
		t.Fatalf("coerced query = %q", searcher.gotQ)
	}
}

func TestSearchToolMaxResultsOverride(t *testing.T) {
	searcher := &stubSearcher{}
	tool := NewSearchTool(searcher, "brave", 10)
	if _, err := tool.Execute(context.Background(), map[string]any{"query": "q", "max_results": 3.0}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if searcher.gotK != 3 {
		t.Fatalf("max_results = %d, want 3", searcher.gotK)
	}
}

func TestSearchToolFailureIsResult(t *testing.T) {
	tool := NewSearchTool(&stubSearcher{err: errors.New("rate limited")}, "brave", 10)
	res, err := tool.Execute(context.Background(), map[string]any{"query": "q"})
	if err != nil {
		t.Fatalf("downstream failure must not be a hard error: %v", err)
	}
	if res.Success || !strings.Contains(res.Content, "Search failed: rate limited") {
		t.Fatalf("failure result wrong: %+v", res)
	}
}

func TestFetchToolSuccess(t *testing.T) {
	fetcher := &stubFetcher{result: fetchmodels.Result{URL: "https://example.com", Title: "Example", Text: "body text"}}
	tool := NewFetchTool(fetcher)

	res, err := tool.Execute(context.Background(), map[string]any{"url": "https://example.com"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success || res.Content != "body text" {
		t.Fatalf("result wrong: %+v", res)
	}
	if res.Metadata["url"] != "https://example.com" || res.Metadata["title"] != "Example" {
		t.Fatalf("metadata wrong: %+v", res.Metadata)
	}
}

func TestFetchToolFailureIsResult(t *testing.T) {
	tool := NewFetchTool(&stubFetcher{err: errors.New("connection refused")})
	res, err := tool.Execute(context.Background(), map[string]any{"url": "https://down.example.com"})
	if err != nil {
		t.Fatalf("downstream failure must not be a hard error: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure result")
	}
	if !strings.Contains(res.Content, "Failed to fetch https://down.example.com") {
		t.Fatalf("failure content wrong: %s", res.Content)
	}
	if res.Metadata["url"] != "https://down.example.com" {
		t.Fatalf("failure metadata should carry the url: %+v", res.Metadata)
	}
}

func TestFetchToolMissingURL(t *testing.T) {
	tool := NewFetchTool(&stubFetcher{})
	res, err := tool.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success {
		t.Fatalf("missing url should fail")
	}
}
