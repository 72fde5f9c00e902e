package tools

import (
	"context"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/deepresearch/tools/web_search"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
)

// SearchTool exposes web search to agents. Results come back as markdown
// so the model can cite titles and URLs directly.
type SearchTool struct {
	searcher   web_search.WebSearcher
	provider   string
	maxResults int
	logger     *log.Logger
}

func NewSearchTool(searcher web_search.WebSearcher, provider string, maxResults int) *SearchTool {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &SearchTool{
		searcher:   searcher,
		provider:   provider,
		maxResults: maxResults,
		logger:     log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
	}
}

func (t *SearchTool) Name() string { return "search" }

func (t *SearchTool) Description() string {
	return "Search the web for information. Returns title, snippet, URL for results."
}

func (t *SearchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "A single search query string (e.g., \"Go memory model\")",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results to return (default: 10)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	query, coerced, err := CoerceJoin(args["query"])
	if err != nil {
		return ToolResult{Success: false, Content: fmt.Sprintf("Search failed: %v", err), Metadata: map[string]any{"error": err.Error()}}, nil
	}
	if coerced {
		t.logger.Printf("coerced non-string query to: %.100q", query)
	}
	maxResults := IntArg(args, "max_results", t.maxResults)

	results, err := t.searcher.Discover(ctx, query, maxResults)
	if err != nil {
		if ctx.Err() != nil {
			return ToolResult{}, ctx.Err()
		}
		t.logger.Printf("search error for %q: %v", query, err)
		return ToolResult{
			Success:  false,
			Content:  fmt.Sprintf("Search failed: %v", err),
			Metadata: map[string]any{"error": err.Error()},
		}, nil
	}

	t.logger.Printf("search %q returned %d results", query, len(results))
	return ToolResult{
		Success:  true,
		Content:  formatResults(results),
		Metadata: map[string]any{"query": query, "count": len(results), "provider": t.provider},
	}, nil
}

func formatResults(results []models.Result) string {
	formatted := "# Search Results\n\n"
	for i, r := range results {
		formatted += fmt.Sprintf("## Result %d\n", i+1)
		formatted += fmt.Sprintf("**Title**: %s\n", r.Title)
		formatted += fmt.Sprintf("**URL**: %s\n", r.URL)
		formatted += fmt.Sprintf("**Snippet**: %s\n\n", r.Snippet)
	}
	return formatted
}
