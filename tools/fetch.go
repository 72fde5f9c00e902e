package tools

import (
	"context"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch"
)

// FetchTool exposes page retrieval to agents. Successful fetches mark the
// URL as a visited source for citation tracking.
type FetchTool struct {
	fetcher web_fetch.WebFetcher
	logger  *log.Logger
}

func NewFetchTool(fetcher web_fetch.WebFetcher) *FetchTool {
	return &FetchTool{
		fetcher: fetcher,
		logger:  log.New(log.Writer(), "[FETCH] ", log.LstdFlags),
	}
}

func (t *FetchTool) Name() string { return "fetch" }

func (t *FetchTool) Description() string {
	return "Fetch and read webpage content. Returns clean text."
}

func (t *FetchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "A single URL string to fetch (e.g., \"https://example.com\")",
			},
		},
		"required": []string{"url"},
	}
}

func (t *FetchTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	url, coerced, err := CoerceFirst(args["url"])
	if err != nil {
		return ToolResult{Success: false, Content: fmt.Sprintf("Failed to fetch: %v", err), Metadata: map[string]any{"error": err.Error()}}, nil
	}
	if coerced {
		t.logger.Printf("coerced non-string url to: %s", url)
	}

	result, err := t.fetcher.Exec(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return ToolResult{}, ctx.Err()
		}
		t.logger.Printf("fetch error for %s: %v", url, err)
		return ToolResult{
			Success:  false,
			Content:  fmt.Sprintf("Failed to fetch %s: %v", url, err),
			Metadata: map[string]any{"error": err.Error(), "url": url},
		}, nil
	}

	t.logger.Printf("fetched %s (%d chars)", url, len(result.Text))
	return ToolResult{
		Success:  true,
		Content:  result.Text,
		Metadata: map[string]any{"url": url, "length": len(result.Text), "title": result.Title},
	}, nil
}
