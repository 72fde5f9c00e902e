package core

import (
	"fmt"
	"net/http"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/provider"
	openai_provider "github.com/mohammad-safakhou/deepresearch/provider/openai"
	"github.com/mohammad-safakhou/deepresearch/tools"
	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search"
)

// NewLLMProvider builds the configured LLM backend with a shared
// connection pool sized for parallel workers.
func NewLLMProvider(cfg config.LLMConfig) (provider.Provider, error) {
	httpClient := provider.NewHTTPClient(cfg)
	switch cfg.Provider {
	case "openrouter", "openai", "":
		return openai_provider.New(cfg, httpClient)
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.Provider)
	}
}

// NewToolRegistry builds the search and fetch tools from config.
func NewToolRegistry(searchCfg config.SearchConfig, fetchCfg config.FetchConfig) (*tools.Registry, error) {
	searchProvider := searchCfg.Provider
	if searchProvider == "" {
		searchProvider = string(web_search.BraveProvider)
	}
	apiKey := searchCfg.BraveAPIKey
	if searchProvider == string(web_search.SerperProvider) {
		apiKey = searchCfg.SerperAPIKey
	}

	httpClient := &http.Client{Timeout: searchCfg.Timeout}
	searcher, err := web_search.NewWebSearcher(web_search.Provider(searchProvider), apiKey, httpClient)
	if err != nil {
		return nil, fmt.Errorf("search provider: %w", err)
	}

	fetcher, err := web_fetch.NewWebFetcher(web_fetch.FetcherType(fetchCfg.Backend), fetchCfg.Timeout, fetchCfg.MaxChars, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch backend: %w", err)
	}

	return tools.NewRegistry(
		tools.NewSearchTool(searcher, searchProvider, searchCfg.MaxResults),
		tools.NewFetchTool(fetcher),
	), nil
}
