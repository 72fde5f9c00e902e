package web_search

import (
	"context"
	"errors"
	"net/http"

	"github.com/mohammad-safakhou/deepresearch/tools/web_search/brave"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search/serper"
)

type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	BraveProvider  Provider = "brave"
	SerperProvider Provider = "serper"
)

var ErrUnsupportedProvider = errors.New("unsupported search provider")

func NewWebSearcher(provider Provider, apiKey string, httpClient *http.Client) (WebSearcher, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	switch provider {
	case BraveProvider:
		return brave.Search{ApiKey: apiKey, Client: httpClient}, nil
	case SerperProvider:
		return serper.Search{ApiKey: apiKey, Client: httpClient}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
