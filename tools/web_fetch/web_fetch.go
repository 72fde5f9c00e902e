package web_fetch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch/models"
)

const (
	DefaultTimeout  = 60 * time.Second
	MaxCharsDefault = 10_000
)

type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

type FetcherType string

const (
	SimpleFetcherType   FetcherType = "simple"
	ChromedpFetcherType FetcherType = "chromedp"
)

var ErrUnsupportedFetcher = errors.New("unsupported fetcher type")

func NewWebFetcher(fetcherType FetcherType, timeout time.Duration, maxChars int, httpClient *http.Client) (WebFetcher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}
	switch fetcherType {
	case SimpleFetcherType, "":
		if httpClient == nil {
			httpClient = &http.Client{Timeout: timeout}
		}
		return &SimpleFetch{Timeout: timeout, MaxChars: maxChars, Client: httpClient}, nil
	case ChromedpFetcherType:
		return &chromedp.Fetch{Timeout: timeout, MaxChars: maxChars}, nil
	default:
		return nil, ErrUnsupportedFetcher
	}
}
