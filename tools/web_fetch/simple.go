package web_fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch/models"
)

// SimpleFetch retrieves pages with a plain HTTP GET and extracts readable
// text. Pages that need JavaScript rendering should use the chromedp
// fetcher instead.
type SimpleFetch struct {
	Timeout  time.Duration
	MaxChars int
	Client   *http.Client
}

func (f *SimpleFetch) Exec(ctx context.Context, rawURL string) (models.Result, error) {
	if strings.TrimSpace(rawURL) == "" {
		return models.Result{}, fmt.Errorf("invalid url")
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return models.Result{}, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", "deepresearch/1.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return models.Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Result{URL: rawURL, Status: resp.StatusCode}, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return models.Result{URL: rawURL, Status: resp.StatusCode}, err
	}

	parsed, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsed)
	if err != nil {
		return models.Result{URL: rawURL, Status: resp.StatusCode}, fmt.Errorf("content extraction failed: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > f.MaxChars {
		text = text[:f.MaxChars] + "\n\n[Content truncated...]"
	}

	return models.Result{
		URL:    rawURL,
		Title:  strings.TrimSpace(article.Title),
		Text:   text,
		Status: resp.StatusCode,
	}, nil
}
