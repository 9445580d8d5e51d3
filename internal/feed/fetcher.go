// Package feed handles downloading the monitored RSS feed and extracting
// post candidates from it.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchError reports a non-success HTTP response from the feed source.
type FetchError struct {
	StatusCode int
	Snippet    string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("feed returned status %d: %s", e.StatusCode, e.Snippet)
}

// Fetcher downloads the raw feed document.
type Fetcher struct {
	client HTTPClient
	url    string
}

// NewFetcher creates a Fetcher for the given feed URL.
func NewFetcher(client HTTPClient, url string) *Fetcher {
	return &Fetcher{client: client, url: url}
}

// Fetch downloads the feed and returns the raw document text.
// A non-2xx response yields a *FetchError carrying the status code and a
// snippet of the response body. There is no retry here; the next scheduled
// tick is the retry.
func (f *Fetcher) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	// Browser-like headers: the feed source rejects obvious bot user agents.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Referer", "https://www.nodeseek.com/")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return "", &FetchError{StatusCode: resp.StatusCode, Snippet: snippet}
	}

	return string(body), nil
}
