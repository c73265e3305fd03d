// Package fetch downloads remote media over plain HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Static errors for fetch operations.
var (
	// ErrEmptyURL is returned when no URL is given.
	ErrEmptyURL = errors.New("fetch: URL is required")
	// ErrDownloadFailed is returned when the server answers with a non-2xx status.
	ErrDownloadFailed = errors.New("fetch: download failed")
)

// Fetcher opens a remote resource for reading.
type Fetcher interface {
	// Fetch issues a GET for url with the given extra headers and returns
	// the response body. The caller must close it.
	Fetch(ctx context.Context, url string, header http.Header) (io.ReadCloser, error)
}

// HTTPFetcher implements Fetcher with net/http. Redirects are followed.
type HTTPFetcher struct {
	client *http.Client
}

// Option is a function that configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

// NewHTTPFetcher creates a new HTTPFetcher.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{
			Timeout: 10 * time.Minute, // Videos can be large
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads url. Any 2xx status is accepted so byte-range requests
// answered with 206 succeed.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, header http.Header) (io.ReadCloser, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w with status %d", ErrDownloadFailed, resp.StatusCode)
	}

	return resp.Body, nil
}
