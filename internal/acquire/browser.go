package acquire

import (
	"context"
	"net/http"

	"github.com/maauso/clipgrab/internal/browser"
	"github.com/maauso/clipgrab/internal/fetch"
	"github.com/maauso/clipgrab/internal/storage"
)

// MediaURLResolver finds the media URL behind a video page.
type MediaURLResolver interface {
	MediaURL(ctx context.Context, pageURL string) (string, error)
}

// Browser acquires videos whose media URL only shows up in the network
// traffic of a rendered page, then downloads them with browser headers.
type Browser struct {
	resolver MediaURLResolver
	fetcher  fetch.Fetcher
	scratch  storage.Scratch
}

// NewBrowserStrategy returns the Douyin strategy.
func NewBrowserStrategy(resolver MediaURLResolver, f fetch.Fetcher, scratch storage.Scratch) *Browser {
	return &Browser{resolver: resolver, fetcher: f, scratch: scratch}
}

// Acquire extracts the media URL for url and downloads it into scratch space.
func (b *Browser) Acquire(ctx context.Context, url string) (Result, error) {
	mediaURL, err := b.resolver.MediaURL(ctx, url)
	if err != nil {
		return Result{}, err
	}

	path, err := downloadToScratch(ctx, b.fetcher, b.scratch, "douyin", mediaURL, downloadHeader())
	if err != nil {
		return Result{}, err
	}
	return Result{LocalPath: path}, nil
}

// downloadHeader makes the CDN treat the download as the page's own player.
func downloadHeader() http.Header {
	h := http.Header{}
	h.Set("User-Agent", browser.DesktopUserAgent)
	h.Set("Referer", "https://www.douyin.com/")
	h.Set("Range", "bytes=0-")
	return h
}
