package batch

import (
	"context"
	"io"
	"net/http"

	"github.com/maauso/clipgrab/internal/acquire"
	"github.com/maauso/clipgrab/internal/media"
)

//go:generate mockgen -source=ports.go -destination=mocks/mock.go

// Acquirer turns a page URL into a video; one per platform.
type Acquirer interface {
	Acquire(ctx context.Context, url string) (acquire.Result, error)
}

// Fetcher downloads a remote video.
type Fetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) (io.ReadCloser, error)
}

// Transcoder turns a local video into a looping clip.
type Transcoder interface {
	MakeClip(ctx context.Context, src, dst string, opts media.ClipOpts) error
}

// ObjectStore persists videos and clips.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error)
}
