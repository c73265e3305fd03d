// Package acquire provides the per-platform strategies that turn a public
// video page URL into a video the pipeline can transcode.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/maauso/clipgrab/internal/fetch"
	"github.com/maauso/clipgrab/internal/storage"
)

// Platform identifies where a video URL points to.
type Platform string

// Known platform tags.
const (
	PlatformTikTok  Platform = "tiktok"
	PlatformYouTube Platform = "youtube"
	PlatformDouyin  Platform = "douyin"
	PlatformGCS     Platform = "gcs"
	// PlatformS3 and PlatformObjectStore are aliases of PlatformGCS: the URL
	// is already a durable, directly downloadable object.
	PlatformS3          Platform = "s3"
	PlatformObjectStore Platform = "object-store"
)

// Static errors shared by the strategies.
var (
	// ErrEmptyResult is returned when a remote task produced no dataset items.
	ErrEmptyResult = errors.New("No items returned from remote task")
	// ErrMissingMediaURL is returned when the first item carries no media URL.
	ErrMissingMediaURL = errors.New("no media URL in remote task result")
	// ErrPollTimeout is returned when a remote task is still running after
	// the maximum number of polls.
	ErrPollTimeout = errors.New("remote task did not finish in time")
)

// Result is what a strategy acquired.
// Exactly one of LocalPath and SourceURL is set.
type Result struct {
	// LocalPath is a scratch file holding the video. The caller owns it and
	// must remove it.
	LocalPath string
	// SourceURL is a durable URL the video can be downloaded from.
	SourceURL string
}

// IsLocal reports whether the video was downloaded into scratch space.
func (r Result) IsLocal() bool {
	return r.LocalPath != ""
}

// Strategy acquires the video behind a page URL.
type Strategy interface {
	Acquire(ctx context.Context, url string) (Result, error)
}

// RemoteTaskError reports a remote task run that ended unsuccessfully.
type RemoteTaskError struct {
	RunID  string
	Status string
	Detail string
}

func (e *RemoteTaskError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("remote task %s finished with status %s", e.RunID, e.Status)
	}
	return fmt.Sprintf("remote task %s finished with status %s: %s", e.RunID, e.Status, e.Detail)
}

// downloadToScratch fetches url into a new scratch file and returns its path.
func downloadToScratch(ctx context.Context, f fetch.Fetcher, scratch storage.Scratch, name, url string, header http.Header) (string, error) {
	body, err := f.Fetch(ctx, url, header)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()

	path, err := scratch.SaveTemp(ctx, name, body)
	if err != nil {
		return "", fmt.Errorf("%w: save %s: %w", fetch.ErrDownloadFailed, url, err)
	}
	return path, nil
}
