package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/clipgrab/internal/apify"
	"github.com/maauso/clipgrab/internal/fetch"
	"github.com/maauso/clipgrab/internal/storage"
)

// Default poll settings for remote task runs.
const (
	DefaultPollInterval    = 5 * time.Second
	DefaultMaxPollAttempts = 120
)

// RemoteTask acquires videos by running a saved scraping task on Apify,
// waiting for it to finish and reading the media URL from its first result.
type RemoteTask struct {
	client          apify.Client
	taskID          string
	name            string
	buildInput      func(url string) any
	extract         func(ctx context.Context, item apify.Item) (Result, error)
	pollInterval    time.Duration
	maxPollAttempts int
	logger          *slog.Logger
}

// RemoteOption configures a RemoteTask.
type RemoteOption func(*RemoteTask)

// WithPollInterval sets the delay between run status polls.
func WithPollInterval(d time.Duration) RemoteOption {
	return func(r *RemoteTask) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithMaxPollAttempts caps the number of status polls per run.
func WithMaxPollAttempts(n int) RemoteOption {
	return func(r *RemoteTask) {
		if n > 0 {
			r.maxPollAttempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RemoteOption {
	return func(r *RemoteTask) {
		if l != nil {
			r.logger = l
		}
	}
}

func newRemoteTask(client apify.Client, taskID, name string, opts []RemoteOption) *RemoteTask {
	r := &RemoteTask{
		client:          client,
		taskID:          taskID,
		name:            name,
		pollInterval:    DefaultPollInterval,
		maxPollAttempts: DefaultMaxPollAttempts,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// tiktokInput is the run input override for the TikTok scraper task.
type tiktokInput struct {
	DisableCheerioBoost           bool     `json:"disableCheerioBoost"`
	DisableEnrichAuthorStats      bool     `json:"disableEnrichAuthorStats"`
	ResultsPerPage                int      `json:"resultsPerPage"`
	SearchSection                 string   `json:"searchSection"`
	ShouldDownloadCovers          bool     `json:"shouldDownloadCovers"`
	ShouldDownloadSlideshowImages bool     `json:"shouldDownloadSlideshowImages"`
	ShouldDownloadVideos          bool     `json:"shouldDownloadVideos"`
	MaxProfilesPerQuery           int      `json:"maxProfilesPerQuery"`
	TikTokMemoryMB                string   `json:"tiktokMemoryMb"`
	PostURLs                      []string `json:"postURLs"`
}

// NewTikTokStrategy returns a strategy that resolves TikTok posts to the
// copy of the video the scraper stored in cloud storage.
func NewTikTokStrategy(client apify.Client, taskID string, opts ...RemoteOption) *RemoteTask {
	r := newRemoteTask(client, taskID, string(PlatformTikTok), opts)
	r.buildInput = func(url string) any {
		return tiktokInput{
			ResultsPerPage:       1,
			SearchSection:        "/video",
			ShouldDownloadCovers: true,
			ShouldDownloadVideos: true,
			MaxProfilesPerQuery:  10,
			TikTokMemoryMB:       "default",
			PostURLs:             []string{url},
		}
	}
	r.extract = func(_ context.Context, item apify.Item) (Result, error) {
		urls, _ := item["gcsMediaUrls"].([]any)
		if len(urls) == 0 {
			return Result{}, fmt.Errorf("%w: gcsMediaUrls", ErrMissingMediaURL)
		}
		u, _ := urls[0].(string)
		if u == "" {
			return Result{}, fmt.Errorf("%w: gcsMediaUrls", ErrMissingMediaURL)
		}
		return Result{SourceURL: u}, nil
	}
	return r
}

type apifyProxy struct {
	UseApifyProxy bool `json:"useApifyProxy"`
}

// youtubeInput is the run input override for the YouTube Shorts downloader task.
type youtubeInput struct {
	IncludeFailedVideos bool       `json:"includeFailedVideos"`
	Proxy               apifyProxy `json:"proxy"`
	Quality             string     `json:"quality"`
	StartURLs           []string   `json:"startUrls"`
	UseFfmpeg           bool       `json:"useFfmpeg"`
}

// NewYouTubeStrategy returns a strategy that resolves YouTube Shorts to a
// temporary download URL and fetches the video into scratch space.
func NewYouTubeStrategy(client apify.Client, taskID string, f fetch.Fetcher, scratch storage.Scratch, opts ...RemoteOption) *RemoteTask {
	r := newRemoteTask(client, taskID, string(PlatformYouTube), opts)
	r.buildInput = func(url string) any {
		return youtubeInput{
			Proxy:     apifyProxy{UseApifyProxy: true},
			Quality:   "480",
			StartURLs: []string{url},
		}
	}
	r.extract = func(ctx context.Context, item apify.Item) (Result, error) {
		u, _ := item["downloadUrl"].(string)
		if u == "" {
			return Result{}, fmt.Errorf("%w: downloadUrl", ErrMissingMediaURL)
		}
		path, err := downloadToScratch(ctx, f, scratch, "youtube", u, nil)
		if err != nil {
			return Result{}, err
		}
		return Result{LocalPath: path}, nil
	}
	return r
}

// Acquire runs the task for url and extracts the video from the first
// dataset item.
func (r *RemoteTask) Acquire(ctx context.Context, url string) (Result, error) {
	res, err := r.acquire(ctx, url)
	if err != nil && r.name == string(PlatformYouTube) {
		return Result{}, fmt.Errorf("Failed to download YouTube Shorts video: %w", err)
	}
	return res, err
}

func (r *RemoteTask) acquire(ctx context.Context, url string) (Result, error) {
	runID, err := r.client.RunTask(ctx, r.taskID, r.buildInput(url))
	if err != nil {
		return Result{}, err
	}

	r.logger.Debug("remote task started",
		slog.String("platform", r.name),
		slog.String("run_id", runID),
	)

	datasetID, err := r.waitForRun(ctx, runID)
	if err != nil {
		return Result{}, err
	}

	items, err := r.client.DatasetItems(ctx, datasetID)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{}, ErrEmptyResult
	}

	return r.extract(ctx, items[0])
}

// waitForRun polls the run until it reaches a terminal status and returns
// its dataset ID. The first poll happens immediately.
func (r *RemoteTask) waitForRun(ctx context.Context, runID string) (string, error) {
	for attempt := 1; ; attempt++ {
		run, err := r.client.GetRun(ctx, runID)
		if err != nil {
			return "", err
		}

		switch run.Status {
		case apify.StatusSucceeded:
			return run.DatasetID, nil
		case apify.StatusFailed, apify.StatusAborted, apify.StatusTimedOut:
			return "", &RemoteTaskError{RunID: runID, Status: string(run.Status), Detail: run.Error}
		}

		if attempt >= r.maxPollAttempts {
			return "", fmt.Errorf("%w: run %s still %s after %d polls", ErrPollTimeout, runID, run.Status, attempt)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}
