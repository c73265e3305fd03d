// Package browser drives a headless browser to pages whose media URL is
// only discoverable at load time, and captures that URL from network traffic.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Static errors for media URL extraction.
var (
	// ErrInvalidURL is returned when the page URL carries no numeric video ID.
	ErrInvalidURL = errors.New("browser: unable to extract video ID from URL")
	// ErrMediaURLNotFound is returned when no network response matched a media URL.
	ErrMediaURLNotFound = errors.New("browser: failed to extract video URL")
)

var videoIDPattern = regexp.MustCompile(`/video/(\d+)`)

// Default timings for a page visit.
const (
	DefaultNavTimeout     = 120 * time.Second
	DefaultElementTimeout = 15 * time.Second
	DefaultSettleDelay    = 5 * time.Second
)

// mediaSelector marks that the page rendered its player.
const mediaSelector = "video"

// Session is one headless browser tab.
type Session interface {
	// OnResponse registers fn to be called with the URL of every network
	// response received after registration.
	OnResponse(fn func(url string))
	// Navigate loads url and waits for the page load event.
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until an element matching selector is visible.
	WaitVisible(ctx context.Context, selector string) error
	// Close releases the session.
	Close() error
}

// Launcher opens headless browser sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// VideoID returns the numeric video identifier embedded in a page URL.
func VideoID(pageURL string) (string, error) {
	m := videoIDPattern.FindStringSubmatch(pageURL)
	if m == nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, pageURL)
	}
	return m[1], nil
}

// IsMediaResponse reports whether a response URL looks like the page's
// video payload.
func IsMediaResponse(u string) bool {
	if !strings.Contains(u, "video") {
		return false
	}
	return strings.HasSuffix(u, ".mp4") || strings.Contains(u, "mime_type=video_mp4")
}

// Extractor finds the media URL behind a video page.
type Extractor struct {
	launcher       Launcher
	navTimeout     time.Duration
	elementTimeout time.Duration
	settleDelay    time.Duration
	logger         *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithNavTimeout sets the page navigation timeout.
func WithNavTimeout(d time.Duration) ExtractorOption {
	return func(e *Extractor) {
		e.navTimeout = d
	}
}

// WithElementTimeout sets how long to wait for the video element.
func WithElementTimeout(d time.Duration) ExtractorOption {
	return func(e *Extractor) {
		e.elementTimeout = d
	}
}

// WithSettleDelay sets the pause after page load before the session closes.
func WithSettleDelay(d time.Duration) ExtractorOption {
	return func(e *Extractor) {
		e.settleDelay = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = l
	}
}

// NewExtractor creates an Extractor backed by launcher.
func NewExtractor(launcher Launcher, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		launcher:       launcher,
		navTimeout:     DefaultNavTimeout,
		elementTimeout: DefaultElementTimeout,
		settleDelay:    DefaultSettleDelay,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MediaURL loads pageURL in a fresh session and returns the first network
// response URL that matches IsMediaResponse.
//
// The first match is not guaranteed to be the main video; pages may load
// previews or adjacent videos first.
func (e *Extractor) MediaURL(ctx context.Context, pageURL string) (string, error) {
	videoID, err := VideoID(pageURL)
	if err != nil {
		return "", err
	}

	session, err := e.launcher.Launch(ctx)
	if err != nil {
		return "", fmt.Errorf("browser: launch: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			e.logger.Warn("failed to close browser session", slog.String("error", cerr.Error()))
		}
	}()

	var (
		mu       sync.Mutex
		captured string
	)
	session.OnResponse(func(u string) {
		if !IsMediaResponse(u) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if captured == "" {
			captured = u
		}
	})

	navCtx, cancel := context.WithTimeout(ctx, e.navTimeout)
	err = session.Navigate(navCtx, pageURL)
	cancel()
	if err != nil {
		return "", fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.elementTimeout)
	if err := session.WaitVisible(waitCtx, mediaSelector); err != nil {
		e.logger.Debug("video element not visible, continuing",
			slog.String("video_id", videoID),
			slog.String("error", err.Error()),
		)
	}
	cancel()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(e.settleDelay):
	}

	mu.Lock()
	mediaURL := captured
	mu.Unlock()

	if mediaURL == "" {
		return "", fmt.Errorf("%w: video %s", ErrMediaURLNotFound, videoID)
	}

	e.logger.Debug("captured media URL", slog.String("video_id", videoID))
	return mediaURL, nil
}
