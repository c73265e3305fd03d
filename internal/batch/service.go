package batch

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/clipgrab/internal/acquire"
	"github.com/maauso/clipgrab/internal/fetch"
	"github.com/maauso/clipgrab/internal/media"
	"github.com/maauso/clipgrab/internal/storage"
)

// Defaults for Service options.
const (
	DefaultMaxConcurrentItems = 3
	DefaultItemTimeout        = 10 * time.Minute
	DefaultClipFolder         = "clips"
)

// Service runs batches: it acquires every URL with the strategy registered
// for its platform, stores the video and a GIF clip of it, and reports one
// ItemResult per URL. An item failure never fails the batch.
type Service struct {
	strategies map[acquire.Platform]Acquirer
	transcoder Transcoder
	fetcher    Fetcher
	scratch    storage.Scratch
	store      ObjectStore
	repo       Repository
	logger     *slog.Logger

	maxConcurrentItems int
	itemTimeout        time.Duration
	clipOpts           media.ClipOpts
	videoFolder        string
	clipFolder         string
}

// Option configures a Service.
type Option func(*Service)

// WithMaxConcurrentItems limits how many items are processed in parallel.
func WithMaxConcurrentItems(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrentItems = n
		}
	}
}

// WithItemTimeout bounds the processing time of a single item.
func WithItemTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.itemTimeout = d
		}
	}
}

// WithClipOpts sets the clip duration and frame rate.
func WithClipOpts(opts media.ClipOpts) Option {
	return func(s *Service) {
		s.clipOpts = opts
	}
}

// WithVideoFolder sets the object key prefix for stored videos.
func WithVideoFolder(folder string) Option {
	return func(s *Service) {
		s.videoFolder = folder
	}
}

// WithClipFolder sets the object key prefix for stored clips.
func WithClipFolder(folder string) Option {
	return func(s *Service) {
		s.clipFolder = folder
	}
}

// NewService creates a Service. The strategies map is copied; it is the
// dispatch table for the life of the service.
func NewService(
	strategies map[acquire.Platform]Acquirer,
	transcoder Transcoder,
	fetcher Fetcher,
	scratch storage.Scratch,
	store ObjectStore,
	repo Repository,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	table := make(map[acquire.Platform]Acquirer, len(strategies))
	for p, a := range strategies {
		table[p] = a
	}

	s := &Service{
		strategies:         table,
		transcoder:         transcoder,
		fetcher:            fetcher,
		scratch:            scratch,
		store:              store,
		repo:               repo,
		logger:             logger,
		maxConcurrentItems: DefaultMaxConcurrentItems,
		itemTimeout:        DefaultItemTimeout,
		clipOpts:           media.DefaultClipOpts(),
		clipFolder:         DefaultClipFolder,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessBatch processes items and returns one result per item, in input
// order. It never fails; item errors are reported in the results.
func (s *Service) ProcessBatch(ctx context.Context, label string, items []VideoRequest) BatchResult {
	b := New(label, len(items))
	log := s.logger.With(slog.String("task_id", b.ID))

	log.Info("batch accepted",
		slog.String("label", label),
		slog.Int("items", len(items)),
	)
	s.saveBatch(ctx, b)

	if err := b.Start(); err != nil {
		log.Error("failed to start batch", slog.String("error", err.Error()))
	}
	s.saveBatch(ctx, b)

	started := time.Now()
	results := make([]ItemResult, len(items))

	// Plain group: one item's failure must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(s.maxConcurrentItems)
	for i, item := range items {
		g.Go(func() error {
			results[i] = s.processItem(ctx, item)
			b.RecordItem(results[i].OK())
			s.saveBatch(ctx, b)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		_ = b.Cancel()
	} else {
		_ = b.Complete()
	}
	s.saveBatch(ctx, b)

	result := BatchResult{TaskID: b.ID, Results: results}
	log.Info("batch finished",
		slog.String("status", string(b.GetStatus())),
		slog.Int("successful", result.Successful()),
		slog.Int("failed", result.Failed()),
		slog.Duration("elapsed", time.Since(started)),
	)
	return result
}

// GetTaskStatus returns the status of a batch, or "unknown" if the ID is
// not tracked.
func (s *Service) GetTaskStatus(ctx context.Context, taskID string) string {
	b, err := s.repo.FindByID(ctx, taskID)
	if err != nil {
		return StatusUnknown
	}
	return string(b.Status)
}

// processItem runs one item under its own deadline and converts every
// error, including panics, into a failed result.
func (s *Service) processItem(ctx context.Context, req VideoRequest) (res ItemResult) {
	log := s.logger.With(
		slog.String("url", req.URL),
		slog.String("platform", string(req.Platform)),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing item",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			res = failed(req.URL, fmt.Sprintf("internal error: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.itemTimeout)
	defer cancel()

	videoURL, clipURL, err := s.runItem(ctx, req)
	if err != nil {
		log.Warn("item failed", slog.String("error", err.Error()))
		return failed(req.URL, err.Error())
	}

	log.Info("item processed", slog.String("gif_url", clipURL))
	return succeeded(req.URL, videoURL, clipURL)
}

func (s *Service) runItem(ctx context.Context, req VideoRequest) (videoURL, clipURL string, err error) {
	strategy, ok := s.strategies[req.Platform]
	if !ok {
		return "", "", &UnsupportedPlatformError{Platform: req.Platform}
	}

	acq, err := strategy.Acquire(ctx, req.URL)
	if err != nil {
		return "", "", err
	}

	if !acq.IsLocal() {
		clipURL, err = s.ConvertAndStore(ctx, acq.SourceURL)
		if err != nil {
			return "", "", err
		}
		return acq.SourceURL, clipURL, nil
	}

	defer s.cleanup(ctx, acq.LocalPath)

	videoURL, err = s.uploadFile(ctx, acq.LocalPath, s.videoFolder, ".mp4", "video/mp4")
	if err != nil {
		return "", "", err
	}

	clipURL, err = s.clipFromFile(ctx, acq.LocalPath)
	if err != nil {
		return "", "", err
	}

	return videoURL, clipURL, nil
}

// ConvertAndStore downloads the video at sourceURL, turns it into a GIF
// clip and uploads the clip. It returns the clip's public URL. Scratch
// files are removed on every path.
func (s *Service) ConvertAndStore(ctx context.Context, sourceURL string) (string, error) {
	body, err := s.fetcher.Fetch(ctx, sourceURL, nil)
	if err != nil {
		return "", err
	}

	src, err := s.scratch.SaveTemp(ctx, "source", body)
	_ = body.Close()
	if err != nil {
		return "", fmt.Errorf("%w: save %s: %w", fetch.ErrDownloadFailed, sourceURL, err)
	}
	defer s.cleanup(ctx, src)

	return s.clipFromFile(ctx, src)
}

// clipFromFile transcodes a local video into a scratch GIF and uploads it.
func (s *Service) clipFromFile(ctx context.Context, src string) (string, error) {
	dst, err := s.scratch.TempPath(ctx, "clip", ".gif")
	if err != nil {
		return "", fmt.Errorf("%w: %w", media.ErrTranscodeFailed, err)
	}
	defer s.cleanup(ctx, dst)

	if err := s.transcoder.MakeClip(ctx, src, dst, s.clipOpts); err != nil {
		return "", err
	}

	return s.uploadFile(ctx, dst, s.clipFolder, ".gif", "image/gif")
}

// uploadFile stores a scratch file under folder with a random name.
func (s *Service) uploadFile(ctx context.Context, file, folder, ext, contentType string) (string, error) {
	r, err := s.scratch.LoadTemp(ctx, file)
	if err != nil {
		return "", fmt.Errorf("%w: %w", storage.ErrUploadFailed, err)
	}
	defer func() { _ = r.Close() }()

	key := path.Join(folder, uuid.NewString()+ext)
	return s.store.Upload(ctx, key, r, contentType)
}

// cleanup removes scratch files even when ctx is already cancelled.
func (s *Service) cleanup(ctx context.Context, paths ...string) {
	if err := s.scratch.CleanupTemp(context.WithoutCancel(ctx), paths); err != nil {
		s.logger.Warn("failed to remove scratch files",
			slog.Any("paths", paths),
			slog.String("error", err.Error()),
		)
	}
}

// saveBatch persists the batch record. The record outlives the request, so
// a cancelled request still records its final state.
func (s *Service) saveBatch(ctx context.Context, b *Batch) {
	if err := s.repo.Save(context.WithoutCancel(ctx), b); err != nil {
		s.logger.Warn("failed to save batch",
			slog.String("task_id", b.ID),
			slog.String("error", err.Error()),
		)
	}
}
