// Package bootstrap provides dependency initialization for the clip service.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/clipgrab/internal/acquire"
	"github.com/maauso/clipgrab/internal/apify"
	"github.com/maauso/clipgrab/internal/batch"
	"github.com/maauso/clipgrab/internal/browser"
	"github.com/maauso/clipgrab/internal/config"
	"github.com/maauso/clipgrab/internal/fetch"
	"github.com/maauso/clipgrab/internal/media"
	"github.com/maauso/clipgrab/internal/storage"
)

// Dependencies holds all initialized dependencies shared by the HTTP server
// and the command line.
type Dependencies struct {
	BatchService *batch.Service
	Repository   batch.Repository

	transcoder *media.FFmpegProcessor
	launcher   *browser.ChromeLauncher
}

// NewDependencies creates and initializes all dependencies for the
// application. External tools are not probed; call Verify for that.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	scratch, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("scratch storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)

	store, err := initObjectStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	apifyClient, err := apify.NewClient(
		apify.WithToken(cfg.ApifyToken),
		apify.WithBaseURL(cfg.ApifyBaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create Apify client: %w", err)
	}

	fetcher := fetch.NewHTTPFetcher()
	transcoder := media.NewFFmpegProcessor(cfg.FFmpegPath, media.WithFFprobePath(cfg.FFprobePath))
	launcher := browser.NewChromeLauncher(cfg.BrowserExecPath)
	extractor := browser.NewExtractor(launcher,
		browser.WithNavTimeout(cfg.BrowserNavTimeout),
		browser.WithElementTimeout(cfg.BrowserElementTimeout),
		browser.WithSettleDelay(cfg.BrowserSettleDelay),
		browser.WithLogger(logger),
	)

	strategies := newStrategies(cfg, apifyClient, extractor, fetcher, scratch, logger)

	repo := batch.NewMemoryRepository(batch.WithMaxEntries(cfg.MaxTrackedBatches))

	svc := batch.NewService(
		strategies,
		transcoder,
		fetcher,
		scratch,
		store,
		repo,
		logger,
		batch.WithMaxConcurrentItems(cfg.MaxConcurrentItems),
		batch.WithItemTimeout(cfg.ItemTimeout),
		batch.WithClipOpts(media.ClipOpts{
			MaxDuration: cfg.MaxVideoDuration,
			FPS:         cfg.GIFFPS,
		}),
		batch.WithVideoFolder(cfg.StorageVideoFolder),
		batch.WithClipFolder(cfg.StorageClipFolder),
	)

	return &Dependencies{
		BatchService: svc,
		Repository:   repo,
		transcoder:   transcoder,
		launcher:     launcher,
	}, nil
}

// Verify checks that ffmpeg and the headless browser can be started.
func (d *Dependencies) Verify(ctx context.Context) error {
	if err := d.transcoder.VerifyInstalled(ctx); err != nil {
		return fmt.Errorf("verify ffmpeg: %w", err)
	}
	if err := d.launcher.Verify(ctx); err != nil {
		return fmt.Errorf("verify browser: %w", err)
	}
	return nil
}

// newStrategies builds the platform dispatch table.
func newStrategies(
	cfg *config.Config,
	client apify.Client,
	resolver acquire.MediaURLResolver,
	fetcher fetch.Fetcher,
	scratch storage.Scratch,
	logger *slog.Logger,
) map[acquire.Platform]batch.Acquirer {
	pollOpts := []acquire.RemoteOption{
		acquire.WithPollInterval(cfg.ApifyPollInterval),
		acquire.WithMaxPollAttempts(cfg.ApifyPollMaxAttempts),
		acquire.WithLogger(logger),
	}
	direct := acquire.NewDirectStrategy()

	return map[acquire.Platform]batch.Acquirer{
		acquire.PlatformTikTok:      acquire.NewTikTokStrategy(client, cfg.TikTokTaskID, pollOpts...),
		acquire.PlatformYouTube:     acquire.NewYouTubeStrategy(client, cfg.YouTubeTaskID, fetcher, scratch, pollOpts...),
		acquire.PlatformDouyin:      acquire.NewBrowserStrategy(resolver, fetcher, scratch),
		acquire.PlatformGCS:         direct,
		acquire.PlatformS3:          direct,
		acquire.PlatformObjectStore: direct,
	}
}

// initObjectStore creates the object store backend selected by configuration.
func initObjectStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.ObjectStore, error) {
	switch cfg.StorageBackend {
	case config.BackendS3:
		s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.StorageBucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.StorageBucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	default:
		gcsStore, err := storage.NewGCSStorage(ctx, storage.GCSConfig{
			Bucket:          cfg.StorageBucket,
			CredentialsFile: cfg.GCSCredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("create GCS storage: %w", err)
		}
		logger.Info("GCS storage configured",
			slog.String("bucket", cfg.StorageBucket),
		)
		return gcsStore, nil
	}
}
