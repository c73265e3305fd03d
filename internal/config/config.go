// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrApifyTokenRequired is returned when APIFY_API_TOKEN is not set.
	ErrApifyTokenRequired = errors.New("config: APIFY_API_TOKEN is required")
	// ErrTikTokTaskIDRequired is returned when TIKTOK_SCRAPER_TASK_ID is not set.
	ErrTikTokTaskIDRequired = errors.New("config: TIKTOK_SCRAPER_TASK_ID is required")
	// ErrYouTubeTaskIDRequired is returned when YOUTUBE_SCRAPER_TASK_ID is not set.
	ErrYouTubeTaskIDRequired = errors.New("config: YOUTUBE_SCRAPER_TASK_ID is required")
	// ErrBucketRequired is returned when STORAGE_BUCKET is not set.
	ErrBucketRequired = errors.New("config: STORAGE_BUCKET is required")
	// ErrClipFolderRequired is returned when STORAGE_CLIP_FOLDER is not set.
	ErrClipFolderRequired = errors.New("config: STORAGE_CLIP_FOLDER is required")
	// ErrUnknownStorageBackend is returned when STORAGE_BACKEND is neither gcs nor s3.
	ErrUnknownStorageBackend = errors.New("config: STORAGE_BACKEND must be gcs or s3")
	// ErrS3RegionRequired is returned when the s3 backend is selected without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required for the s3 backend")
	// ErrInvalidClipSettings is returned when MAX_VIDEO_DURATION or GIF_FPS is not positive.
	ErrInvalidClipSettings = errors.New("config: MAX_VIDEO_DURATION and GIF_FPS must be positive")
)

// Storage backends.
const (
	BackendGCS = "gcs"
	BackendS3  = "s3"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	APIPrefix      string   `env:"API_PREFIX" json:"api_prefix"`
	AllowedHosts   []string `env:"ALLOWED_HOSTS, default=*" json:"allowed_hosts"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// Apify settings
	ApifyToken           string        `env:"APIFY_API_TOKEN, required" json:"-"` // Masked in JSON
	ApifyBaseURL         string        `env:"APIFY_BASE_URL, default=https://api.apify.com/v2" json:"apify_base_url"`
	TikTokTaskID         string        `env:"TIKTOK_SCRAPER_TASK_ID, required" json:"tiktok_task_id"`
	YouTubeTaskID        string        `env:"YOUTUBE_SCRAPER_TASK_ID, required" json:"youtube_task_id"`
	ApifyPollInterval    time.Duration `env:"APIFY_POLL_INTERVAL, default=5s" json:"apify_poll_interval"`
	ApifyPollMaxAttempts int           `env:"APIFY_POLL_MAX_ATTEMPTS, default=120" json:"apify_poll_max_attempts"`

	// Object store settings
	StorageBackend     string `env:"STORAGE_BACKEND, default=gcs" json:"storage_backend"`
	StorageBucket      string `env:"STORAGE_BUCKET, required" json:"storage_bucket"`
	StorageVideoFolder string `env:"STORAGE_VIDEO_FOLDER" json:"storage_video_folder"`
	StorageClipFolder  string `env:"STORAGE_CLIP_FOLDER, required" json:"storage_clip_folder"`
	GCSCredentialsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS" json:"-"`

	// Optional S3 settings
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Clip settings
	MaxVideoDuration float64 `env:"MAX_VIDEO_DURATION, default=2" json:"max_video_duration"`
	GIFFPS           int     `env:"GIF_FPS, default=3" json:"gif_fps"`
	FFmpegPath       string  `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath      string  `env:"FFPROBE_PATH" json:"ffprobe_path,omitempty"` // defaults to ffprobe beside FFMPEG_PATH

	// Processing settings
	TempDir            string        `env:"TEMP_DIR, default=/tmp/clipgrab" json:"temp_dir"`
	MaxConcurrentItems int           `env:"MAX_CONCURRENT_ITEMS, default=3" json:"max_concurrent_items"`
	ItemTimeout        time.Duration `env:"ITEM_TIMEOUT, default=10m" json:"item_timeout"`
	MaxTrackedBatches  int           `env:"MAX_TRACKED_BATCHES, default=1000" json:"max_tracked_batches"`

	// Browser settings
	BrowserExecPath       string        `env:"BROWSER_EXEC_PATH" json:"browser_exec_path,omitempty"`
	BrowserNavTimeout     time.Duration `env:"BROWSER_NAV_TIMEOUT, default=120s" json:"browser_nav_timeout"`
	BrowserElementTimeout time.Duration `env:"BROWSER_ELEMENT_TIMEOUT, default=15s" json:"browser_element_timeout"`
	BrowserSettleDelay    time.Duration `env:"BROWSER_SETTLE_DELAY, default=5s" json:"browser_settle_delay"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// requiredVars maps the names of required variables to their sentinel errors.
var requiredVars = []struct {
	name string
	err  error
}{
	{"APIFY_API_TOKEN", ErrApifyTokenRequired},
	{"TIKTOK_SCRAPER_TASK_ID", ErrTikTokTaskIDRequired},
	{"YOUTUBE_SCRAPER_TASK_ID", ErrYouTubeTaskIDRequired},
	{"STORAGE_BUCKET", ErrBucketRequired},
	{"STORAGE_CLIP_FOLDER", ErrClipFolderRequired},
}

// Load reads configuration from environment variables using go-envconfig.
// Variables from a .env file in the working directory are loaded first;
// a missing file is not an error.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is like Load but reads the dotenv file at path. Variables already
// present in the environment take precedence over the file.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		for _, rv := range requiredVars {
			if strings.Contains(err.Error(), rv.name) && strings.Contains(err.Error(), "missing required") {
				return nil, rv.err
			}
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if c.ApifyToken == "" {
		return ErrApifyTokenRequired
	}
	if c.TikTokTaskID == "" {
		return ErrTikTokTaskIDRequired
	}
	if c.YouTubeTaskID == "" {
		return ErrYouTubeTaskIDRequired
	}
	if c.StorageBucket == "" {
		return ErrBucketRequired
	}
	if c.StorageClipFolder == "" {
		return ErrClipFolderRequired
	}
	switch c.StorageBackend {
	case BackendGCS:
	case BackendS3:
		if c.S3Region == "" {
			return ErrS3RegionRequired
		}
	default:
		return fmt.Errorf("%w (got %q)", ErrUnknownStorageBackend, c.StorageBackend)
	}
	if c.MaxVideoDuration <= 0 || c.GIFFPS <= 0 {
		return ErrInvalidClipSettings
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, APIPrefix: %s, ApifyBaseURL: %s, TikTokTaskID: %s, YouTubeTaskID: %s, StorageBackend: %s, StorageBucket: %s, StorageClipFolder: %s, MaxVideoDuration: %g, GIFFPS: %d, TempDir: %s, MaxConcurrentItems: %d, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.APIPrefix,
		c.ApifyBaseURL,
		c.TikTokTaskID,
		c.YouTubeTaskID,
		c.StorageBackend,
		c.StorageBucket,
		c.StorageClipFolder,
		c.MaxVideoDuration,
		c.GIFFPS,
		c.TempDir,
		c.MaxConcurrentItems,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
