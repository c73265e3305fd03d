// Package cmd implements the clipgrab command line.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/maauso/clipgrab/internal/config"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "clipgrab",
	Short: "Turn short-form video links into looping GIF clips",
	Long: `clipgrab downloads short-form videos from TikTok, YouTube Shorts, Douyin
or an object store, re-encodes them into short looping GIF clips and stores
both in a GCS or S3 bucket.

Run it as an HTTP service:
  clipgrab serve

Or process a single batch from the command line:
  clipgrab process --file batch.yaml
  clipgrab process --url https://www.tiktok.com/@user/video/123 --platform tiktok`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
}

// loadConfig reads configuration and installs the default logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFile(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	return cfg, logger, nil
}
