package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maauso/clipgrab/internal/acquire"
	"github.com/maauso/clipgrab/internal/batch"
	"github.com/maauso/clipgrab/internal/batchfile"
	"github.com/maauso/clipgrab/internal/bootstrap"
)

var (
	// ErrNoInput is returned when neither --file nor --url is given.
	ErrNoInput = errors.New("either --file or --url is required")
	// ErrFileAndURL is returned when --file and --url are combined.
	ErrFileAndURL = errors.New("--file cannot be combined with --url")
	// ErrPlatformCount is returned when --url and --platform counts differ.
	ErrPlatformCount = errors.New("each --url needs a matching --platform")
)

var (
	processFile      string
	processURLs      []string
	processPlatforms []string
	processLabel     string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process one batch and print the JSON report",
	Long: `Process one batch in-process and print the report as JSON on stdout.

The batch comes from a YAML or JSON file:

  label: Sheet1
  urls:
    - url: https://www.tiktok.com/@user/video/123
      platform: tiktok
    - url: https://www.youtube.com/shorts/abc
      platform: youtube

or from repeated --url/--platform pairs:

  clipgrab process \
    --url https://www.douyin.com/video/7300000000000000000 --platform douyin \
    --url https://storage.googleapis.com/bucket/v.mp4 --platform gcs`,
	Args: cobra.NoArgs,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().StringVarP(&processFile, "file", "f", "", "YAML or JSON batch file")
	processCmd.Flags().StringArrayVar(&processURLs, "url", nil, "video URL (can be repeated)")
	processCmd.Flags().StringArrayVar(&processPlatforms, "platform", nil, "platform of the matching --url: tiktok, youtube, douyin, gcs")
	processCmd.Flags().StringVar(&processLabel, "label", "", "batch label (overrides the file's label)")
}

func runProcess(cmd *cobra.Command, _ []string) error {
	label, items, err := buildRequests(processFile, processURLs, processPlatforms)
	if err != nil {
		return err
	}
	if processLabel != "" {
		label = processLabel
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	if err := deps.Verify(ctx); err != nil {
		return err
	}

	logger.Info("processing batch",
		slog.String("label", label),
		slog.Int("items", len(items)),
	)

	result := deps.BatchService.ProcessBatch(ctx, label, items)
	return writeReport(cmd.OutOrStdout(), result)
}

// buildRequests returns the batch described either by a batch file or by
// paired --url/--platform flags.
func buildRequests(file string, urls, platforms []string) (string, []batch.VideoRequest, error) {
	switch {
	case file != "" && len(urls) > 0:
		return "", nil, ErrFileAndURL
	case file != "":
		f, err := batchfile.Load(file)
		if err != nil {
			return "", nil, err
		}
		return f.Label, f.URLs, nil
	case len(urls) == 0:
		return "", nil, ErrNoInput
	case len(urls) != len(platforms):
		return "", nil, fmt.Errorf("%w (got %d urls, %d platforms)", ErrPlatformCount, len(urls), len(platforms))
	}

	items := make([]batch.VideoRequest, len(urls))
	for i, u := range urls {
		items[i] = batch.VideoRequest{
			URL:      strings.TrimSpace(u),
			Platform: acquire.Platform(platforms[i]),
		}
	}
	return "", items, nil
}

func writeReport(w io.Writer, result batch.BatchResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
