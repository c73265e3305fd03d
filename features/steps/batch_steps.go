//go:build integration

package steps

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cucumber/godog"

	"github.com/maauso/clipgrab/internal/acquire"
	"github.com/maauso/clipgrab/internal/apify"
	"github.com/maauso/clipgrab/internal/batch"
	"github.com/maauso/clipgrab/internal/media"
	"github.com/maauso/clipgrab/internal/storage"
)

// fakeScraper is an apify.Client whose runs succeed immediately.
type fakeScraper struct {
	items []apify.Item
}

func (f *fakeScraper) RunTask(ctx context.Context, taskID string, input any) (string, error) {
	return "run-1", nil
}

func (f *fakeScraper) GetRun(ctx context.Context, runID string) (apify.Run, error) {
	return apify.Run{ID: runID, Status: apify.StatusSucceeded, DatasetID: "ds-1"}, nil
}

func (f *fakeScraper) DatasetItems(ctx context.Context, datasetID string) ([]apify.Item, error) {
	return f.items, nil
}

// fakeFetcher serves the same body for every URL and records requests.
type fakeFetcher struct {
	mu       sync.Mutex
	body     string
	requests []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, header http.Header) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, url)
	return io.NopCloser(strings.NewReader(f.body)), nil
}

// fakeTranscoder writes a placeholder GIF instead of running ffmpeg.
type fakeTranscoder struct{}

func (fakeTranscoder) MakeClip(ctx context.Context, src, dst string, opts media.ClipOpts) error {
	if _, err := os.Stat(src); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("GIF89a"), 0o600)
}

// memoryObjectStore keeps uploads in memory.
type memoryObjectStore struct {
	mu      sync.Mutex
	objects map[string]string
}

func (s *memoryObjectStore) Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = string(b)
	return "https://bucket.example/" + key, nil
}

// batchContext holds test state for batch scenarios
type batchContext struct {
	scratchDir string
	scraper    *fakeScraper
	fetcher    *fakeFetcher
	store      *memoryObjectStore
	service    *batch.Service
	result     batch.BatchResult
}

// SharedBatchContext is reset before each scenario via Before hook
var SharedBatchContext *batchContext

func getBatchContext() *batchContext {
	return SharedBatchContext
}

func InitializeBatchScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		dir, err := os.MkdirTemp("", "clipgrab-features-*")
		if err != nil {
			return c, err
		}
		scratch, err := storage.NewLocalStorage(dir)
		if err != nil {
			return c, err
		}

		b := &batchContext{
			scratchDir: dir,
			scraper:    &fakeScraper{},
			fetcher:    &fakeFetcher{body: "video-bytes"},
			store:      &memoryObjectStore{objects: make(map[string]string)},
		}

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		direct := acquire.NewDirectStrategy()
		strategies := map[acquire.Platform]batch.Acquirer{
			acquire.PlatformTikTok: acquire.NewTikTokStrategy(b.scraper, "tiktok-task",
				acquire.WithPollInterval(time.Millisecond),
				acquire.WithLogger(logger),
			),
			acquire.PlatformGCS:         direct,
			acquire.PlatformObjectStore: direct,
		}
		b.service = batch.NewService(strategies, fakeTranscoder{}, b.fetcher, scratch, b.store,
			batch.NewMemoryRepository(), logger,
			batch.WithClipFolder("clips"),
		)

		SharedBatchContext = b
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if b := getBatchContext(); b != nil {
			_ = os.RemoveAll(b.scratchDir)
		}
		SharedBatchContext = nil
		return c, nil
	})

	ctx.Step(`^the remote scraper returns no items$`, theRemoteScraperReturnsNoItems)
	ctx.Step(`^object store videos can be downloaded$`, objectStoreVideosCanBeDownloaded)
	ctx.Step(`^I process the batch "([^"]*)":$`, iProcessTheBatch)
	ctx.Step(`^item (\d+) should succeed with a clip in "([^"]*)"$`, itemShouldSucceedWithAClipIn)
	ctx.Step(`^item (\d+) should fail with "([^"]*)"$`, itemShouldFailWith)
	ctx.Step(`^the report should count (\d+) processed, (\d+) successful and (\d+) failed$`, theReportShouldCount)
	ctx.Step(`^the batch status should be "([^"]*)"$`, theBatchStatusShouldBe)
	ctx.Step(`^the status of task "([^"]*)" should be "([^"]*)"$`, theStatusOfTaskShouldBe)
	ctx.Step(`^no scratch files should remain$`, noScratchFilesShouldRemain)
}

func theRemoteScraperReturnsNoItems() error {
	getBatchContext().scraper.items = nil
	return nil
}

func objectStoreVideosCanBeDownloaded() error {
	getBatchContext().fetcher.body = "object-store-video"
	return nil
}

func iProcessTheBatch(label string, table *godog.Table) error {
	b := getBatchContext()

	var items []batch.VideoRequest
	for i, row := range table.Rows {
		if i == 0 {
			continue // header
		}
		if len(row.Cells) != 2 {
			return fmt.Errorf("row %d: expected url and platform", i)
		}
		items = append(items, batch.VideoRequest{
			URL:      row.Cells[0].Value,
			Platform: acquire.Platform(row.Cells[1].Value),
		})
	}

	b.result = b.service.ProcessBatch(context.Background(), label, items)
	if len(b.result.Results) != len(items) {
		return fmt.Errorf("expected %d results, got %d", len(items), len(b.result.Results))
	}
	return nil
}

func resultAt(n int) (batch.ItemResult, error) {
	results := getBatchContext().result.Results
	if n < 1 || n > len(results) {
		return batch.ItemResult{}, fmt.Errorf("no item %d in %d results", n, len(results))
	}
	return results[n-1], nil
}

func itemShouldSucceedWithAClipIn(n int, folder string) error {
	r, err := resultAt(n)
	if err != nil {
		return err
	}
	if !r.OK() {
		return fmt.Errorf("item %d failed: %s", n, r.Error)
	}
	if r.StoredVideoURL == "" {
		return fmt.Errorf("item %d has no stored video URL", n)
	}
	if !strings.Contains(r.StoredClipURL, "/"+folder+"/") || !strings.HasSuffix(r.StoredClipURL, ".gif") {
		return fmt.Errorf("item %d clip URL %q is not a GIF under %s", n, r.StoredClipURL, folder)
	}
	return nil
}

func itemShouldFailWith(n int, msg string) error {
	r, err := resultAt(n)
	if err != nil {
		return err
	}
	if r.OK() {
		return fmt.Errorf("item %d succeeded, expected failure", n)
	}
	if !strings.Contains(r.Error, msg) {
		return fmt.Errorf("item %d error %q does not contain %q", n, r.Error, msg)
	}
	if r.StoredVideoURL != "" || r.StoredClipURL != "" {
		return fmt.Errorf("failed item %d carries URLs", n)
	}
	return nil
}

func theReportShouldCount(total, ok, failed int) error {
	r := getBatchContext().result
	if r.TotalProcessed() != total || r.Successful() != ok || r.Failed() != failed {
		return fmt.Errorf("expected %d/%d/%d, got %d/%d/%d",
			total, ok, failed, r.TotalProcessed(), r.Successful(), r.Failed())
	}
	return nil
}

func theBatchStatusShouldBe(want string) error {
	b := getBatchContext()
	return theStatusOfTaskShouldBe(b.result.TaskID, want)
}

func theStatusOfTaskShouldBe(taskID, want string) error {
	got := getBatchContext().service.GetTaskStatus(context.Background(), taskID)
	if got != want {
		return fmt.Errorf("expected status %q for %s, got %q", want, taskID, got)
	}
	return nil
}

func noScratchFilesShouldRemain() error {
	entries, err := os.ReadDir(getBatchContext().scratchDir)
	if err != nil {
		return err
	}
	var left []string
	for _, e := range entries {
		left = append(left, filepath.Join(getBatchContext().scratchDir, e.Name()))
	}
	if len(left) > 0 {
		return fmt.Errorf("scratch files left behind: %v", left)
	}
	return nil
}
