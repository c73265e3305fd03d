//go:build integration

package steps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cucumber/godog"

	"github.com/maauso/clipgrab/internal/acquire"
	"github.com/maauso/clipgrab/internal/browser"
	"github.com/maauso/clipgrab/internal/storage"
)

// replaySession plays back a fixed list of network responses on Navigate.
type replaySession struct {
	responses []string
	listeners []func(string)
}

func (s *replaySession) OnResponse(fn func(string)) {
	s.listeners = append(s.listeners, fn)
}

func (s *replaySession) Navigate(ctx context.Context, url string) error {
	for _, u := range s.responses {
		for _, fn := range s.listeners {
			fn(u)
		}
	}
	return nil
}

func (s *replaySession) WaitVisible(ctx context.Context, selector string) error { return nil }
func (s *replaySession) Close() error { return nil }

// countingLauncher hands out one replaySession per launch and counts launches.
type countingLauncher struct {
	responses []string
	launches  int
}

func (l *countingLauncher) Launch(ctx context.Context) (browser.Session, error) {
	l.launches++
	return &replaySession{responses: l.responses}, nil
}

// browserContext holds test state for browser scenarios
type browserContext struct {
	scratchDir string
	launcher   *countingLauncher
	fetcher    *fakeFetcher
	result     acquire.Result
	err        error
}

// SharedBrowserContext is reset before each scenario via Before hook
var SharedBrowserContext *browserContext

func getBrowserContext() *browserContext {
	return SharedBrowserContext
}

func InitializeBrowserScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		dir, err := os.MkdirTemp("", "clipgrab-browser-*")
		if err != nil {
			return c, err
		}
		SharedBrowserContext = &browserContext{
			scratchDir: dir,
			launcher:   &countingLauncher{},
			fetcher:    &fakeFetcher{body: "douyin-video"},
		}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if b := getBrowserContext(); b != nil {
			_ = os.RemoveAll(b.scratchDir)
		}
		SharedBrowserContext = nil
		return c, nil
	})

	ctx.Step(`^the page emits the responses:$`, thePageEmitsTheResponses)
	ctx.Step(`^I acquire the douyin page "([^"]*)"$`, iAcquireTheDouyinPage)
	ctx.Step(`^the acquisition should fail with an invalid URL error$`, theAcquisitionShouldFailWithAnInvalidURLError)
	ctx.Step(`^the acquisition should produce a local file$`, theAcquisitionShouldProduceALocalFile)
	ctx.Step(`^the media download should have requested "([^"]*)"$`, theMediaDownloadShouldHaveRequested)
	ctx.Step(`^no browser session should have been launched$`, noBrowserSessionShouldHaveBeenLaunched)
	ctx.Step(`^(\d+) browser sessions? should have been launched$`, browserSessionsShouldHaveBeenLaunched)
}

func thePageEmitsTheResponses(table *godog.Table) error {
	b := getBrowserContext()
	for i, row := range table.Rows {
		if i == 0 {
			continue // header
		}
		b.launcher.responses = append(b.launcher.responses, row.Cells[0].Value)
	}
	return nil
}

func iAcquireTheDouyinPage(pageURL string) error {
	b := getBrowserContext()

	scratch, err := storage.NewLocalStorage(b.scratchDir)
	if err != nil {
		return err
	}
	extractor := browser.NewExtractor(b.launcher, browser.WithSettleDelay(time.Millisecond))
	strategy := acquire.NewBrowserStrategy(extractor, b.fetcher, scratch)

	b.result, b.err = strategy.Acquire(context.Background(), pageURL)
	return nil
}

func theAcquisitionShouldFailWithAnInvalidURLError() error {
	b := getBrowserContext()
	if !errors.Is(b.err, browser.ErrInvalidURL) {
		return fmt.Errorf("expected ErrInvalidURL, got %v", b.err)
	}
	return nil
}

func theAcquisitionShouldProduceALocalFile() error {
	b := getBrowserContext()
	if b.err != nil {
		return fmt.Errorf("unexpected error: %w", b.err)
	}
	if !b.result.IsLocal() {
		return fmt.Errorf("expected a local file, got %+v", b.result)
	}
	data, err := os.ReadFile(b.result.LocalPath)
	if err != nil {
		return err
	}
	if string(data) != b.fetcher.body {
		return fmt.Errorf("unexpected file contents %q", data)
	}
	return nil
}

func theMediaDownloadShouldHaveRequested(url string) error {
	b := getBrowserContext()
	if len(b.fetcher.requests) != 1 || b.fetcher.requests[0] != url {
		return fmt.Errorf("expected one download of %s, got %v", url, b.fetcher.requests)
	}
	return nil
}

func noBrowserSessionShouldHaveBeenLaunched() error {
	return browserSessionsShouldHaveBeenLaunched(0)
}

func browserSessionsShouldHaveBeenLaunched(n int) error {
	if got := getBrowserContext().launcher.launches; got != n {
		return fmt.Errorf("expected %d browser launches, got %d", n, got)
	}
	return nil
}
