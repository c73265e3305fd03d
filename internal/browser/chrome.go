package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// DesktopUserAgent is presented by browser sessions and media downloads.
const DesktopUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"

// ChromeLauncher launches headless Chrome sessions with chromedp.
type ChromeLauncher struct {
	execPath string
}

// NewChromeLauncher creates a launcher. If execPath is empty chromedp
// looks Chrome up in the usual locations.
func NewChromeLauncher(execPath string) *ChromeLauncher {
	return &ChromeLauncher{execPath: execPath}
}

// Verify starts and stops one session so a missing browser is reported at
// startup rather than on the first item.
func (l *ChromeLauncher) Verify(ctx context.Context) error {
	s, err := l.Launch(ctx)
	if err != nil {
		return fmt.Errorf("browser: verify: %w", err)
	}
	return s.Close()
}

// Launch starts a browser process with a single tab.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(DesktopUserAgent),
		chromedp.Flag("mute-audio", true),
	)
	if l.execPath != "" {
		opts = append(opts, chromedp.ExecPath(l.execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Response != nil {
			s.dispatch(e.Response.URL)
		}
	})

	// The first Run starts the browser process.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		allocCancel()
		return nil, err
	}

	return s, nil
}

type chromeSession struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc

	mu        sync.Mutex
	listeners []func(string)
}

func (s *chromeSession) OnResponse(fn func(url string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *chromeSession) dispatch(url string) {
	s.mu.Lock()
	listeners := append([]func(string){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(url)
	}
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *chromeSession) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// run executes actions on the tab, bounded by ctx. Cancelling ctx aborts
// the actions without closing the tab.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *chromeSession) Close() error {
	err := chromedp.Cancel(s.tabCtx)
	s.tabCancel()
	s.allocCancel()
	return err
}
