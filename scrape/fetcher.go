package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/pricehound/pricehound/scrape/internal/browser"
)

// blockedTitleMarkers flag an anti-bot interstitial by its page title.
var blockedTitleMarkers = []string{
	"blocked", "forbidden", "access denied", "captcha", "robot check",
	"attention required",
}

// BrowserFetcher drives a stealth tab per fetch on the shared managed
// Chrome. Each Fetch opens a fresh tab with a fresh identity and closes it
// before returning, on every path.
type BrowserFetcher struct {
	mgr    *browser.Manager
	logger *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewBrowserFetcher creates a fetcher on the shared browser manager.
func NewBrowserFetcher(bm *BrowserManager, logger *slog.Logger) *BrowserFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserFetcher{
		mgr:    bm.mgr,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fetch implements Fetcher.
func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL, waitSelector string, phase func(State)) ([]byte, error) {
	if phase == nil {
		phase = func(State) {}
	}

	tab, err := browser.OpenTab(f.mgr)
	if err != nil {
		return nil, err
	}
	defer tab.Close()

	if err := f.disguise(tab, pageURL); err != nil {
		f.logger.Warn("scrape: identity setup incomplete", "url", pageURL, "error", err)
	}

	// Jitter outbound timing so request spacing doesn't look mechanical.
	f.jitterSleep(ctx)

	phase(StateNavigating)
	if err := tab.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}

	if title, err := tab.Title(ctx); err == nil && looksBlocked(title) {
		return nil, fmt.Errorf("%w: title %q", ErrBlocked, title)
	}

	phase(StateWaitingForContent)
	if waitSelector != "" {
		if err := tab.WaitForSelector(ctx, waitSelector, SelectorTimeout); err != nil {
			// Tolerated: extract whatever markup is present.
			f.logger.Warn("scrape: selector wait timed out, proceeding",
				"url", pageURL, "selector", waitSelector)
		}
	}
	if err := tab.ScrollToBottom(ctx, settleDelay); err != nil {
		f.logger.Debug("scrape: scroll failed", "url", pageURL, "error", err)
	}

	return tab.HTML(ctx)
}

// disguise applies the per-fetch identity: user agent, viewport, headers,
// consent cookie.
func (f *BrowserFetcher) disguise(tab *browser.Tab, pageURL string) error {
	f.mu.Lock()
	id := newIdentity(f.rnd)
	f.mu.Unlock()

	if err := tab.SetUserAgent(id.UserAgent); err != nil {
		return fmt.Errorf("user agent: %w", err)
	}
	if err := tab.SetViewport(id.Width, id.Height); err != nil {
		return fmt.Errorf("viewport: %w", err)
	}
	if err := tab.SetHeaders(id.Headers...); err != nil {
		return fmt.Errorf("headers: %w", err)
	}
	if err := tab.SetCookie(pageURL, consentCookieName, consentCookieValue); err != nil {
		return fmt.Errorf("consent cookie: %w", err)
	}
	return nil
}

func (f *BrowserFetcher) jitterSleep(ctx context.Context) {
	f.mu.Lock()
	d := time.Duration(f.rnd.Int63n(int64(400 * time.Millisecond)))
	f.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Close is a no-op: the shared browser belongs to the Manager, which the
// composition root closes on shutdown.
func (f *BrowserFetcher) Close() error { return nil }

func looksBlocked(title string) bool {
	t := strings.ToLower(title)
	for _, marker := range blockedTitleMarkers {
		if strings.Contains(t, marker) {
			return true
		}
	}
	return false
}
