package scrape

import (
	"log/slog"

	"github.com/pricehound/pricehound/scrape/internal/browser"
)

// BrowserConfig configures the shared Chrome instance all fetchers run on.
type BrowserConfig struct {
	// RemoteURL is the WebSocket URL of an external Chrome. Empty launches
	// a local instance.
	RemoteURL string

	// Headless controls local launches. Default: true.
	Headless *bool

	// ResourceBlocking lists resource types tabs should block
	// (images, fonts, media, stylesheets).
	ResourceBlocking []string

	Logger *slog.Logger
}

// BrowserManager owns the process-wide Chrome. Create one at the
// composition root; fetchers share it through per-fetch tabs. Close on
// shutdown releases the browser on all exit paths.
type BrowserManager struct {
	mgr *browser.Manager
}

// NewBrowserManager creates the manager. Chrome launches lazily on the
// first fetch, not here.
func NewBrowserManager(cfg BrowserConfig) *BrowserManager {
	return &BrowserManager{mgr: browser.NewManager(browser.Config{
		RemoteURL:        cfg.RemoteURL,
		Headless:         cfg.Headless,
		ResourceBlocking: cfg.ResourceBlocking,
		Logger:           cfg.Logger,
	})}
}

// Close shuts the browser down. Terminal and idempotent.
func (b *BrowserManager) Close() error {
	return b.mgr.Close()
}
