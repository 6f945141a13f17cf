package browser

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab wraps a Rod page with scraper-specific setup: stealth injection,
// resource blocking, identity overrides. One Tab per scraper worker.
type Tab struct {
	Page    *rod.Page
	manager *Manager
}

// OpenTab creates a stealth tab on the managed browser. No navigation
// happens here; the worker configures identity first, then navigates.
func OpenTab(mgr *Manager) (*Tab, error) {
	b, err := mgr.Acquire()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create stealth tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, mgr.cfg.ResourceBlocking); err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	return &Tab{Page: page, manager: mgr}, nil
}

// SetUserAgent overrides the tab's user agent.
func (t *Tab) SetUserAgent(ua string) error {
	return t.Page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua})
}

// SetViewport overrides the tab's viewport dimensions.
func (t *Tab) SetViewport(width, height int) error {
	return t.Page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	})
}

// SetHeaders sets extra HTTP headers on every request from this tab.
// pairs is key, value, key, value...
func (t *Tab) SetHeaders(pairs ...string) error {
	_, err := t.Page.SetExtraHeaders(pairs)
	return err
}

// SetCookie sets a single cookie for the given page URL.
func (t *Tab) SetCookie(pageURL, name, value string) error {
	u, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("browser: cookie url: %w", err)
	}
	return t.Page.SetCookies([]*proto.NetworkCookieParam{{
		Name:   name,
		Value:  value,
		Domain: u.Hostname(),
		Path:   "/",
	}})
}

// Navigate loads pageURL and waits for the load event, both bounded by ctx.
func (t *Tab) Navigate(ctx context.Context, pageURL string) error {
	if err := t.Page.Context(ctx).Navigate(pageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := t.Page.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load %s: %w", pageURL, err)
	}
	return nil
}

// Title returns the current page title.
func (t *Tab) Title(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.title`)
	if err != nil {
		return "", fmt.Errorf("browser: read title: %w", err)
	}
	return res.Value.Str(), nil
}

// WaitForSelector blocks until the selector matches an element or the
// timeout elapses. A timeout is returned as an error; the caller decides
// whether that is fatal.
func (t *Tab) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := t.Page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("browser: wait for %q: %w", selector, err)
	}
	return nil
}

// ScrollToBottom scrolls the page to its full height once, triggering
// lazy-loaded content, then settles for the given delay.
func (t *Tab) ScrollToBottom(ctx context.Context, settle time.Duration) error {
	_, err := t.Page.Context(ctx).Eval(
		`() => window.scrollTo(0, document.body.scrollHeight)`)
	if err != nil {
		return fmt.Errorf("browser: scroll: %w", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(settle):
	}
	return nil
}

// HTML serialises the current DOM as outer HTML.
func (t *Tab) HTML(ctx context.Context) ([]byte, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: get DOM: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

// Close closes the tab. The browser itself stays up for other workers.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
