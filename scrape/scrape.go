// Package scrape runs one browser-automation scrape per source per query:
// build the search URL, navigate with stealth and retries, wait for
// listings to render, and hand the markup to the extraction engine.
//
// A worker degrades, it does not throw: exhausted retries become a failed
// Outcome (or a synthetic one when the fallback is explicitly enabled),
// never an error the orchestrator has to guard against.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pricehound/pricehound/extract"
	"github.com/pricehound/pricehound/source"
)

// State is the per-invocation scraping state machine, exported for
// observability only; transitions are internal to Run.
type State int

const (
	StateIdle State = iota
	StateNavigating
	StateWaitingForContent
	StateExtracting
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNavigating:
		return "navigating"
	case StateWaitingForContent:
		return "waiting_for_content"
	case StateExtracting:
		return "extracting"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ErrBlocked marks a page that served an anti-bot interstitial instead of
// results. Retried like a network failure.
var ErrBlocked = errors.New("scrape: blocked by anti-bot")

// Timeouts for one navigation attempt.
const (
	NavigationTimeout = 30 * time.Second
	SelectorTimeout   = 10 * time.Second
	settleDelay       = 2 * time.Second
)

// Fetcher performs one navigate-and-render cycle and returns the page
// markup. The production implementation drives a stealth browser tab;
// tests substitute canned markup or failures.
type Fetcher interface {
	// Fetch navigates to pageURL, waits for waitSelector (tolerating a
	// wait timeout), and returns the rendered markup. phase, when non-nil,
	// receives state transitions for observability.
	Fetch(ctx context.Context, pageURL, waitSelector string, phase func(State)) ([]byte, error)

	// Close releases any resource the fetcher holds.
	Close() error
}

// Outcome is the result of one worker invocation. Success reports whether
// the real scrape worked; a synthetic fallback sets Fallback and leaves
// Success false so health accounting still sees the failure.
type Outcome struct {
	SourceID string
	Query    string
	Listings []extract.Listing
	Success  bool
	Fallback bool
	Error    string
	Duration time.Duration
}

// Config configures a Worker.
type Config struct {
	// Retry tunes navigation retries. Zero values take policy defaults.
	Retry RetryPolicy

	// AllowSyntheticFallback substitutes synthetic listings when the real
	// scrape fails. Never enable this in production wiring.
	AllowSyntheticFallback bool

	// SyntheticCount is how many listings the fallback fabricates. Default: 5.
	SyntheticCount int

	// Seed seeds the worker's jitter and synthetic generation. 0 means
	// time-seeded.
	Seed int64

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.SyntheticCount <= 0 {
		c.SyntheticCount = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Worker scrapes one source. Create one per source; workers for different
// sources run concurrently, each owning its own fetcher.
type Worker struct {
	profile *source.Profile
	engine  *extract.Engine
	fetch   Fetcher
	cfg     Config

	mu    sync.Mutex
	state State
	rnd   *rand.Rand

	now func() time.Time
}

// NewWorker creates a Worker for the profile. The profile must already be
// validated by the source store.
func NewWorker(p *source.Profile, engine *extract.Engine, fetch Fetcher, cfg Config) *Worker {
	cfg.defaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Worker{
		profile: p,
		engine:  engine,
		fetch:   fetch,
		cfg:     cfg,
		state:   StateIdle,
		rnd:     rand.New(rand.NewSource(seed)),
		now:     time.Now,
	}
}

// State returns the worker's current state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// BuildSearchURL substitutes the URL-encoded query into the profile's
// template. Fails when the template lacks the query placeholder — a
// configuration error fatal to this source's scrape only.
func (w *Worker) BuildSearchURL(query string) (string, error) {
	tpl := w.profile.Configuration.SearchURLTemplate
	if !strings.Contains(tpl, source.QueryPlaceholder) {
		return "", fmt.Errorf("scrape: source %s: search URL template lacks %s",
			w.profile.ID, source.QueryPlaceholder)
	}
	return strings.ReplaceAll(tpl, source.QueryPlaceholder, url.QueryEscape(query)), nil
}

// Run performs one scrape for the query. It always returns an Outcome;
// failures are reported in the Outcome, never as a panic or error return.
func (w *Worker) Run(ctx context.Context, query string) (out Outcome) {
	log := w.cfg.Logger
	start := w.now()

	out = Outcome{SourceID: w.profile.ID, Query: query}
	defer func() { out.Duration = w.now().Sub(start) }()

	searchURL, err := w.BuildSearchURL(query)
	if err != nil {
		w.setState(StateFailed)
		out.Error = err.Error()
		log.Error("scrape: bad configuration", "source", w.profile.ID, "error", err)
		return w.maybeFallback(out, query)
	}

	markup, err := w.fetchWithRetry(ctx, searchURL)
	if err != nil {
		w.setState(StateFailed)
		out.Error = err.Error()
		log.Warn("scrape: all attempts failed",
			"source", w.profile.ID, "url", searchURL, "error", err)
		return w.maybeFallback(out, query)
	}

	w.setState(StateExtracting)
	out.Listings = w.engine.Extract(markup, w.profile)
	out.Success = true
	w.setState(StateSuccess)

	log.Info("scrape: completed",
		"source", w.profile.ID, "query", query, "listings", len(out.Listings))
	return out
}

// fetchWithRetry drives the navigation attempts with exponential backoff
// and jitter. A blocked page counts as a failed attempt like any network
// error.
func (w *Worker) fetchWithRetry(ctx context.Context, searchURL string) ([]byte, error) {
	policy := w.cfg.Retry
	policy.defaults()

	waitSelector := w.profile.Configuration.Selectors.Container
	if waitSelector == "" {
		waitSelector = w.profile.Configuration.Selectors.ProductName
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := policy.Backoff(attempt-1, w.rnd)
			w.cfg.Logger.Debug("scrape: backing off",
				"source", w.profile.ID, "attempt", attempt, "wait", wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		w.setState(StateNavigating)
		navCtx, cancel := context.WithTimeout(ctx, NavigationTimeout)
		markup, err := w.fetch.Fetch(navCtx, searchURL, waitSelector, w.setState)
		cancel()
		if err == nil {
			return markup, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// maybeFallback substitutes synthetic listings when the fallback is
// enabled. Success stays false: the real scrape failed and health
// accounting needs to know.
func (w *Worker) maybeFallback(out Outcome, query string) Outcome {
	if !w.cfg.AllowSyntheticFallback {
		return out
	}
	out.Listings = syntheticListings(w.rnd, w.profile, query, w.cfg.SyntheticCount, w.now())
	out.Fallback = true
	w.cfg.Logger.Info("scrape: synthetic fallback",
		"source", w.profile.ID, "query", query, "listings", len(out.Listings))
	return out
}

// Close releases the worker's fetcher. Idempotent via the fetcher contract.
func (w *Worker) Close() error {
	return w.fetch.Close()
}
