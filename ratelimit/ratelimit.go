// Package ratelimit keeps scraping polite. Two mechanisms compose:
//
//   - a shared request counter per source in the cache, with a fixed expiry
//     window, shared by every process that talks to that source;
//   - a local per-source pacer that enforces the profile's minimum
//     inter-request interval inside this process.
//
// The cache counter is the only cross-worker shared state in the engine;
// INCR-with-expiry keeps it atomic without locks.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pricehound/pricehound/cache"
)

// Defaults for the shared counter window.
const (
	DefaultWindow       = 60 * time.Second
	DefaultMaxPerWindow = 10
)

// Error reports a source that has exhausted its request allowance. The
// orchestrator treats it like any other per-source transient failure.
type Error struct {
	SourceID string
	Count    int64
	Limit    int64
}

func (e *Error) Error() string {
	return fmt.Sprintf("ratelimit: source %s exceeded %d requests in window (count %d)",
		e.SourceID, e.Limit, e.Count)
}

// Limiter gates scrape dispatches per source.
type Limiter struct {
	cache  cache.Cache
	window time.Duration
	max    int64
	logger *slog.Logger

	// pacers holds one token-bucket pacer per source for the local
	// min-interval throttle.
	mu     sync.Mutex
	pacers map[string]*rate.Limiter
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithWindow overrides the shared counter window.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) { l.window = d }
}

// WithMaxPerWindow overrides the request allowance per window.
func WithMaxPerWindow(n int64) Option {
	return func(l *Limiter) { l.max = n }
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Limiter) { l.logger = lg }
}

// New creates a Limiter backed by c.
func New(c cache.Cache, opts ...Option) *Limiter {
	l := &Limiter{
		cache:  c,
		window: DefaultWindow,
		max:    DefaultMaxPerWindow,
		logger: slog.Default(),
		pacers: make(map[string]*rate.Limiter),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Acquire consumes one request slot for sourceID, waiting out the local
// min-interval first. intervalMs is the profile's configured inter-request
// delay. Returns *Error when the shared window allowance is exhausted.
//
// Cache failures fail open: an unreachable cache must not stop all
// scraping, it only loses cross-process coordination.
func (l *Limiter) Acquire(ctx context.Context, sourceID string, intervalMs int) error {
	if err := l.pacer(sourceID, intervalMs).Wait(ctx); err != nil {
		return err
	}

	key := "ratelimit:" + sourceID
	count, err := l.cache.Increment(ctx, key)
	if err != nil {
		l.logger.Warn("ratelimit: counter unavailable, failing open",
			"source", sourceID, "error", err)
		return nil
	}
	if count == 1 {
		// First hit in a fresh window starts the expiry clock.
		if err := l.cache.Expire(ctx, key, l.window); err != nil {
			l.logger.Warn("ratelimit: expire failed", "source", sourceID, "error", err)
		}
	}
	if count > l.max {
		return &Error{SourceID: sourceID, Count: count, Limit: l.max}
	}
	return nil
}

// pacer returns the per-source token bucket, creating it on first use.
// A changed interval on an existing source takes effect on next process
// restart; profiles rarely change mid-flight.
func (l *Limiter) pacer(sourceID string, intervalMs int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pacers[sourceID]
	if !ok {
		interval := time.Duration(intervalMs) * time.Millisecond
		if interval <= 0 {
			interval = time.Second
		}
		p = rate.NewLimiter(rate.Every(interval), 1)
		l.pacers[sourceID] = p
	}
	return p
}
