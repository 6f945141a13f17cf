// Package search fans one product query out across every active source in
// parallel, merges the listings that come back, and shapes the result:
// filter, stable sort, truncate, cache. Partial source failures degrade the
// response, they never fail it; only an unreachable source store surfaces
// as an error to the caller.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pricehound/pricehound/cache"
	"github.com/pricehound/pricehound/extract"
	"github.com/pricehound/pricehound/health"
	"github.com/pricehound/pricehound/idgen"
	"github.com/pricehound/pricehound/ratelimit"
	"github.com/pricehound/pricehound/scrape"
	"github.com/pricehound/pricehound/source"
)

const (
	// DefaultMaxResults applies when the request leaves MaxResults unset.
	DefaultMaxResults = 50
	// MaxResultsCap is the hard ceiling regardless of what was requested.
	MaxResultsCap = 100
	// CacheTTL bounds how long a search response is served from cache.
	CacheTTL = 15 * time.Minute

	cacheKeyPrefix = "search:"
)

// ErrEmptyQuery rejects a blank query before any source is touched.
var ErrEmptyQuery = errors.New("search: empty query")

// Request is the orchestrator's boundary contract. Length bounds on Query
// are the HTTP layer's job; the orchestrator only refuses blank input.
type Request struct {
	Query      string   `json:"query"`
	Sources    []string `json:"sources,omitempty"`
	MaxResults int      `json:"maxResults,omitempty"`
	Filters    *Filters `json:"filters,omitempty"`
	Sort       *Sort    `json:"sort,omitempty"`
}

// Metadata carries provenance for one response.
type Metadata struct {
	TotalSources      int   `json:"totalSources"`
	SuccessfulSources int   `json:"successfulSources"`
	SearchDurationMs  int64 `json:"searchDurationMs"`
	CacheHit          bool  `json:"cacheHit"`
}

// Response is immutable once returned. SearchID is fresh per call, cache
// hits included.
type Response struct {
	SearchID string            `json:"searchId"`
	Results  []extract.Listing `json:"results"`
	Metadata Metadata          `json:"metadata"`
}

// Runner executes one scrape for one source. *scrape.Worker satisfies it;
// tests substitute canned outcomes.
type Runner interface {
	Run(ctx context.Context, query string) scrape.Outcome
	Close() error
}

// WorkerFactory builds a Runner for a profile. Called once per source per
// search; the orchestrator closes the Runner when the scrape settles.
type WorkerFactory func(p *source.Profile) Runner

// Observer receives one outcome event per dispatched source, fire and
// forget. *health.Monitor satisfies it.
type Observer interface {
	RecordOutcome(ctx context.Context, o health.Outcome)
}

// Orchestrator coordinates a search end to end.
type Orchestrator struct {
	store    source.Store
	cache    cache.Cache
	limiter  *ratelimit.Limiter
	workers  WorkerFactory
	observer Observer
	newID    idgen.Generator
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver attaches the health monitor (or any outcome sink).
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithIDGenerator overrides search ID generation (for testing).
func WithIDGenerator(g idgen.Generator) Option {
	return func(o *Orchestrator) { o.newID = g }
}

// WithClock sets a custom time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator.
func New(store source.Store, c cache.Cache, limiter *ratelimit.Limiter, workers WorkerFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		cache:   c,
		limiter: limiter,
		workers: workers,
		newID:   idgen.Prefixed("srch_", idgen.Default),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Search runs one query across all active sources (or the requested
// subset). It always returns a response unless the query is blank or the
// source store is unreachable.
func (o *Orchestrator) Search(ctx context.Context, req Request) (*Response, error) {
	start := o.now()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	maxResults := clampMaxResults(req.MaxResults)

	key := cacheKey(query, req)
	if resp, ok := o.fromCache(ctx, key); ok {
		if len(resp.Results) > maxResults {
			resp.Results = resp.Results[:maxResults]
		}
		resp.SearchID = o.newID()
		resp.Metadata.CacheHit = true
		resp.Metadata.SearchDurationMs = o.now().Sub(start).Milliseconds()
		o.logger.Info("search: cache hit", "query", query, "results", len(resp.Results))
		return resp, nil
	}

	profiles, err := o.activeProfiles(ctx, req.Sources)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return &Response{
			SearchID: o.newID(),
			Results:  []extract.Listing{},
			Metadata: Metadata{SearchDurationMs: o.now().Sub(start).Milliseconds()},
		}, nil
	}

	outcomes := o.fanOut(ctx, profiles, query)

	var pool []extract.Listing
	successful := 0
	for _, oc := range outcomes {
		if oc.Success && len(oc.Listings) > 0 {
			successful++
		}
		pool = append(pool, oc.Listings...)
	}

	results := applyFilters(pool, req.Filters)
	applySort(results, req.Sort)
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	if results == nil {
		results = []extract.Listing{}
	}

	resp := &Response{
		SearchID: o.newID(),
		Results:  results,
		Metadata: Metadata{
			TotalSources:      len(profiles),
			SuccessfulSources: successful,
			SearchDurationMs:  o.now().Sub(start).Milliseconds(),
		},
	}

	o.writeCache(ctx, key, resp)
	o.emit(ctx, outcomes)

	o.logger.Info("search: completed",
		"query", query,
		"sources", len(profiles),
		"successful", successful,
		"results", len(results),
		"duration_ms", resp.Metadata.SearchDurationMs)
	return resp, nil
}

// fanOut dispatches one scrape per profile concurrently and waits for all
// of them to settle. Each source is its own bulkhead: a failure stays in
// its Outcome slot and cannot touch the others.
func (o *Orchestrator) fanOut(ctx context.Context, profiles []*source.Profile, query string) []scrape.Outcome {
	outcomes := make([]scrape.Outcome, len(profiles))
	var wg sync.WaitGroup
	for i, p := range profiles {
		wg.Add(1)
		go func(i int, p *source.Profile) {
			defer wg.Done()
			outcomes[i] = o.scrapeOne(ctx, p, query)
		}(i, p)
	}
	wg.Wait()
	return outcomes
}

// scrapeOne gates one source on the rate limiter and runs its worker. A
// rate-limit rejection is recorded as a failed outcome for this source.
func (o *Orchestrator) scrapeOne(ctx context.Context, p *source.Profile, query string) scrape.Outcome {
	start := o.now()
	if err := o.limiter.Acquire(ctx, p.ID, p.RateLimit()); err != nil {
		o.logger.Warn("search: source rate limited", "source", p.ID, "error", err)
		return scrape.Outcome{
			SourceID: p.ID,
			Query:    query,
			Error:    err.Error(),
			Duration: o.now().Sub(start),
		}
	}

	w := o.workers(p)
	defer func() {
		if err := w.Close(); err != nil {
			o.logger.Warn("search: worker close failed", "source", p.ID, "error", err)
		}
	}()
	return w.Run(ctx, query)
}

// activeProfiles loads active sources, optionally restricted to a subset of
// IDs. A store failure is the one error that fails the whole search.
func (o *Orchestrator) activeProfiles(ctx context.Context, subset []string) ([]*source.Profile, error) {
	profiles, err := o.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("search: load sources: %w", err)
	}
	if len(subset) == 0 {
		return profiles, nil
	}
	want := make(map[string]bool, len(subset))
	for _, id := range subset {
		want[id] = true
	}
	out := profiles[:0]
	for _, p := range profiles {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (o *Orchestrator) fromCache(ctx context.Context, key string) (*Response, bool) {
	b, err := o.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(b, &resp); err != nil {
		o.logger.Warn("search: discarding malformed cache entry", "key", key)
		return nil, false
	}
	return &resp, true
}

// writeCache is best effort: a failed write degrades to cache-miss
// behaviour on the next identical search.
func (o *Orchestrator) writeCache(ctx context.Context, key string, resp *Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := o.cache.SetWithExpiry(ctx, key, b, CacheTTL); err != nil {
		o.logger.Warn("search: cache write failed", "key", key, "error", err)
	}
}

// emit forwards one outcome event per dispatched source to the observer.
func (o *Orchestrator) emit(ctx context.Context, outcomes []scrape.Outcome) {
	if o.observer == nil {
		return
	}
	for _, oc := range outcomes {
		o.observer.RecordOutcome(ctx, health.Outcome{
			SourceID:     oc.SourceID,
			Success:      oc.Success,
			ResponseTime: oc.Duration,
			Error:        oc.Error,
		})
	}
}

func clampMaxResults(n int) int {
	if n <= 0 {
		return DefaultMaxResults
	}
	if n > MaxResultsCap {
		return MaxResultsCap
	}
	return n
}

// cacheKey derives the composite key from the normalized query, filters,
// sort, and requested source subset. MaxResults stays out of the key; hits
// are re-truncated to the caller's cap instead.
func cacheKey(query string, req Request) string {
	sources := append([]string(nil), req.Sources...)
	sort.Strings(sources)
	payload := struct {
		Query   string   `json:"q"`
		Sources []string `json:"sources,omitempty"`
		Filters *Filters `json:"filters,omitempty"`
		Sort    *Sort    `json:"sort,omitempty"`
	}{strings.ToLower(query), sources, req.Filters, req.Sort}
	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
