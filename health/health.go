// Package health tracks per-source scraping reliability and escalates
// persistent failures to operators. The orchestrator emits one outcome
// event per dispatched source; the monitor folds events into rolling
// records, classifies each source against thresholds, and raises alerts
// on status transitions.
//
// In-memory state is authoritative for the running process; the cache copy
// is a best-effort durability layer rehydrated at startup.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pricehound/pricehound/cache"
	"github.com/pricehound/pricehound/idgen"
)

// Status classifies a source's reliability.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusUnknown  Status = "unknown"
)

// Record is the rolling health state of one source. Mutated only by the
// Monitor; callers get copies.
type Record struct {
	SourceID              string     `json:"sourceId"`
	Status                Status     `json:"status"`
	SuccessRate           float64    `json:"successRate"` // 0-100
	AverageResponseTimeMs int64      `json:"averageResponseTimeMs"`
	TotalRequests         int64      `json:"totalRequests"`
	ErrorCount            int64      `json:"errorCount"`
	LastSuccessfulScrape  *time.Time `json:"lastSuccessfulScrape,omitempty"`
	LastError             string     `json:"lastError,omitempty"`
	LastCheck             time.Time  `json:"lastCheck"`
}

// Outcome is one per-source scrape result emitted by the orchestrator.
type Outcome struct {
	SourceID     string
	Success      bool
	ResponseTime time.Duration
	Error        string
}

// Thresholds tune status classification.
type Thresholds struct {
	// SuccessRate below this is a warning; below half of 100 is critical.
	SuccessRate float64
	// ResponseTimeMs above this is a warning; above twice it is critical.
	ResponseTimeMs int64
	// ErrorCount above this is a warning.
	ErrorCount int64
}

// DefaultThresholds per operations guidance.
var DefaultThresholds = Thresholds{
	SuccessRate:    80,
	ResponseTimeMs: 10000,
	ErrorCount:     5,
}

// StaleAfter forces a record to unknown when no event arrived within the
// window, overriding rate-based classification.
const StaleAfter = 30 * time.Minute

// Cache TTLs for the durability copies.
const (
	metricsTTL = time.Hour
	alertsTTL  = 24 * time.Hour
)

const (
	metricsKeyPrefix = "health:metrics:"
	alertsKey        = "health:alerts"
)

// Monitor is the process-wide health tracker. Create one at the
// composition root and hand it to the orchestrator.
type Monitor struct {
	mu         sync.Mutex
	records    map[string]*Record
	alerts     []Alert // ring, newest last, bounded by MaxAlerts
	thresholds Thresholds
	cache      cache.Cache
	notifier   Notifier
	metrics    *Metrics
	newID      idgen.Generator
	now        func() time.Time
	logger     *slog.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithThresholds overrides the default thresholds.
func WithThresholds(t Thresholds) MonitorOption {
	return func(m *Monitor) { m.thresholds = t }
}

// WithNotifier attaches an alert sink. Delivery failures are logged,
// never propagated.
func WithNotifier(n Notifier) MonitorOption {
	return func(m *Monitor) { m.notifier = n }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(pm *Metrics) MonitorOption {
	return func(m *Monitor) { m.metrics = pm }
}

// WithClock sets a custom time source (for testing).
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

// NewMonitor creates a Monitor backed by c for durability.
func NewMonitor(c cache.Cache, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		records:    make(map[string]*Record),
		thresholds: DefaultThresholds,
		cache:      c,
		newID:      idgen.Prefixed("alr_", idgen.Default),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// RecordOutcome folds one scrape outcome into the source's record,
// reclassifies it, and raises an alert if the status changed. Updates are
// serialized, keeping the rate arithmetic consistent under concurrent
// searches.
func (m *Monitor) RecordOutcome(ctx context.Context, o Outcome) {
	m.mu.Lock()

	r, ok := m.records[o.SourceID]
	if !ok {
		r = &Record{SourceID: o.SourceID, Status: StatusUnknown}
		m.records[o.SourceID] = r
	}
	prev := r.Status

	r.TotalRequests++
	now := m.now()
	if o.Success {
		t := now
		r.LastSuccessfulScrape = &t
	} else {
		r.ErrorCount++
		r.LastError = o.Error
	}
	r.SuccessRate = float64(r.TotalRequests-r.ErrorCount) / float64(r.TotalRequests) * 100

	// Rolling average over all samples, successes and failures alike.
	rt := o.ResponseTime.Milliseconds()
	r.AverageResponseTimeMs = (r.AverageResponseTimeMs*(r.TotalRequests-1) + rt) / r.TotalRequests

	r.LastCheck = now
	r.Status = m.classify(r, now)

	var raised *Alert
	if r.Status != prev {
		raised = m.alertForTransition(prev, r)
	}
	snapshot := *r
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.observe(o, snapshot)
	}
	m.persistRecord(ctx, snapshot)
	if raised != nil {
		m.persistAlerts(ctx)
		m.dispatch(ctx, *raised)
	}
}

// classify applies the threshold rules in precedence order. Caller holds mu.
func (m *Monitor) classify(r *Record, now time.Time) Status {
	if now.Sub(r.LastCheck) > StaleAfter {
		return StatusUnknown
	}
	if r.SuccessRate < 50 || r.AverageResponseTimeMs > 2*m.thresholds.ResponseTimeMs {
		return StatusCritical
	}
	if r.SuccessRate < m.thresholds.SuccessRate ||
		r.AverageResponseTimeMs > m.thresholds.ResponseTimeMs ||
		r.ErrorCount > m.thresholds.ErrorCount {
		return StatusWarning
	}
	return StatusHealthy
}

// Get returns a copy of the source's record, with staleness applied.
func (m *Monitor) Get(sourceID string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[sourceID]
	if !ok {
		return Record{}, false
	}
	out := *r
	if m.now().Sub(out.LastCheck) > StaleAfter {
		out.Status = StatusUnknown
	}
	return out, true
}

// Snapshot returns copies of all records, with staleness applied.
func (m *Monitor) Snapshot() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		c := *r
		if now.Sub(c.LastCheck) > StaleAfter {
			c.Status = StatusUnknown
		}
		out = append(out, c)
	}
	return out
}

// Rehydrate restores records and alerts from the cache. Malformed entries
// are skipped; a cold start with an empty cache is normal.
func (m *Monitor) Rehydrate(ctx context.Context) {
	keys, err := m.cache.Keys(ctx, metricsKeyPrefix)
	if err != nil {
		m.logger.Warn("health: rehydrate scan failed", "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		b, err := m.cache.Get(ctx, k)
		if err != nil {
			continue
		}
		var r Record
		if err := json.Unmarshal(b, &r); err != nil || r.SourceID == "" {
			m.logger.Warn("health: skipping malformed record", "key", k)
			continue
		}
		m.records[r.SourceID] = &r
	}

	if b, err := m.cache.Get(ctx, alertsKey); err == nil {
		var alerts []Alert
		if err := json.Unmarshal(b, &alerts); err != nil {
			m.logger.Warn("health: skipping malformed alerts", "error", err)
		} else {
			m.alerts = alerts
		}
	}

	m.logger.Info("health: rehydrated", "records", len(m.records), "alerts", len(m.alerts))
}

func (m *Monitor) persistRecord(ctx context.Context, r Record) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := m.cache.SetWithExpiry(ctx, metricsKeyPrefix+r.SourceID, b, metricsTTL); err != nil {
		m.logger.Debug("health: persist record failed", "source", r.SourceID, "error", err)
	}
}

func (m *Monitor) persistAlerts(ctx context.Context) {
	m.mu.Lock()
	b, err := json.Marshal(m.alerts)
	m.mu.Unlock()
	if err != nil {
		return
	}
	if err := m.cache.SetWithExpiry(ctx, alertsKey, b, alertsTTL); err != nil {
		m.logger.Debug("health: persist alerts failed", "error", err)
	}
}

func (m *Monitor) dispatch(ctx context.Context, a Alert) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, a); err != nil {
		m.logger.Warn("health: alert delivery failed", "alert", a.ID, "error", err)
	}
}
