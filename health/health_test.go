package health

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pricehound/pricehound/cache"
)

func newTestMonitor(t *testing.T, opts ...MonitorOption) (*Monitor, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	opts = append(opts, WithClock(func() time.Time { return *clock }))
	return NewMonitor(cache.NewMemory(), opts...), clock
}

func success(source string) Outcome {
	return Outcome{SourceID: source, Success: true, ResponseTime: 500 * time.Millisecond}
}

func failure(source, msg string) Outcome {
	return Outcome{SourceID: source, Success: false, ResponseTime: 500 * time.Millisecond, Error: msg}
}

func TestRecordOutcomeHealthy(t *testing.T) {
	m, _ := newTestMonitor(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		m.RecordOutcome(ctx, success("shop-a"))
	}

	r, ok := m.Get("shop-a")
	if !ok {
		t.Fatal("record missing")
	}
	if r.Status != StatusHealthy {
		t.Fatalf("status: %v", r.Status)
	}
	if r.SuccessRate != 100 {
		t.Fatalf("success rate: %v", r.SuccessRate)
	}
	if r.TotalRequests != 10 {
		t.Fatalf("total requests: %d", r.TotalRequests)
	}
	if r.LastSuccessfulScrape == nil {
		t.Fatal("last successful scrape not set")
	}
}

func TestCriticalBelowHalfSuccessRate(t *testing.T) {
	m, _ := newTestMonitor(t)
	ctx := context.Background()

	m.RecordOutcome(ctx, success("shop-a"))
	for i := 0; i < 3; i++ {
		m.RecordOutcome(ctx, failure("shop-a", "timeout"))
	}

	r, _ := m.Get("shop-a")
	if r.Status != StatusCritical {
		t.Fatalf("status: %v, success rate %v", r.Status, r.SuccessRate)
	}
	if r.LastError != "timeout" {
		t.Fatalf("last error: %q", r.LastError)
	}

	var critical int
	for _, a := range m.Alerts(false) {
		if a.Type == AlertCritical && a.SourceID == "shop-a" {
			critical++
		}
	}
	if critical != 1 {
		t.Fatalf("expected exactly one critical alert, got %d", critical)
	}
}

func TestWarningOnElevatedErrors(t *testing.T) {
	m, _ := newTestMonitor(t)
	ctx := context.Background()

	// 6 errors out of 40 keeps the rate at 85% but trips the error count.
	for i := 0; i < 34; i++ {
		m.RecordOutcome(ctx, success("shop-a"))
	}
	for i := 0; i < 6; i++ {
		m.RecordOutcome(ctx, failure("shop-a", "selector missing"))
	}

	r, _ := m.Get("shop-a")
	if r.Status != StatusWarning {
		t.Fatalf("status: %v, rate %v, errors %d", r.Status, r.SuccessRate, r.ErrorCount)
	}
}

func TestCriticalOnSlowResponses(t *testing.T) {
	m, _ := newTestMonitor(t)
	ctx := context.Background()

	m.RecordOutcome(ctx, Outcome{SourceID: "shop-a", Success: true, ResponseTime: 25 * time.Second})

	r, _ := m.Get("shop-a")
	if r.Status != StatusCritical {
		t.Fatalf("status: %v, avg %dms", r.Status, r.AverageResponseTimeMs)
	}
}

func TestRecoveryAlert(t *testing.T) {
	m, _ := newTestMonitor(t)
	ctx := context.Background()

	m.RecordOutcome(ctx, success("shop-a"))
	for i := 0; i < 3; i++ {
		m.RecordOutcome(ctx, failure("shop-a", "timeout"))
	}
	// Enough successes to climb back over 80%.
	for i := 0; i < 30; i++ {
		m.RecordOutcome(ctx, success("shop-a"))
	}

	r, _ := m.Get("shop-a")
	if r.Status != StatusHealthy {
		t.Fatalf("status: %v, rate %v", r.Status, r.SuccessRate)
	}

	var recovery int
	for _, a := range m.Alerts(false) {
		if a.Type == AlertRecovery {
			recovery++
		}
	}
	if recovery != 1 {
		t.Fatalf("expected one recovery alert, got %d", recovery)
	}
}

func TestNoRecoveryAlertOnColdStart(t *testing.T) {
	m, _ := newTestMonitor(t)

	m.RecordOutcome(context.Background(), success("shop-a"))

	for _, a := range m.Alerts(false) {
		if a.Type == AlertRecovery {
			t.Fatal("cold start must not raise a recovery alert")
		}
	}
}

func TestStaleRecordReadsUnknown(t *testing.T) {
	m, clock := newTestMonitor(t)
	m.RecordOutcome(context.Background(), success("shop-a"))

	*clock = clock.Add(StaleAfter + time.Minute)

	r, _ := m.Get("shop-a")
	if r.Status != StatusUnknown {
		t.Fatalf("status: %v", r.Status)
	}
	for _, s := range m.Snapshot() {
		if s.SourceID == "shop-a" && s.Status != StatusUnknown {
			t.Fatalf("snapshot status: %v", s.Status)
		}
	}
}

func TestAlertRingBounded(t *testing.T) {
	m, _ := newTestMonitor(t)
	ctx := context.Background()

	// Each source flips from unknown straight to critical, raising one
	// alert; far more sources than the ring holds.
	for i := 0; i < MaxAlerts+50; i++ {
		id := fmt.Sprintf("shop-%d", i)
		m.RecordOutcome(ctx, failure(id, "down"))
	}

	got := m.Alerts(false)
	if len(got) != MaxAlerts {
		t.Fatalf("ring size: %d, want %d", len(got), MaxAlerts)
	}
	// Newest first: the last source recorded leads.
	if got[0].SourceID != fmt.Sprintf("shop-%d", MaxAlerts+49) {
		t.Fatalf("newest alert: %s", got[0].SourceID)
	}
}

func TestAcknowledge(t *testing.T) {
	m, _ := newTestMonitor(t)
	ctx := context.Background()

	m.RecordOutcome(ctx, failure("shop-a", "down"))
	alerts := m.Alerts(true)
	if len(alerts) != 1 {
		t.Fatalf("alerts: %d", len(alerts))
	}

	if err := m.Acknowledge(ctx, alerts[0].ID, "ops"); err != nil {
		t.Fatal(err)
	}
	if got := m.Alerts(true); len(got) != 0 {
		t.Fatalf("unacknowledged after ack: %d", len(got))
	}
	all := m.Alerts(false)
	if !all[0].Acknowledged || all[0].AcknowledgedBy != "ops" || all[0].AcknowledgedAt == nil {
		t.Fatalf("ack fields: %+v", all[0])
	}

	// Second acknowledge keeps the first acknowledger.
	if err := m.Acknowledge(ctx, alerts[0].ID, "someone-else"); err != nil {
		t.Fatal(err)
	}
	if m.Alerts(false)[0].AcknowledgedBy != "ops" {
		t.Fatal("acknowledger overwritten")
	}

	if err := m.Acknowledge(ctx, "alr_missing", "ops"); !errors.Is(err, ErrAlertNotFound) {
		t.Fatalf("err: %v", err)
	}
}

func TestRehydrate(t *testing.T) {
	c := cache.NewMemory()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ctx := context.Background()

	first := NewMonitor(c, WithClock(clock))
	first.RecordOutcome(ctx, success("shop-a"))
	first.RecordOutcome(ctx, failure("shop-b", "down"))

	second := NewMonitor(c, WithClock(clock))
	second.Rehydrate(ctx)

	if r, ok := second.Get("shop-a"); !ok || r.Status != StatusHealthy {
		t.Fatalf("shop-a after rehydrate: %+v ok=%v", r, ok)
	}
	if r, ok := second.Get("shop-b"); !ok || r.Status != StatusCritical {
		t.Fatalf("shop-b after rehydrate: %+v ok=%v", r, ok)
	}
	if len(second.Alerts(false)) != 1 {
		t.Fatalf("alerts after rehydrate: %d", len(second.Alerts(false)))
	}
}

func TestRehydrateSkipsMalformed(t *testing.T) {
	c := cache.NewMemory()
	ctx := context.Background()
	c.SetWithExpiry(ctx, metricsKeyPrefix+"bad", []byte("{not json"), time.Hour)

	m := NewMonitor(c)
	m.Rehydrate(ctx)

	if len(m.Snapshot()) != 0 {
		t.Fatal("malformed record should be skipped")
	}
}

type captureNotifier struct {
	got []Alert
}

func (n *captureNotifier) Notify(_ context.Context, a Alert) error {
	n.got = append(n.got, a)
	return nil
}

func TestNotifierReceivesTransitions(t *testing.T) {
	n := &captureNotifier{}
	m, _ := newTestMonitor(t, WithNotifier(n))

	m.RecordOutcome(context.Background(), failure("shop-a", "down"))

	if len(n.got) != 1 || n.got[0].Type != AlertCritical {
		t.Fatalf("notifier calls: %+v", n.got)
	}
}
