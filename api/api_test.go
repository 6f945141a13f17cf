package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pricehound/pricehound/health"
	"github.com/pricehound/pricehound/search"
)

type stubSearcher struct {
	resp *search.Response
	err  error
	got  *search.Request
}

func (s *stubSearcher) Search(_ context.Context, req search.Request) (*search.Response, error) {
	s.got = &req
	return s.resp, s.err
}

type stubMonitor struct {
	records map[string]health.Record
	alerts  []health.Alert
	ackErr  error
	acked   string
}

func (m *stubMonitor) Get(id string) (health.Record, bool) {
	r, ok := m.records[id]
	return r, ok
}

func (m *stubMonitor) Snapshot() []health.Record {
	var out []health.Record
	for _, r := range m.records {
		out = append(out, r)
	}
	return out
}

func (m *stubMonitor) Alerts(unackOnly bool) []health.Alert {
	var out []health.Alert
	for _, a := range m.alerts {
		if unackOnly && a.Acknowledged {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (m *stubMonitor) Acknowledge(_ context.Context, alertID, who string) error {
	if m.ackErr != nil {
		return m.ackErr
	}
	m.acked = alertID + ":" + who
	return nil
}

func newTestServer(t *testing.T, s Searcher, m HealthReader) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewService(s, m, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchEndpoint(t *testing.T) {
	searcher := &stubSearcher{resp: &search.Response{
		SearchID: "srch_test",
		Metadata: search.Metadata{TotalSources: 2, SuccessfulSources: 2},
	}}
	srv := newTestServer(t, searcher, &stubMonitor{})

	resp, err := http.Post(srv.URL+"/api/search", "application/json",
		strings.NewReader(`{"query":"wireless headphones","maxResults":10}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var body search.Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.SearchID != "srch_test" {
		t.Fatalf("body: %+v", body)
	}
	if searcher.got.MaxResults != 10 {
		t.Fatalf("request not forwarded: %+v", searcher.got)
	}
}

func TestSearchEndpointValidation(t *testing.T) {
	srv := newTestServer(t, &stubSearcher{}, &stubMonitor{})

	cases := []struct {
		name string
		body string
	}{
		{"short query", `{"query":"ab"}`},
		{"long query", `{"query":"` + strings.Repeat("x", 501) + `"}`},
		{"excessive max results", `{"query":"headphones","maxResults":1000}`},
		{"malformed json", `{`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/search", "application/json", strings.NewReader(c.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status: %d", resp.StatusCode)
			}
			var e map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e["error"] == "" {
				t.Fatalf("error body: %v %v", e, err)
			}
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	now := time.Now()
	m := &stubMonitor{records: map[string]health.Record{
		"shop-a": {SourceID: "shop-a", Status: health.StatusHealthy, SuccessRate: 100, LastCheck: now},
	}}
	srv := newTestServer(t, &stubSearcher{}, m)

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var list struct {
		Sources []health.Record `json:"sources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Sources) != 1 || list.Sources[0].SourceID != "shop-a" {
		t.Fatalf("list: %+v", list)
	}

	resp, err = http.Get(srv.URL + "/api/health/shop-a")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/health/unknown-shop")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}

func TestAlertEndpoints(t *testing.T) {
	m := &stubMonitor{alerts: []health.Alert{
		{ID: "alr_1", SourceID: "shop-a", Type: health.AlertCritical},
		{ID: "alr_2", SourceID: "shop-b", Type: health.AlertWarning, Acknowledged: true},
	}}
	srv := newTestServer(t, &stubSearcher{}, m)

	resp, err := http.Get(srv.URL + "/api/alerts?unacknowledged=true")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var list struct {
		Alerts []health.Alert `json:"alerts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Alerts) != 1 || list.Alerts[0].ID != "alr_1" {
		t.Fatalf("alerts: %+v", list)
	}

	resp, err = http.Post(srv.URL+"/api/alerts/alr_1/ack", "application/json",
		strings.NewReader(`{"acknowledgedBy":"ops"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	if m.acked != "alr_1:ops" {
		t.Fatalf("acked: %q", m.acked)
	}

	resp, err = http.Post(srv.URL+"/api/alerts/alr_1/ack", "application/json",
		strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status without acknowledger: %d", resp.StatusCode)
	}
}

func TestAlertAckNotFound(t *testing.T) {
	m := &stubMonitor{ackErr: health.ErrAlertNotFound}
	srv := newTestServer(t, &stubSearcher{}, m)

	resp, err := http.Post(srv.URL+"/api/alerts/alr_missing/ack", "application/json",
		strings.NewReader(`{"acknowledgedBy":"ops"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubSearcher{}, &stubMonitor{})

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}
