package health

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports scrape and health gauges to Prometheus.
type Metrics struct {
	scrapes  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	status   *prometheus.GaugeVec
}

// NewMetrics creates and registers the metric set. Pass
// prometheus.DefaultRegisterer outside tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scrapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricehound_scrapes_total",
			Help: "Scrape outcomes per source.",
		}, []string{"source", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pricehound_scrape_duration_seconds",
			Help:    "Scrape wall time per source.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 0.25s .. 64s
		}, []string{"source"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pricehound_source_health",
			Help: "Source health status: 0 unknown, 1 healthy, 2 warning, 3 critical.",
		}, []string{"source"}),
	}
	reg.MustRegister(m.scrapes, m.duration, m.status)
	return m
}

func (m *Metrics) observe(o Outcome, r Record) {
	outcome := "success"
	if !o.Success {
		outcome = "failure"
	}
	m.scrapes.WithLabelValues(o.SourceID, outcome).Inc()
	m.duration.WithLabelValues(o.SourceID).Observe(o.ResponseTime.Seconds())
	m.status.WithLabelValues(o.SourceID).Set(statusValue(r.Status))
}

func statusValue(s Status) float64 {
	switch s {
	case StatusHealthy:
		return 1
	case StatusWarning:
		return 2
	case StatusCritical:
		return 3
	}
	return 0
}
