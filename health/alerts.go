package health

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AlertType distinguishes escalations from all-clears.
type AlertType string

const (
	AlertWarning  AlertType = "warning"
	AlertCritical AlertType = "critical"
	AlertRecovery AlertType = "recovery"
)

// MaxAlerts bounds the in-memory alert ring; older alerts fall off.
const MaxAlerts = 100

// Alert is an operator-facing escalation created on a status transition.
// Acknowledgement is the only mutation after creation.
type Alert struct {
	ID             string     `json:"id"`
	SourceID       string     `json:"sourceId"`
	Type           AlertType  `json:"type"`
	Message        string     `json:"message"`
	Timestamp      time.Time  `json:"timestamp"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
}

// Notifier receives alerts for downstream paging or UI display.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// ErrAlertNotFound is returned by Acknowledge for an unknown alert ID.
var ErrAlertNotFound = errors.New("health: alert not found")

// alertForTransition appends an alert for a status change, or nil when the
// transition is not alertable. Caller holds mu.
//
// A source emerging from unknown into healthy is a cold start, not a
// recovery; alerting on it would page operators every restart.
func (m *Monitor) alertForTransition(prev Status, r *Record) *Alert {
	var typ AlertType
	var msg string

	switch r.Status {
	case StatusCritical:
		typ = AlertCritical
		msg = fmt.Sprintf("source %s is critical: success rate %.1f%%, avg response %dms",
			r.SourceID, r.SuccessRate, r.AverageResponseTimeMs)
	case StatusWarning:
		typ = AlertWarning
		msg = fmt.Sprintf("source %s is degraded: success rate %.1f%%, %d errors",
			r.SourceID, r.SuccessRate, r.ErrorCount)
	case StatusHealthy:
		if prev != StatusWarning && prev != StatusCritical {
			return nil
		}
		typ = AlertRecovery
		msg = fmt.Sprintf("source %s recovered: success rate %.1f%%", r.SourceID, r.SuccessRate)
	default:
		return nil
	}

	a := Alert{
		ID:        m.newID(),
		SourceID:  r.SourceID,
		Type:      typ,
		Message:   msg,
		Timestamp: m.now(),
	}
	m.alerts = append(m.alerts, a)
	if len(m.alerts) > MaxAlerts {
		m.alerts = m.alerts[len(m.alerts)-MaxAlerts:]
	}
	m.logger.Info("health: alert raised", "source", r.SourceID, "type", typ, "status", r.Status)
	return &a
}

// Alerts returns alerts newest-first. With unacknowledgedOnly, acknowledged
// alerts are filtered out.
func (m *Monitor) Alerts(unacknowledgedOnly bool) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Alert, 0, len(m.alerts))
	for i := len(m.alerts) - 1; i >= 0; i-- {
		a := m.alerts[i]
		if unacknowledgedOnly && a.Acknowledged {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Acknowledge marks an alert as handled. Idempotent: acknowledging twice
// keeps the first acknowledger.
func (m *Monitor) Acknowledge(ctx context.Context, alertID, who string) error {
	m.mu.Lock()
	var found *Alert
	for i := range m.alerts {
		if m.alerts[i].ID == alertID {
			found = &m.alerts[i]
			break
		}
	}
	if found == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlertNotFound, alertID)
	}
	if !found.Acknowledged {
		found.Acknowledged = true
		found.AcknowledgedBy = who
		t := m.now()
		found.AcknowledgedAt = &t
	}
	m.mu.Unlock()

	m.persistAlerts(ctx)
	return nil
}
