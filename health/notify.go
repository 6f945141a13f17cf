package health

import (
	"context"
	"log/slog"
)

// LogNotifier writes alerts to structured logs. It is the default sink in
// deployments without a paging integration.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, a Alert) error {
	log := n.Logger
	if log == nil {
		log = slog.Default()
	}
	level := slog.LevelWarn
	if a.Type == AlertCritical {
		level = slog.LevelError
	} else if a.Type == AlertRecovery {
		level = slog.LevelInfo
	}
	log.Log(context.Background(), level, "health alert",
		"alert", a.ID, "source", a.SourceID, "type", a.Type, "message", a.Message)
	return nil
}
