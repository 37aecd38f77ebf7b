// Package notify tells an external endpoint when a job finishes.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Payload is the body posted for a finished job.
type Payload struct {
	JobID         string    `json:"job_id"`
	Title         string    `json:"title"`
	State         string    `json:"state"`
	Degraded      bool      `json:"degraded"`
	FallbackCount int       `json:"fallback_count"`
	Duration      float64   `json:"duration,omitempty"`
	Error         string    `json:"error,omitempty"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Notifier delivers job notifications.
type Notifier interface {
	Notify(ctx context.Context, p Payload) error
}

// LogNotifier only logs; used when no webhook is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, p Payload) error {
	n.logger.Info("job finished", "job_id", p.JobID, "state", p.State, "degraded", p.Degraded)
	return nil
}
