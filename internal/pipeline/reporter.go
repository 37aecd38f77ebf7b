package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/lecturecast/lecturecast/internal/speech"
)

// Status is a snapshot of a job's position.
type Status struct {
	JobID         string `json:"job_id"`
	State         State  `json:"state"`
	Progress      int    `json:"progress"`
	Error         string `json:"error,omitempty"`
	FallbackCount int    `json:"fallback_count"`
}

// Event levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Event is one entry of a job's log.
type Event struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Stage   string    `json:"stage"`
	Unit    string    `json:"unit,omitempty"`
	Message string    `json:"message"`
}

// Unit is a slide unit that made it into the job's sequence.
type Unit struct {
	Seq           int            `json:"seq"`
	Key           string         `json:"key"` // "intro" or the slide id
	SlideID       int            `json:"slide_id"`
	Narration     string         `json:"narration"`
	TargetSeconds int            `json:"target_seconds"`
	AudioPath     string         `json:"audio_path"`
	ImagePath     string         `json:"image_path"`
	Background    string         `json:"background,omitempty"`
	Duration      float64        `json:"duration"`
	Outcome       speech.Outcome `json:"outcome"`
	RatePercent   int            `json:"rate_percent"`
}

// Reporter receives progress from a running job. Implementations must not
// block for long; the pipeline calls them inline.
type Reporter interface {
	Transition(ctx context.Context, st Status)
	Event(ctx context.Context, jobID string, ev Event)
	UnitAdded(ctx context.Context, jobID string, u Unit)
}

// LogReporter writes everything to a logger.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) Transition(ctx context.Context, st Status) {
	r.Logger.Info("job state changed", "job_id", st.JobID, "state", st.State, "progress", st.Progress, "error", st.Error)
}

func (r LogReporter) Event(ctx context.Context, jobID string, ev Event) {
	level := slog.LevelInfo
	switch ev.Level {
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	r.Logger.Log(ctx, level, ev.Message, "job_id", jobID, "stage", ev.Stage, "unit", ev.Unit)
}

func (r LogReporter) UnitAdded(ctx context.Context, jobID string, u Unit) {
	r.Logger.Info("unit added", "job_id", jobID, "key", u.Key, "duration_s", u.Duration, "outcome", u.Outcome)
}

type nopReporter struct{}

func (nopReporter) Transition(context.Context, Status)      {}
func (nopReporter) Event(context.Context, string, Event)    {}
func (nopReporter) UnitAdded(context.Context, string, Unit) {}
