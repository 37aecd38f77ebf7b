// Package jobs persists video jobs and runs them in the background.
package jobs

import (
	"errors"
	"time"

	"github.com/lecturecast/lecturecast/internal/pipeline"
	"github.com/lecturecast/lecturecast/internal/slides"
)

// ErrNotFound is returned for unknown job ids.
var ErrNotFound = errors.New("job not found")

// ValidationError rejects a submission before a job is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Submission is a job request as received.
type Submission struct {
	Project   slides.Project       `json:"project"`
	Slides    []slides.Slide       `json:"slides"`
	Narration slides.NarrationFile `json:"narration,omitempty"`
	Theme     string               `json:"theme,omitempty"`
	Voice     string               `json:"voice,omitempty"`
}

// Deck returns the slides with their metadata.
func (s Submission) Deck() slides.Deck {
	return slides.Deck{Project: s.Project, Slides: s.Slides}
}

// Job is one stored video job.
type Job struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	State         pipeline.State `json:"state"`
	Progress      int            `json:"progress"`
	Theme         string         `json:"theme"`
	Voice         string         `json:"voice"`
	SlideCount    int            `json:"slide_count"`
	Error         string         `json:"error,omitempty"`
	FallbackCount int            `json:"fallback_count"`
	VideoPath     string         `json:"-"`
	SubtitlePath  string         `json:"-"`
	Duration      float64        `json:"duration"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`

	submission []byte
}

// Degraded reports a finished job whose narration is partly silence.
func (j *Job) Degraded() bool { return j.FallbackCount > 0 }

// Event is a stored log entry of a job.
type Event struct {
	ID    int64  `json:"id"`
	JobID string `json:"job_id"`
	pipeline.Event
}

// StoredUnit is a slide unit as recorded for a job.
type StoredUnit struct {
	JobID string `json:"job_id"`
	pipeline.Unit
}
