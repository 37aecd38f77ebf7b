// Package video assembles slide units into one continuous narrated video.
package video

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
)

// ErrEmptySequence means no unit survived validation.
var ErrEmptySequence = errors.New("no valid slide units to assemble")

// Unit is one audio+image pair. Duration is the measured audio length.
type Unit struct {
	Key        string  `json:"key"` // "intro" or the slide id
	AudioPath  string  `json:"audio_path"`
	ImagePath  string  `json:"image_path"`
	Background string  `json:"background,omitempty"`
	Duration   float64 `json:"duration"`
}

// Segment is a unit placed on the output timeline. Its Duration is the
// frame-aligned length; Audio keeps the measured one.
type Segment struct {
	Unit
	Audio float64 `json:"audio_duration"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Dropped records a unit left out of the video and why.
type Dropped struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Plan is the validated, gapless timeline handed to an encoder.
type Plan struct {
	Segments  []Segment
	Dropped   []Dropped
	Subtitles string // empty when no track is overlaid
}

// Total is the planned playable duration in seconds.
func (p Plan) Total() float64 {
	if len(p.Segments) == 0 {
		return 0
	}
	return p.Segments[len(p.Segments)-1].End
}

// Quantize rounds seconds to whole frames at fps, never below one frame.
// A non-positive fps leaves seconds unchanged.
func Quantize(seconds float64, fps int) float64 {
	if fps <= 0 || seconds <= 0 {
		return seconds
	}
	return float64(frames(seconds, fps)) / float64(fps)
}

func frames(seconds float64, fps int) int64 {
	return max(1, int64(math.Round(seconds*float64(fps))))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// NewPlan validates units in order and lays the survivors end to end. A unit
// whose audio or image is missing, or whose duration is not positive, is
// dropped with a warning. With fps > 0 every segment spans whole frames and
// segment boundaries are computed from a frame count, so picture and sound
// cut at the same instants. The subtitle track is kept only if it exists.
func NewPlan(units []Unit, subtitlePath string, fps int, exists func(string) bool, logger *slog.Logger) (Plan, error) {
	if exists == nil {
		exists = fileExists
	}
	if logger == nil {
		logger = slog.Default()
	}

	var (
		plan   Plan
		cursor float64
		frame  int64
	)
	for _, u := range units {
		reason := ""
		switch {
		case u.AudioPath == "" || !exists(u.AudioPath):
			reason = "audio missing"
		case u.ImagePath == "" || !exists(u.ImagePath):
			reason = "image missing"
		case u.Duration <= 0:
			reason = fmt.Sprintf("non-positive duration %.3f", u.Duration)
		}
		if reason != "" {
			logger.Warn("dropping slide unit", "unit", u.Key, "reason", reason)
			plan.Dropped = append(plan.Dropped, Dropped{Key: u.Key, Reason: reason})
			continue
		}

		seg := Segment{Unit: u, Audio: u.Duration, Start: cursor}
		if fps > 0 {
			frame += frames(u.Duration, fps)
			seg.End = float64(frame) / float64(fps)
			seg.Duration = Quantize(u.Duration, fps)
		} else {
			seg.End = cursor + u.Duration
		}
		plan.Segments = append(plan.Segments, seg)
		cursor = seg.End
	}

	if len(plan.Segments) == 0 {
		return plan, ErrEmptySequence
	}

	if subtitlePath != "" {
		if exists(subtitlePath) {
			plan.Subtitles = subtitlePath
		} else {
			logger.Warn("subtitle track missing, encoding without overlay", "path", subtitlePath)
		}
	}
	return plan, nil
}
