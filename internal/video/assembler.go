package video

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/lecturecast/lecturecast/internal/toolchain"
)

// driftTolerance is how far the encoded length may stray from the plan
// before it is logged.
const driftTolerance = 0.5

// Prober measures an encoded file. toolchain.Runner satisfies it.
type Prober interface {
	Probe(ctx context.Context, path string) (*toolchain.ProbeResult, error)
}

// Result describes a written video.
type Result struct {
	Path      string    `json:"path"`
	Planned   float64   `json:"planned_duration"`
	Measured  float64   `json:"measured_duration,omitempty"` // 0 when not probed
	Segments  []Segment `json:"segments"`
	Dropped   []Dropped `json:"dropped,omitempty"`
	Subtitled bool      `json:"subtitled"`
}

// Assembler validates units, plans the timeline and drives the encoder.
type Assembler struct {
	encoder Encoder
	prober  Prober
	fps     int
	exists  func(string) bool
	logger  *slog.Logger
}

// NewAssembler creates an assembler whose segments are aligned to fps
// frames. prober may be nil; fps <= 0 disables alignment.
func NewAssembler(encoder Encoder, prober Prober, fps int, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{encoder: encoder, prober: prober, fps: fps, exists: fileExists, logger: logger}
}

// Quantize returns the on-screen length of a unit lasting seconds.
func (a *Assembler) Quantize(seconds float64) float64 {
	return Quantize(seconds, a.fps)
}

// Assemble writes the video for units to outputPath. Missing assets drop
// their unit; ErrEmptySequence is returned when nothing is left. The file
// only appears at outputPath once encoding has succeeded.
func (a *Assembler) Assemble(ctx context.Context, units []Unit, subtitlePath, outputPath string) (*Result, error) {
	plan, err := NewPlan(units, subtitlePath, a.fps, a.exists, a.logger)
	if err != nil {
		return nil, err
	}

	partial := partialPath(outputPath)
	if err := a.encoder.Encode(ctx, plan, partial); err != nil {
		os.Remove(partial)
		return nil, fmt.Errorf("encode video: %w", err)
	}
	if err := os.Rename(partial, outputPath); err != nil {
		os.Remove(partial)
		return nil, fmt.Errorf("finalise video: %w", err)
	}

	res := &Result{
		Path:      outputPath,
		Planned:   plan.Total(),
		Segments:  plan.Segments,
		Dropped:   plan.Dropped,
		Subtitled: plan.Subtitles != "",
	}

	if a.prober != nil {
		if probe, err := a.prober.Probe(ctx, outputPath); err != nil {
			a.logger.Warn("could not measure encoded video", "error", err)
		} else {
			res.Measured = probe.Duration
			if drift := math.Abs(probe.Duration - res.Planned); drift > driftTolerance {
				a.logger.Warn("encoded duration differs from plan",
					"planned_s", res.Planned, "measured_s", probe.Duration, "drift_s", drift)
			}
		}
	}
	return res, nil
}

// partialPath keeps the container extension so ffmpeg picks the muxer.
func partialPath(out string) string {
	ext := filepath.Ext(out)
	return strings.TrimSuffix(out, ext) + ".partial" + ext
}
