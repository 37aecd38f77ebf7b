// Package pipeline drives one job from submitted slides to a finished video:
// intro, per-slide narration and image, subtitle track, then assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/lecturecast/lecturecast/internal/logging"
	"github.com/lecturecast/lecturecast/internal/narration"
	"github.com/lecturecast/lecturecast/internal/render"
	"github.com/lecturecast/lecturecast/internal/slides"
	"github.com/lecturecast/lecturecast/internal/speech"
	"github.com/lecturecast/lecturecast/internal/storage"
	"github.com/lecturecast/lecturecast/internal/subtitle"
	"github.com/lecturecast/lecturecast/internal/video"
)

// IntroKey names the artifacts of the generated title slide.
const IntroKey = "intro"

// Stage names used in events.
const (
	stageIntro     = "intro"
	stageSlides    = "slides"
	stageSubtitles = "subtitles"
	stageVideo     = "video"
)

// Pipeline runs jobs.
type Pipeline interface {
	Run(ctx context.Context, job Job, rep Reporter) (*Result, error)
}

// AudioStage voices one narration. *speech.Stage satisfies it.
type AudioStage interface {
	Generate(ctx context.Context, req speech.Request) (*speech.Artifact, error)
}

// Assembler encodes the unit sequence. *video.Assembler satisfies it.
type Assembler interface {
	Assemble(ctx context.Context, units []video.Unit, subtitlePath, outputPath string) (*video.Result, error)
	// Quantize maps a measured duration to the length it occupies on screen.
	Quantize(seconds float64) float64
}

// Job is the input of one run.
type Job struct {
	ID        string
	Deck      slides.Deck
	Narration slides.NarrationMap
	Theme     string
	Voice     string
	AssetDir  string // base for relative image references
}

// Skipped is a slide left out of the sequence.
type Skipped struct {
	Key    string `json:"key"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// Result is the outcome of a run. On failure it still carries the units
// produced before the failing stage.
type Result struct {
	JobID         string        `json:"job_id"`
	State         State         `json:"state"`
	Units         []Unit        `json:"units"`
	Skipped       []Skipped     `json:"skipped,omitempty"`
	SubtitlePath  string        `json:"subtitle_path,omitempty"`
	Video         *video.Result `json:"video,omitempty"`
	FallbackCount int           `json:"fallback_count"`
	Error         string        `json:"error,omitempty"`
}

// Degraded reports whether any unit uses placeholder audio.
func (r *Result) Degraded() bool { return r.FallbackCount > 0 }

// Orchestrator is the production Pipeline. It holds no per-job state and is
// safe for concurrent runs of distinct jobs.
type Orchestrator struct {
	audio     AudioStage
	renderer  render.Renderer
	assembler Assembler
	store     *storage.Store
	exists    func(string) bool
	logger    *slog.Logger
}

// NewOrchestrator wires the stages together.
func NewOrchestrator(audio AudioStage, renderer render.Renderer, assembler Assembler, store *storage.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		audio:     audio,
		renderer:  renderer,
		assembler: assembler,
		store:     store,
		exists:    subtitle.FileExists,
		logger:    logging.WithComponent(logger, "pipeline"),
	}
}

// run is the mutable state of one job, confined to its goroutine.
type run struct {
	o       *Orchestrator
	job     Job
	ws      *storage.Workspace
	rep     Reporter
	log     *slog.Logger
	state   State
	pct     int
	res     *Result
	entries []subtitle.Entry
}

// Run executes job to a terminal state, assigning an id when job has none.
// The returned error is non-nil exactly when the job ends failed; the Result
// is returned in both cases.
func (o *Orchestrator) Run(ctx context.Context, job Job, rep Reporter) (*Result, error) {
	if rep == nil {
		rep = nopReporter{}
	}
	if job.ID == "" {
		job.ID = NewJobID()
	}
	r := &run{
		o:     o,
		job:   job,
		rep:   rep,
		log:   logging.WithJobID(o.logger, job.ID),
		state: StateCreated,
		res:   &Result{JobID: job.ID, State: StateCreated},
	}
	start := time.Now()
	r.log.Info("job started", "slides", len(job.Deck.Slides))

	if err := r.execute(ctx); err != nil {
		r.fail(ctx, err)
		r.log.Error("job failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return r.res, err
	}

	r.log.Info("job complete",
		"units", len(r.res.Units),
		"fallbacks", r.res.FallbackCount,
		"duration_ms", time.Since(start).Milliseconds())
	return r.res, nil
}

func (r *run) execute(ctx context.Context) error {
	ws, err := r.o.store.Workspace(r.job.ID)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	r.ws = ws
	r.transition(ctx, StateCreated, 0)

	for _, idx := range r.job.Narration.Unmatched(len(r.job.Deck.Slides)) {
		key := fmt.Sprintf("slide_%d", idx)
		r.log.Warn("narration override matches no slide", "key", key)
		r.event(ctx, LevelWarn, stageSlides, "", "narration override "+key+" matches no slide")
	}

	intro := narration.Intro(r.job.Deck.Project)
	if err := r.addUnit(ctx, stageIntro, IntroKey, 0, intro, 0,
		render.IntroSpec(r.job.Deck.Project, r.job.Theme)); err != nil {
		return err
	}
	r.transition(ctx, StateIntroGenerated, progress[StateIntroGenerated])

	total := len(r.job.Deck.Slides)
	for i, s := range r.job.Deck.Slides {
		if err := ctx.Err(); err != nil {
			return err
		}
		text := narration.Resolve(s, i, r.job.Narration)
		spec := render.SpecFromSlide(s, r.job.Theme, r.job.AssetDir)
		if err := r.addUnit(ctx, stageSlides, strconv.Itoa(s.ID), s.ID, text, s.Duration.Seconds(), spec); err != nil {
			return err
		}
		r.rep.Transition(ctx, r.status(slideProgress(i+1, total)))
	}
	if len(r.res.Units) == 0 {
		return fmt.Errorf("%w: no slide produced a usable unit", video.ErrEmptySequence)
	}
	r.transition(ctx, StateSlidesGenerated, progress[StateSlidesGenerated])

	r.buildSubtitles(ctx)
	r.transition(ctx, StateSubtitlesBuilt, progress[StateSubtitlesBuilt])

	units := make([]video.Unit, 0, len(r.res.Units))
	for _, u := range r.res.Units {
		units = append(units, video.Unit{
			Key:        u.Key,
			AudioPath:  u.AudioPath,
			ImagePath:  u.ImagePath,
			Background: u.Background,
			Duration:   u.Duration,
		})
	}
	vr, err := r.o.assembler.Assemble(ctx, units, r.res.SubtitlePath, r.ws.VideoPath())
	if err != nil {
		return fmt.Errorf("assemble video: %w", err)
	}
	r.res.Video = vr
	for _, d := range vr.Dropped {
		r.event(ctx, LevelWarn, stageVideo, d.Key, "unit dropped: "+d.Reason)
	}
	r.transition(ctx, StateVideoAssembled, progress[StateVideoAssembled])

	r.event(ctx, LevelInfo, stageVideo, "", fmt.Sprintf("video written, %.2fs over %d segments", vr.Planned, len(vr.Segments)))
	r.transition(ctx, StateComplete, progress[StateComplete])
	return nil
}

// addUnit voices and renders one slide and appends the unit. Artifact and
// render failures skip the slide; only cancellation and unexpected audio
// stage errors abort the job.
func (r *run) addUnit(ctx context.Context, stage, key string, slideID int, text string, target int, spec render.Spec) error {
	log := r.log.With("unit", key)

	art, err := r.o.audio.Generate(ctx, speech.Request{
		Text:          text,
		BasePath:      r.ws.AudioBase(key),
		TargetSeconds: target,
		Voice:         r.job.Voice,
	})
	if err != nil {
		var artErr *speech.ArtifactError
		if !errors.As(err, &artErr) {
			return fmt.Errorf("%s audio: %w", key, err)
		}
		log.Error("audio artifact unusable, skipping", "error", err)
		r.skip(ctx, stage, key, err.Error())
		return nil
	}
	if art.Outcome == speech.OutcomeFallback {
		r.res.FallbackCount++
		r.event(ctx, LevelWarn, stage, key, "narration replaced by silence: "+art.Cause)
	}

	img, err := r.o.renderer.RenderSlide(ctx, spec, r.ws.ImagePath(key))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("slide render failed, skipping", "error", err)
		r.skip(ctx, stage, key, "render: "+err.Error())
		return nil
	}

	u := Unit{
		Seq:           len(r.res.Units) + 1,
		Key:           key,
		SlideID:       slideID,
		Narration:     narration.Clean(text),
		TargetSeconds: target,
		AudioPath:     art.Path,
		ImagePath:     img.Path,
		Background:    img.Background,
		Duration:      art.Duration,
		Outcome:       art.Outcome,
		RatePercent:   art.RatePercent,
	}
	r.res.Units = append(r.res.Units, u)
	r.entries = append(r.entries, subtitle.Entry{
		Duration:  r.o.assembler.Quantize(u.Duration),
		Text:      u.Narration,
		AudioPath: u.AudioPath,
	})
	r.rep.UnitAdded(ctx, r.job.ID, u)

	log.Info("unit ready", "duration_s", u.Duration, "target_s", target, "outcome", u.Outcome, "rate", speech.FormatRate(u.RatePercent))
	return nil
}

// buildSubtitles writes the source track. A track that cannot be written
// leaves the video without subtitles rather than failing the job.
func (r *run) buildSubtitles(ctx context.Context) {
	track := subtitle.Build(r.entries, r.o.exists)
	path := r.ws.SubtitlePath("")
	if err := subtitle.WriteFile(path, track); err != nil {
		r.log.Warn("subtitle track not written", "error", err)
		r.event(ctx, LevelWarn, stageSubtitles, "", "subtitles unavailable: "+err.Error())
		return
	}
	r.res.SubtitlePath = path
	r.event(ctx, LevelInfo, stageSubtitles, "", fmt.Sprintf("%d cues, %s", len(track.Cues), subtitle.FormatTimestamp(track.Duration())))
}

func (r *run) skip(ctx context.Context, stage, key, reason string) {
	r.res.Skipped = append(r.res.Skipped, Skipped{Key: key, Stage: stage, Reason: reason})
	r.event(ctx, LevelError, stage, key, "skipped: "+reason)
}

func (r *run) transition(ctx context.Context, next State, pct int) {
	if next != r.state && !r.state.CanTransition(next) {
		r.log.Error("invalid state transition", "from", r.state, "to", next)
		return
	}
	r.state = next
	r.res.State = next
	r.rep.Transition(ctx, r.status(pct))
}

func (r *run) fail(ctx context.Context, err error) {
	r.res.Error = err.Error()
	r.event(ctx, LevelError, string(r.state), "", err.Error())
	r.state = StateFailed
	r.res.State = StateFailed
	// the job context may already be cancelled
	r.rep.Transition(context.WithoutCancel(ctx), r.status(r.pct))
}

func (r *run) status(pct int) Status {
	r.pct = pct
	return Status{
		JobID:         r.job.ID,
		State:         r.state,
		Progress:      pct,
		Error:         r.res.Error,
		FallbackCount: r.res.FallbackCount,
	}
}

func (r *run) event(ctx context.Context, level, stage, unit, msg string) {
	r.rep.Event(context.WithoutCancel(ctx), r.job.ID, Event{
		Time:    time.Now().UTC(),
		Level:   level,
		Stage:   stage,
		Unit:    unit,
		Message: msg,
	})
}
