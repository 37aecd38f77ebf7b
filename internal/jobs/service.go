package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lecturecast/lecturecast/internal/pipeline"
	"github.com/lecturecast/lecturecast/internal/storage"
	"github.com/lecturecast/lecturecast/internal/subtitle"
	"github.com/lecturecast/lecturecast/internal/translate"
)

var (
	// ErrNotReady is returned for outputs of a job that has not completed.
	ErrNotReady = errors.New("job has not completed")
	// ErrBusy is returned when deleting a job that is still running.
	ErrBusy = errors.New("job is running")
)

// Themes is the set of renderable theme names. *render.Catalogue satisfies it.
type Themes interface {
	Has(name string) bool
}

type JobService interface {
	Submit(ctx context.Context, sub Submission) (*Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, limit int) ([]*Job, error)
	Events(ctx context.Context, id string) ([]*Event, error)
	Units(ctx context.Context, id string) ([]*StoredUnit, error)
	Delete(ctx context.Context, id string) error
	VideoFile(ctx context.Context, id string) (string, *Job, error)
	SubtitleFile(ctx context.Context, id, lang string) (string, *Job, error)
	TranslateSubtitles(ctx context.Context, id, lang string) (string, error)
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Repo         Repository
	Store        *storage.Store
	Themes       Themes
	Translator   subtitle.Translator // nil disables translation
	DefaultTheme string
	DefaultVoice string
	Logger       *slog.Logger
}

type Service struct {
	cfg  ServiceConfig
	wake func()
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{cfg: cfg, wake: func() {}}
}

// OnSubmit registers fn to be called after each accepted submission.
func (s *Service) OnSubmit(fn func()) {
	s.wake = fn
}

// Submit validates sub and queues it. The job runs asynchronously; failures
// after this point only show in the job's state and event log.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Job, error) {
	if err := sub.Deck().Validate(); err != nil {
		return nil, &ValidationError{Field: "slides", Message: err.Error()}
	}
	if _, err := sub.Narration.Map(); err != nil {
		return nil, &ValidationError{Field: "narration", Message: err.Error()}
	}

	if sub.Theme == "" {
		sub.Theme = s.cfg.DefaultTheme
	}
	if sub.Theme != "" && s.cfg.Themes != nil && !s.cfg.Themes.Has(sub.Theme) {
		return nil, &ValidationError{Field: "theme", Message: fmt.Sprintf("unknown theme %q", sub.Theme)}
	}
	if sub.Voice == "" {
		sub.Voice = s.cfg.DefaultVoice
	}

	raw, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}

	now := time.Now()
	job := &Job{
		ID:         pipeline.NewJobID(),
		Title:      sub.Project.Title,
		State:      pipeline.StateCreated,
		Theme:      sub.Theme,
		Voice:      sub.Voice,
		SlideCount: len(sub.Slides),
		CreatedAt:  now,
		UpdatedAt:  now,
		submission: raw,
	}

	ws, err := s.cfg.Store.Workspace(job.ID)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(ws.SubmissionPath(), raw, 0o644); err != nil {
		return nil, fmt.Errorf("write submission: %w", err)
	}

	if err := s.cfg.Repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	s.cfg.Repo.AddEvent(ctx, job.ID, pipeline.Event{
		Level:   pipeline.LevelInfo,
		Stage:   "submit",
		Message: fmt.Sprintf("queued %d slides", job.SlideCount),
	})

	s.cfg.Logger.Info("job submitted", "job_id", job.ID, "slides", job.SlideCount, "theme", job.Theme)
	s.wake()
	return job, nil
}

// Load decodes the stored submission of id into a pipeline job.
func (s *Service) Load(ctx context.Context, id string) (pipeline.Job, error) {
	raw, err := s.cfg.Repo.Submission(ctx, id)
	if err != nil {
		return pipeline.Job{}, err
	}
	var sub Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return pipeline.Job{}, fmt.Errorf("decode submission: %w", err)
	}
	narr, err := sub.Narration.Map()
	if err != nil {
		return pipeline.Job{}, err
	}
	return pipeline.Job{
		ID:        id,
		Deck:      sub.Deck(),
		Narration: narr,
		Theme:     sub.Theme,
		Voice:     sub.Voice,
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	job, err := s.cfg.Repo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNotFound
	}
	return job, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]*Job, error) {
	return s.cfg.Repo.ListJobs(ctx, limit)
}

func (s *Service) Events(ctx context.Context, id string) ([]*Event, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.cfg.Repo.ListEvents(ctx, id)
}

func (s *Service) Units(ctx context.Context, id string) ([]*StoredUnit, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.cfg.Repo.ListUnits(ctx, id)
}

// Delete removes a finished or queued job together with its workspace.
func (s *Service) Delete(ctx context.Context, id string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.State.Running() {
		return ErrBusy
	}
	if err := s.cfg.Repo.DeleteJob(ctx, id); err != nil {
		return err
	}
	if err := s.cfg.Store.Remove(id); err != nil {
		s.cfg.Logger.Warn("failed to remove workspace", "job_id", id, "error", err)
	}
	s.cfg.Logger.Info("job deleted", "job_id", id)
	return nil
}

// VideoFile returns the path of the finished video of id.
func (s *Service) VideoFile(ctx context.Context, id string) (string, *Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if job.State != pipeline.StateComplete || job.VideoPath == "" {
		return "", job, ErrNotReady
	}
	return job.VideoPath, job, nil
}

// SubtitleFile returns the subtitle track of id; an empty lang is the
// source track.
func (s *Service) SubtitleFile(ctx context.Context, id, lang string) (string, *Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if job.SubtitlePath == "" {
		return "", job, ErrNotReady
	}
	if lang == "" {
		return job.SubtitlePath, job, nil
	}

	ws, err := s.cfg.Store.Open(id)
	if err != nil {
		return "", job, err
	}
	path := ws.SubtitlePath(lang)
	if !subtitle.FileExists(path) {
		return "", job, fmt.Errorf("no %s subtitles: %w", lang, ErrNotFound)
	}
	return path, job, nil
}

// TranslateSubtitles writes the subtitle track of id in lang and returns its
// path. Cue timings are kept.
func (s *Service) TranslateSubtitles(ctx context.Context, id, lang string) (string, error) {
	if !translate.Supported(lang) {
		return "", &ValidationError{Field: "lang", Message: fmt.Sprintf("unsupported language %q", lang)}
	}
	if s.cfg.Translator == nil {
		return "", translate.ErrNotConfigured
	}

	src, job, err := s.SubtitleFile(ctx, id, "")
	if err != nil {
		return "", err
	}
	track, err := subtitle.ReadFile(src)
	if err != nil {
		return "", err
	}

	translated, err := subtitle.Translate(ctx, track, s.cfg.Translator, lang)
	if err != nil {
		return "", fmt.Errorf("translate subtitles: %w", err)
	}

	ws, err := s.cfg.Store.Open(job.ID)
	if err != nil {
		return "", err
	}
	out := ws.SubtitlePath(lang)
	if err := subtitle.WriteFile(out, translated); err != nil {
		return "", err
	}

	s.cfg.Repo.AddEvent(ctx, id, pipeline.Event{
		Level:   pipeline.LevelInfo,
		Stage:   "translate",
		Message: fmt.Sprintf("subtitles translated to %s (%d cues)", translate.Languages[lang], len(translated.Cues)),
	})
	s.cfg.Logger.Info("subtitles translated", "job_id", id, "lang", lang, "cues", len(translated.Cues))
	return out, nil
}
