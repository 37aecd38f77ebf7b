package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lecturecast/lecturecast/internal/logging"
	"github.com/lecturecast/lecturecast/internal/narration"
)

const (
	// MinAudioBytes is the smallest artifact accepted as real audio.
	MinAudioBytes = 1000

	// DefaultFallbackSeconds is the length of the silent placeholder.
	DefaultFallbackSeconds = 2.0
)

// ErrArtifactVerification is matched by every *ArtifactError.
var ErrArtifactVerification = errors.New("audio artifact verification failed")

// ArtifactError reports an audio artifact that is missing, too small or
// undecodable after the fallback was already tried.
type ArtifactError struct {
	Path   string
	Size   int64
	Reason string
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("audio artifact %s: %s (size %d)", filepath.Base(e.Path), e.Reason, e.Size)
}

func (e *ArtifactError) Unwrap() error { return ErrArtifactVerification }

// Outcome tells how an artifact was produced.
type Outcome string

const (
	OutcomeSynthesized Outcome = "synthesized"
	OutcomeFallback    Outcome = "fallback"
)

// Request is one narration to voice.
type Request struct {
	Text          string // resolved narration; cleaned before synthesis
	BasePath      string // destination without extension
	TargetSeconds int    // rate hint only; <= 0 disables adjustment
	Voice         string
}

// Artifact is a verified audio file and its measured length.
type Artifact struct {
	Path        string  `json:"path"`
	Duration    float64 `json:"duration"`
	Outcome     Outcome `json:"outcome"`
	RatePercent int     `json:"rate_percent"`
	Bytes       int64   `json:"bytes"`
	Cause       string  `json:"cause,omitempty"` // synthesis failure behind a fallback
}

// StageConfig wires the audio stage.
type StageConfig struct {
	Provider        Provider
	MinBytes        int64
	FallbackSeconds float64
	Probe           func(path string) (float64, error)
	Silence         func(path string, seconds float64) error
	Logger          *slog.Logger
}

// Stage voices narration, falling back to silence when synthesis fails.
type Stage struct {
	cfg StageConfig
}

// NewStage fills unset fields of cfg with the production defaults.
func NewStage(cfg StageConfig) *Stage {
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = MinAudioBytes
	}
	if cfg.FallbackSeconds <= 0 {
		cfg.FallbackSeconds = DefaultFallbackSeconds
	}
	if cfg.Probe == nil {
		cfg.Probe = ProbeDuration
	}
	if cfg.Silence == nil {
		cfg.Silence = WriteSilence
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Stage{cfg: cfg}
}

// Generate produces the audio for one narration. Synthesis failures are
// absorbed by writing a silent placeholder; an *ArtifactError is returned only
// when even the placeholder cannot be verified. The returned duration is the
// probed length of the file, never the requested target.
func (s *Stage) Generate(ctx context.Context, req Request) (*Artifact, error) {
	log := s.cfg.Logger.With("audio", logging.SanitizePath(req.BasePath))

	if err := os.MkdirAll(filepath.Dir(req.BasePath), 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}

	text := narration.Clean(req.Text)
	rate := narration.EstimateRate(text, req.TargetSeconds)

	primary := req.BasePath + ".mp3"
	art, cause := s.synthesize(ctx, text, req.Voice, rate, primary)
	if cause == nil {
		log.Debug("narration synthesized", "duration_s", art.Duration, "rate", FormatRate(rate))
		return art, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	log.Warn("synthesis failed, using silent fallback", "error", cause)
	_ = os.Remove(primary)

	fallback := req.BasePath + ".wav"
	if err := s.cfg.Silence(fallback, s.cfg.FallbackSeconds); err != nil {
		return nil, &ArtifactError{Path: fallback, Reason: "fallback not written: " + err.Error()}
	}
	size, err := s.verify(fallback)
	if err != nil {
		return nil, err
	}
	dur, err := s.cfg.Probe(fallback)
	if err != nil || dur <= 0 {
		return nil, &ArtifactError{Path: fallback, Size: size, Reason: "fallback has no measurable duration"}
	}

	return &Artifact{
		Path:        fallback,
		Duration:    dur,
		Outcome:     OutcomeFallback,
		RatePercent: rate,
		Bytes:       size,
		Cause:       cause.Error(),
	}, nil
}

func (s *Stage) synthesize(ctx context.Context, text, voice string, rate int, path string) (*Artifact, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: narration is empty after cleaning", ErrSynthesis)
	}
	if voice == "" {
		voice = DefaultVoice
	}
	if err := s.cfg.Provider.Synthesize(ctx, text, voice, rate, path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	size, err := s.verify(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	dur, err := s.cfg.Probe(path)
	if err != nil {
		return nil, fmt.Errorf("%w: probe: %v", ErrSynthesis, err)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("%w: zero-length audio", ErrSynthesis)
	}

	return &Artifact{
		Path:        path,
		Duration:    dur,
		Outcome:     OutcomeSynthesized,
		RatePercent: rate,
		Bytes:       size,
	}, nil
}

func (s *Stage) verify(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, &ArtifactError{Path: path, Reason: "missing"}
	}
	if info.Size() < s.cfg.MinBytes {
		return info.Size(), &ArtifactError{Path: path, Size: info.Size(), Reason: fmt.Sprintf("smaller than %d bytes", s.cfg.MinBytes)}
	}
	return info.Size(), nil
}
