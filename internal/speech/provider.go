// Package speech turns narration text into verified audio artifacts.
package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultVoice is a neutral, professional narrator voice.
const DefaultVoice = "en-US-ChristopherNeural"

// ErrSynthesis marks a failed synthesis call. It is recoverable: the stage
// substitutes silent audio and never returns it to callers.
var ErrSynthesis = errors.New("speech synthesis failed")

// Provider is the speech-synthesis capability.
type Provider interface {
	// Synthesize speaks text with the given voice and signed rate adjustment
	// (percent) and writes the encoded audio to outputPath.
	Synthesize(ctx context.Context, text, voice string, ratePercent int, outputPath string) error

	// Voices lists the voices the provider can speak with.
	Voices(ctx context.Context) ([]Voice, error)
}

// Voice describes an available synthesis voice.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

// FormatRate renders a rate adjustment the way synthesis engines expect it,
// e.g. "+20%", "-30%", "+0%".
func FormatRate(percent int) string {
	if percent < 0 {
		return fmt.Sprintf("%d%%", percent)
	}
	return fmt.Sprintf("+%d%%", percent)
}

// Serialize wraps a provider whose engine is not reentrant so that at most one
// synthesis call runs at a time across all jobs.
func Serialize(p Provider) Provider {
	return &serialProvider{p: p}
}

type serialProvider struct {
	mu sync.Mutex
	p  Provider
}

func (s *serialProvider) Synthesize(ctx context.Context, text, voice string, ratePercent int, outputPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Synthesize(ctx, text, voice, ratePercent, outputPath)
}

func (s *serialProvider) Voices(ctx context.Context) ([]Voice, error) {
	return s.p.Voices(ctx)
}
