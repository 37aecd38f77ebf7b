package speech

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/generators"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// silenceFormat matches the mono 24 kHz output of the synthesis voices.
var silenceFormat = beep.Format{SampleRate: 24000, NumChannels: 1, Precision: 2}

// ProbeDuration decodes the audio file at path and returns its encoded length
// in seconds. MP3 and WAV are supported.
func ProbeDuration(path string) (float64, error) {
	streamer, format, err := decode(path)
	if err != nil {
		return 0, err
	}
	defer streamer.Close()

	return format.SampleRate.D(streamer.Len()).Seconds(), nil
}

func decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		s, format, err := wav.Decode(f)
		if err != nil {
			f.Close()
			return nil, beep.Format{}, fmt.Errorf("decode wav %s: %w", filepath.Base(path), err)
		}
		return s, format, nil
	}

	s, format, err := mp3.Decode(f)
	if err == nil {
		return s, format, nil
	}

	// Some engines emit WAV regardless of the requested name.
	f.Close()
	f, err = os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}
	s, format, err = wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode audio %s: %w", filepath.Base(path), err)
	}
	return s, format, nil
}

// WriteSilence writes a WAV file containing seconds of silence.
func WriteSilence(path string, seconds float64) error {
	if seconds <= 0 {
		return fmt.Errorf("silence duration must be positive, got %v", seconds)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create silence file: %w", err)
	}
	defer f.Close()

	samples := int(float64(silenceFormat.SampleRate) * seconds)
	if err := wav.Encode(f, generators.Silence(samples), silenceFormat); err != nil {
		return fmt.Errorf("encode silence: %w", err)
	}
	return nil
}
