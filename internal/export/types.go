// Package export writes a finished lecture's slide timeline in formats that
// editing tools can import.
package export

import "github.com/lecturecast/lecturecast/internal/pipeline"

// DefaultFrameRate matches the encoder's output rate.
const DefaultFrameRate = 24.0

// Clip is one slide of the timeline: a still image held for the length of
// its narration.
type Clip struct {
	Name      string
	ImagePath string
	AudioPath string
	Seconds   float64
}

// ClipsFromUnits converts pipeline units, in sequence order, into clips.
func ClipsFromUnits(units []pipeline.Unit) []Clip {
	clips := make([]Clip, 0, len(units))
	for _, u := range units {
		name := "slide_" + u.Key
		if u.Key == pipeline.IntroKey {
			name = "intro"
		}
		clips = append(clips, Clip{
			Name:      name,
			ImagePath: u.ImagePath,
			AudioPath: u.AudioPath,
			Seconds:   u.Duration,
		})
	}
	return clips
}
