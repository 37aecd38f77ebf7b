// Package subtitle builds the SRT track that follows the narration timeline.
package subtitle

import (
	"os"
	"strings"
	"time"
)

// Cue is one timed subtitle entry. Index is 1-based.
type Cue struct {
	Index int           `json:"index"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// Track is an ordered, gapless sequence of cues.
type Track struct {
	Cues []Cue `json:"cues"`
}

// Entry is one narrated segment in presentation order.
type Entry struct {
	Duration  float64 // measured audio length in seconds
	Text      string
	AudioPath string // checked for existence when non-empty
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Build lays the entries end to end on one timeline starting at zero.
// Entries whose audio is missing, or whose duration is not positive, are
// skipped without moving the cursor so later cues keep their positions
// relative to the audio that actually plays. exists defaults to FileExists.
func Build(entries []Entry, exists func(string) bool) Track {
	if exists == nil {
		exists = FileExists
	}

	var (
		track  Track
		cursor time.Duration
	)
	for _, e := range entries {
		if e.AudioPath != "" && !exists(e.AudioPath) {
			continue
		}
		d := seconds(e.Duration)
		if d <= 0 {
			continue
		}
		track.Cues = append(track.Cues, Cue{
			Index: len(track.Cues) + 1,
			Start: cursor,
			End:   cursor + d,
			Text:  cueText(e.Text),
		})
		cursor += d
	}
	return track
}

// Duration is the end of the last cue.
func (t Track) Duration() time.Duration {
	if len(t.Cues) == 0 {
		return 0
	}
	return t.Cues[len(t.Cues)-1].End
}

// Texts returns the cue texts in order.
func (t Track) Texts() []string {
	out := make([]string, len(t.Cues))
	for i, c := range t.Cues {
		out[i] = c.Text
	}
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Millisecond)
}

// cueText keeps a cue on a single line; a blank line would end the block.
func cueText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return " "
	}
	return s
}
