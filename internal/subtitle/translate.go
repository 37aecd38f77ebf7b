package subtitle

import (
	"context"
	"fmt"
)

// Translator translates lines of text into a target language. The result
// must have the same length and order as the input.
type Translator interface {
	Translate(ctx context.Context, lines []string, lang string) ([]string, error)
}

// Translate returns a copy of t with every cue's text translated into lang.
// Indexes and timings are kept verbatim.
func Translate(ctx context.Context, t Track, tr Translator, lang string) (Track, error) {
	if len(t.Cues) == 0 {
		return Track{}, nil
	}

	texts, err := tr.Translate(ctx, t.Texts(), lang)
	if err != nil {
		return Track{}, fmt.Errorf("translate to %s: %w", lang, err)
	}
	if len(texts) != len(t.Cues) {
		return Track{}, fmt.Errorf("translate to %s: got %d lines for %d cues", lang, len(texts), len(t.Cues))
	}

	out := Track{Cues: make([]Cue, len(t.Cues))}
	for i, c := range t.Cues {
		c.Text = cueText(texts[i])
		out.Cues[i] = c
	}
	return out, nil
}
