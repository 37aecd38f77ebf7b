package slides

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

const narrationKeyPrefix = "slide_"

// NarrationMap maps a 0-based slide position in Deck.Slides to externally
// supplied narration text.
type NarrationMap map[int]string

// NarrationEntry is one value of the narration override file.
type NarrationEntry struct {
	VoiceText string `json:"voice_text"`
}

// NarrationFile is the on-disk override format: {"slide_<index>": {"voice_text": "..."}},
// where index is the slide's 0-based position in the deck.
type NarrationFile map[string]NarrationEntry

// Map converts the file into a NarrationMap keyed by slide position.
// Keys that do not follow the slide_<index> form are rejected.
func (f NarrationFile) Map() (NarrationMap, error) {
	m := make(NarrationMap, len(f))
	for key, entry := range f {
		if !strings.HasPrefix(key, narrationKeyPrefix) {
			return nil, fmt.Errorf("narration key %q: expected %s<index>", key, narrationKeyPrefix)
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(key, narrationKeyPrefix))
		if err != nil {
			return nil, fmt.Errorf("narration key %q: %w", key, err)
		}
		if idx < 0 {
			return nil, fmt.Errorf("narration key %q: negative index", key)
		}
		m[idx] = entry.VoiceText
	}
	return m, nil
}

// ReadNarration decodes a narration override document.
func ReadNarration(r io.Reader) (NarrationMap, error) {
	var f NarrationFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode narration: %w", err)
	}
	return f.Map()
}

// LoadNarrationFile reads a narration override file from disk. A missing file
// is not an error: it yields an empty map.
func LoadNarrationFile(path string) (NarrationMap, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NarrationMap{}, nil
		}
		return nil, fmt.Errorf("open narration file: %w", err)
	}
	defer f.Close()
	return ReadNarration(f)
}

// Unmatched returns the override positions that name no slide of a deck
// with n slides, in ascending order.
func (m NarrationMap) Unmatched(n int) []int {
	var out []int
	for idx := range m {
		if idx < 0 || idx >= n {
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out
}
