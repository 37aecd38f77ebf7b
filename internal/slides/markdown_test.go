package slides

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lectureMarkdown = `Preamble that is ignored.

# Slide 1
## Vector Spaces
**Duration:** 2 min
A vector space is a set closed under addition.
- Closure
- Associativity
---

# Slide 2
## Basis
1. Pick independent vectors
2. Check they span
![basis](img/basis.png)
\mathbf{v} = \sum_i c_i \mathbf{e}_i
`

func TestParseMarkdown(t *testing.T) {
	got, err := ParseMarkdown(strings.NewReader(lectureMarkdown))
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, "Vector Spaces", first.Title)
	assert.Equal(t, DurationHint("2 min"), first.Duration)
	assert.Equal(t, []string{"Closure", "Associativity"}, first.Content.Bullets)
	assert.Equal(t, "A vector space is a set closed under addition.", first.Content.Description)

	second := got[1]
	assert.Equal(t, 2, second.ID)
	assert.Equal(t, DurationHint(DefaultMarkdownDuration), second.Duration)
	assert.Equal(t, []string{"Pick independent vectors", "Check they span"}, second.Content.Steps)
	assert.Equal(t, "img/basis.png", second.Image)
	require.Len(t, second.Math, 1)
	assert.Contains(t, second.Math[0], `\sum_i`)
}

func TestParseMarkdown_NoSlides(t *testing.T) {
	got, err := ParseMarkdown(strings.NewReader("# Not a slide\ntext"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNarrationFile(t *testing.T) {
	m, err := ReadNarration(strings.NewReader(`{"slide_0":{"voice_text":"Hello"},"slide_7":{"voice_text":""}}`))
	require.NoError(t, err)
	assert.Equal(t, NarrationMap{0: "Hello", 7: ""}, m)
	assert.Equal(t, []int{7}, m.Unmatched(3))
	assert.Empty(t, m.Unmatched(8))

	_, err = ReadNarration(strings.NewReader(`{"intro":{"voice_text":"x"}}`))
	assert.Error(t, err)

	_, err = ReadNarration(strings.NewReader(`{"slide_x":{"voice_text":"x"}}`))
	assert.Error(t, err)

	_, err = ReadNarration(strings.NewReader(`{"slide_-1":{"voice_text":"x"}}`))
	assert.Error(t, err)
}

func TestLoadNarrationFile_Missing(t *testing.T) {
	m, err := LoadNarrationFile(filepath.Join(t.TempDir(), "narration.json"))
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestLoadNarrationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "narration.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"slide_3":{"voice_text":"Third"}}`), 0o644))

	m, err := LoadNarrationFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Third", m[3])
}
