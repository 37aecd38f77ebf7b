// Package narration decides what is spoken over each slide and how fast.
package narration

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lecturecast/lecturecast/internal/slides"
)

const sentenceDelimiter = ". "

var (
	emphasisMarkers   = regexp.MustCompile("\\*+|~~|`+")
	underscoreMarkers = regexp.MustCompile(`(^|\s)_+|_+($|\s)`)
	markdownLink      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	headingMarkers    = regexp.MustCompile(`(?m)^\s*(#+|>+)\s*`)
	whitespaceRun     = regexp.MustCompile(`\s+`)
)

// Resolve returns the narration for the slide at position index of its
// deck. A non-blank entry for index in the override map wins; otherwise the text is built from title, subtitle and
// the first present body list (bullets, steps, concepts) or the description.
// The result is never empty: blank narration becomes a single space.
func Resolve(slide slides.Slide, index int, overrides slides.NarrationMap) string {
	text, ok := overrides[index]
	if !ok || strings.TrimSpace(text) == "" {
		text = fromSlide(slide)
	}

	text = StripEmphasis(text)
	if strings.TrimSpace(text) == "" {
		return " "
	}
	return text
}

func fromSlide(s slides.Slide) string {
	parts := []string{s.Title}
	if s.Subtitle != "" {
		parts = append(parts, s.Subtitle)
	}

	c := s.Content
	switch {
	case len(c.Bullets) > 0:
		parts = append(parts, c.Bullets...)
	case len(c.Steps) > 0:
		parts = append(parts, c.Steps...)
	case len(c.Concepts) > 0:
		parts = append(parts, c.Concepts...)
	case strings.TrimSpace(c.Description) != "":
		parts = append(parts, c.Description)
	}

	kept := parts[:0]
	for _, p := range parts {
		p = strings.TrimRight(strings.TrimSpace(p), ".")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sentenceDelimiter)
}

// StripEmphasis removes markdown emphasis markers (*, **, _, __, ~~ and
// backticks) while leaving intra-word underscores alone.
func StripEmphasis(s string) string {
	s = emphasisMarkers.ReplaceAllString(s, "")
	return underscoreMarkers.ReplaceAllString(s, "$1$2")
}

// Clean prepares text for the synthesis engine: markdown links collapse to
// their label, heading and quote markers and emphasis are removed, and all
// whitespace runs become single spaces.
func Clean(s string) string {
	s = markdownLink.ReplaceAllString(s, "$1")
	s = headingMarkers.ReplaceAllString(s, "")
	s = StripEmphasis(s)
	s = strings.NewReplacer("#", "", "|", " ").Replace(s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Intro is the narration of the generated title slide.
func Intro(p slides.Project) string {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = "this lecture"
	}
	if author := strings.TrimSpace(p.Author); author != "" {
		return fmt.Sprintf("Welcome to %s. This presentation is brought to you by %s.", title, author)
	}
	return fmt.Sprintf("Welcome to %s.", title)
}
