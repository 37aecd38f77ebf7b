package render

import (
	"image"
	"strings"
	"unicode/utf8"
)

// Slide geometry, shared by every theme.
var (
	cardRect  = image.Rect(100, 100, 1180, 620)
	titleAt   = image.Pt(150, 140)
	bodyTop   = 240
	bodyLeft  = 150
	bodyRight = 1130
	bodyFloor = 590
	// an image reference occupies the right half of the card
	imageRect = image.Rect(660, 220, 1150, 590)
)

const subtitleGap = 12

// Wrap breaks text into lines of at most columns characters on word
// boundaries. A word longer than columns gets a line of its own.
func Wrap(text string, columns int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	cur := words[0]
	for _, w := range words[1:] {
		if utf8.RuneCountInString(cur)+1+utf8.RuneCountInString(w) > columns {
			lines = append(lines, cur)
			cur = w
			continue
		}
		cur += " " + w
	}
	return append(lines, cur)
}

// wrapBody wraps every paragraph and returns the combined lines.
func wrapBody(paragraphs []string, columns int) []string {
	var lines []string
	for _, p := range paragraphs {
		lines = append(lines, Wrap(p, columns)...)
	}
	return lines
}
