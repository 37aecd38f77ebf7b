// Package slides holds the lecture content model submitted to the video pipeline:
// project metadata, ordered slides, duration hints and narration overrides.
package slides

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Project is the metadata block of a submission.
type Project struct {
	Title         string       `json:"title"`
	Author        string       `json:"author"`
	Date          string       `json:"date,omitempty"`
	TotalDuration DurationHint `json:"total_duration,omitempty"`
}

// Slide is one content slide. ID defines presentation order and must be unique
// within a deck. Slides are treated as immutable once submitted.
type Slide struct {
	ID       int          `json:"id"`
	Title    string       `json:"title"`
	Subtitle string       `json:"subtitle,omitempty"`
	Duration DurationHint `json:"duration,omitempty"`
	Content  Content      `json:"content,omitempty"`
	Code     string       `json:"code,omitempty"`
	Math     []string     `json:"math,omitempty"`
	Image    string       `json:"image,omitempty"`
}

// Content is the optional body of a slide. On the wire it may be a plain
// string, a list of strings (bullets) or an object naming each list.
type Content struct {
	Description string   `json:"description,omitempty"`
	Bullets     []string `json:"bullets,omitempty"`
	Steps       []string `json:"steps,omitempty"`
	Concepts    []string `json:"concepts,omitempty"`
}

// IsEmpty reports whether the slide carries no body content.
func (c Content) IsEmpty() bool {
	return strings.TrimSpace(c.Description) == "" &&
		len(c.Bullets) == 0 && len(c.Steps) == 0 && len(c.Concepts) == 0
}

// Items returns the body as display lines: list entries first, then the
// description.
func (c Content) Items() []string {
	var items []string
	items = append(items, c.Bullets...)
	items = append(items, c.Steps...)
	items = append(items, c.Concepts...)
	if d := strings.TrimSpace(c.Description); d != "" {
		items = append(items, d)
	}
	return items
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Content{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content{Description: s}
		return nil
	case '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("content list: %w", err)
		}
		*c = Content{Bullets: list}
		return nil
	case '{':
		type plain Content
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("content object: %w", err)
		}
		*c = Content(p)
		return nil
	default:
		return fmt.Errorf("content must be a string, list or object")
	}
}

// DurationHint is the raw, human-readable duration attached to a slide
// ("4 min", "30 sec" or a bare number). JSON numbers are accepted as well.
type DurationHint string

// Seconds parses the hint. It never fails; see ParseDuration.
func (h DurationHint) Seconds() int {
	return ParseDuration(string(h))
}

func (h *DurationHint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*h = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*h = DurationHint(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string or number: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("duration must be a string or number: %w", err)
	}
	*h = DurationHint(n.String())
	return nil
}

// Deck is a submission: metadata plus ordered slides.
type Deck struct {
	Project Project `json:"project"`
	Slides  []Slide `json:"slides"`
}

// Validate checks the invariants the pipeline relies on: at least one slide
// and a non-empty title on every slide. Slides run in submission order, so
// ids must be unique and strictly increasing to agree with it.
func (d Deck) Validate() error {
	if len(d.Slides) == 0 {
		return fmt.Errorf("slides must not be empty")
	}
	for i, s := range d.Slides {
		if strings.TrimSpace(s.Title) == "" {
			return fmt.Errorf("slide %d (index %d): title is required", s.ID, i)
		}
		if i == 0 {
			continue
		}
		switch prev := d.Slides[i-1].ID; {
		case s.ID == prev:
			return fmt.Errorf("slide %d: duplicate id", s.ID)
		case s.ID < prev:
			return fmt.Errorf("slide %d (index %d): ids must increase, follows slide %d", s.ID, i, prev)
		}
	}
	return nil
}
