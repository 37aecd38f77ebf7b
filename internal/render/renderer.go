// Package render produces the still image shown for each slide of a video.
package render

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lecturecast/lecturecast/internal/slides"
)

// Frame size of every rendered slide.
const (
	Width  = 1280
	Height = 720
)

// Spec is everything drawn on one slide.
type Spec struct {
	Title     string
	Subtitle  string
	Body      []string // paragraphs; bullets already carry their marker
	Code      string
	Math      []string
	ImagePath string
	Theme     string
}

// Artifact is a rendered slide.
type Artifact struct {
	Path       string
	Background string // theme background image drawn under the card, if any
}

// Renderer is the image-rendering capability.
type Renderer interface {
	RenderSlide(ctx context.Context, spec Spec, outputPath string) (*Artifact, error)
}

// SpecFromSlide lays out a content slide. Relative image references are
// resolved against assetDir.
func SpecFromSlide(s slides.Slide, theme, assetDir string) Spec {
	spec := Spec{
		Title:    s.Title,
		Subtitle: s.Subtitle,
		Code:     strings.TrimRight(s.Code, "\n"),
		Math:     s.Math,
		Theme:    theme,
	}

	if d := strings.TrimSpace(s.Content.Description); d != "" {
		spec.Body = append(spec.Body, d)
	}
	switch {
	case len(s.Content.Bullets) > 0:
		spec.Body = append(spec.Body, prefixed("• ", s.Content.Bullets)...)
	case len(s.Content.Steps) > 0:
		spec.Body = append(spec.Body, numbered(s.Content.Steps)...)
	case len(s.Content.Concepts) > 0:
		spec.Body = append(spec.Body, prefixed("• ", s.Content.Concepts)...)
	}

	if img := strings.TrimSpace(s.Image); img != "" {
		if !filepath.IsAbs(img) && assetDir != "" {
			img = filepath.Join(assetDir, img)
		}
		spec.ImagePath = img
	}
	return spec
}

// IntroSpec lays out the title slide of a project.
func IntroSpec(p slides.Project, theme string) Spec {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = "Lecture"
	}
	var body []string
	if p.Author != "" {
		body = append(body, "Presented by "+p.Author)
	}
	if p.Date != "" {
		body = append(body, p.Date)
	}
	return Spec{Title: title, Body: body, Theme: theme}
}

func prefixed(marker string, items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, marker+strings.TrimSpace(it))
	}
	return out
}

func numbered(items []string) []string {
	out := make([]string, 0, len(items))
	for i, it := range items {
		out = append(out, strconv.Itoa(i+1)+". "+strings.TrimSpace(it))
	}
	return out
}
