package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lecturecast/lecturecast/internal/slides"
)

func TestRun_WritesDeck(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "lecture.md")
	out := filepath.Join(dir, "slides.json")
	md := "# Slide 1\n## Vectors\n**Duration:** 2 min\n- magnitude\n- direction\n\n# Slide 2\n## Matrices\nA grid of numbers.\n"
	if err := os.WriteFile(in, []byte(md), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := run(in, out, slides.Project{Title: "Linear Algebra", Author: "E. Noether"}); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	deck, err := slides.LoadDeck(out)
	if err != nil {
		t.Fatalf("LoadDeck() error = %v", err)
	}
	if deck.Project.Title != "Linear Algebra" {
		t.Errorf("title = %q", deck.Project.Title)
	}
	if len(deck.Slides) != 2 {
		t.Fatalf("slides = %d, want 2", len(deck.Slides))
	}
	if deck.Slides[0].Duration.Seconds() != 120 {
		t.Errorf("slide 1 duration = %d", deck.Slides[0].Duration.Seconds())
	}
	if deck.Slides[1].Content.Description != "A grid of numbers." {
		t.Errorf("slide 2 description = %q", deck.Slides[1].Content.Description)
	}
}

func TestRun_RejectsEmptyDocument(t *testing.T) {
	in := filepath.Join(t.TempDir(), "empty.md")
	if err := os.WriteFile(in, []byte("just notes, no slides\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := run(in, filepath.Join(t.TempDir(), "out.json"), slides.Project{})
	if err == nil || !strings.Contains(err.Error(), "not valid") {
		t.Errorf("run() error = %v, want invalid deck", err)
	}
}
