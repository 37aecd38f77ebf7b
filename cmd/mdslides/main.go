// Command mdslides converts a lecture markdown file into a slides document
// that can be submitted to lecturecast.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/lecturecast/lecturecast/internal/slides"
)

func main() {
	in := flag.String("in", "", "markdown file (default stdin)")
	out := flag.String("out", "", "output JSON file (default stdout)")
	title := flag.String("title", "", "project title")
	author := flag.String("author", "", "project author")
	date := flag.String("date", "", "project date")
	flag.Parse()

	if err := run(*in, *out, slides.Project{Title: *title, Author: *author, Date: *date}); err != nil {
		log.Fatalf("mdslides: %v", err)
	}
}

func run(inPath, outPath string, project slides.Project) error {
	var r io.Reader = os.Stdin
	if inPath != "" {
		f, err := os.Open(inPath)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	parsed, err := slides.ParseMarkdown(r)
	if err != nil {
		return err
	}
	deck := slides.Deck{Project: project, Slides: parsed}
	if err := deck.Validate(); err != nil {
		return fmt.Errorf("converted deck is not valid: %w", err)
	}

	data, err := json.MarshalIndent(deck, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if outPath == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %d slides to %s\n", len(parsed), outPath)
	return nil
}
