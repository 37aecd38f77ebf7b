package slides

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	slideHeading  = regexp.MustCompile(`^# Slide (\d+)`)
	durationLine  = regexp.MustCompile(`\*\*Duration:\*\* ([\d.]+) min`)
	imageRef      = regexp.MustCompile(`!\[.*?\]\((.*?)\)`)
	orderedPrefix = regexp.MustCompile(`^\d+[.)]\s+`)
)

// DefaultMarkdownDuration is the hint given to slides without a Duration line.
const DefaultMarkdownDuration = "1 min"

// ParseMarkdown extracts slides from a lecture markdown document.
//
//	# Slide 3
//	## Eigenvalues
//	**Duration:** 2 min
//	- bullet
//	1. step
//	![figure](img/eigen.png)
//	\lambda v = A v
//
// Text before the first "# Slide" heading is ignored.
func ParseMarkdown(r io.Reader) ([]Slide, error) {
	var (
		out     []Slide
		current *Slide
		desc    []string
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Content.Description = strings.Join(desc, " ")
		out = append(out, *current)
		current = nil
		desc = nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		if m := slideHeading.FindStringSubmatch(line); m != nil {
			flush()
			id, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, fmt.Errorf("slide heading %q: %w", line, err)
			}
			current = &Slide{ID: id, Duration: DefaultMarkdownDuration}
			continue
		}
		if current == nil || line == "" || strings.HasPrefix(line, "---") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "## "):
			current.Title = strings.TrimPrefix(line, "## ")
		case durationLine.MatchString(line):
			m := durationLine.FindStringSubmatch(line)
			current.Duration = DurationHint(m[1] + " min")
		case imageRef.MatchString(line):
			if current.Image == "" {
				current.Image = imageRef.FindStringSubmatch(line)[1]
			}
		case strings.Contains(line, `\`):
			current.Math = append(current.Math, line)
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			current.Content.Bullets = append(current.Content.Bullets, strings.TrimSpace(line[2:]))
		case orderedPrefix.MatchString(line):
			current.Content.Steps = append(current.Content.Steps, orderedPrefix.ReplaceAllString(line, ""))
		default:
			desc = append(desc, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}
	flush()

	return out, nil
}
