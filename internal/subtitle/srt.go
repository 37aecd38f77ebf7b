package subtitle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const arrow = " --> "

// FormatTimestamp renders d as HH:MM:SS,mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Round(time.Millisecond).Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}

// ParseTimestamp is the inverse of FormatTimestamp. A '.' separator is
// accepted as well.
func ParseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.Replace(s, ".", ",", 1))
	var h, m, sec, ms int
	if _, err := fmt.Sscanf(s, "%d:%d:%d,%d", &h, &m, &sec, &ms); err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	if m > 59 || sec > 59 || ms > 999 || h < 0 || m < 0 || sec < 0 || ms < 0 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second + time.Duration(ms)*time.Millisecond, nil
}

// Write serialises the track in SRT form: index line, timing line, text,
// blank separator.
func Write(w io.Writer, t Track) error {
	bw := bufio.NewWriter(w)
	for _, c := range t.Cues {
		if _, err := fmt.Fprintf(bw, "%d\n%s%s%s\n%s\n\n",
			c.Index, FormatTimestamp(c.Start), arrow, FormatTimestamp(c.End), c.Text); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes the track to path, replacing any previous file atomically.
func WriteFile(path string, t Track) error {
	var buf bytes.Buffer
	if err := Write(&buf, t); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create subtitle dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write subtitles: %w", err)
	}
	return os.Rename(tmp, path)
}

// Parse reads an SRT document. Multi-line cue text is joined with spaces.
func Parse(r io.Reader) (Track, error) {
	var (
		track Track
		cur   *Cue
		state int // 0 index, 1 timing, 2 text
		line  int
	)
	flush := func() {
		if cur != nil {
			cur.Text = cueText(cur.Text)
			track.Cues = append(track.Cues, *cur)
			cur = nil
		}
		state = 0
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if line == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}

		switch state {
		case 0:
			if strings.TrimSpace(text) == "" {
				continue
			}
			idx, err := strconv.Atoi(strings.TrimSpace(text))
			if err != nil {
				return Track{}, fmt.Errorf("line %d: expected cue index, got %q", line, text)
			}
			cur = &Cue{Index: idx}
			state = 1
		case 1:
			start, end, ok := strings.Cut(text, "-->")
			if !ok {
				return Track{}, fmt.Errorf("line %d: expected timing line", line)
			}
			var err error
			if cur.Start, err = ParseTimestamp(start); err != nil {
				return Track{}, fmt.Errorf("line %d: %w", line, err)
			}
			if cur.End, err = ParseTimestamp(end); err != nil {
				return Track{}, fmt.Errorf("line %d: %w", line, err)
			}
			state = 2
		case 2:
			if strings.TrimSpace(text) == "" {
				flush()
				continue
			}
			if cur.Text != "" {
				cur.Text += " "
			}
			cur.Text += text
		}
	}
	if err := sc.Err(); err != nil {
		return Track{}, err
	}
	if state == 1 {
		return Track{}, fmt.Errorf("line %d: cue %d has no timing line", line, cur.Index)
	}
	flush()
	return track, nil
}

// ReadFile parses the SRT file at path.
func ReadFile(path string) (Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return Track{}, err
	}
	defer f.Close()
	return Parse(f)
}
