package playback

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lecturecast/lecturecast/internal/storage"
)

// FileServer streams a file on disk to an HTTP client.
type FileServer interface {
	ServeFile(w http.ResponseWriter, r *http.Request, filePath, downloadName string) error
}

var contentTypes = map[string]string{
	".mp4": "video/mp4",
	".srt": "application/x-subrip",
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeFile writes filePath to w, honouring a Range header. downloadName,
// sanitized, becomes the Content-Disposition filename; with ?download=1 the
// response is an attachment.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath, downloadName string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	size := stat.Size()
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType(filePath))
	w.Header().Set("Last-Modified", stat.ModTime().UTC().Format(http.TimeFormat))
	if cd := disposition(r, filePath, downloadName); cd != "" {
		w.Header().Set("Content-Disposition", cd)
	}

	parsed, err := ParseRange(r.Header.Get("Range"), size)
	if err == ErrUnsatisfiable {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}
	// A malformed Range header is ignored and the whole file is sent.
	if err != nil && err != ErrInvalidRange {
		return err
	}

	start := time.Now()
	var n int64
	var copyErr error
	if parsed == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			n, copyErr = io.Copy(w, file)
		}
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(parsed.ContentLength(), 10))
		w.Header().Set("Content-Range", parsed.ContentRange(size))
		w.WriteHeader(http.StatusPartialContent)
		if r.Method != http.MethodHead {
			if _, err := file.Seek(parsed.Start, io.SeekStart); err != nil {
				return fmt.Errorf("failed to seek: %w", err)
			}
			n, copyErr = io.CopyN(w, file, parsed.ContentLength())
		}
	}
	if copyErr != nil {
		// Client went away mid-stream; nothing left to report to it.
		s.logger.Debug("file stream interrupted", "path", filePath, "sent", n, "error", copyErr)
		return nil
	}

	s.logger.Debug("file served", "path", filePath, "bytes", n, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func disposition(r *http.Request, filePath, downloadName string) string {
	name := storage.SanitizeName(downloadName, 120)
	if name == "" {
		return ""
	}
	if filepath.Ext(name) == "" {
		name += filepath.Ext(filePath)
	}
	kind := "inline"
	if r.URL.Query().Get("download") == "1" {
		kind = "attachment"
	}
	return mime.FormatMediaType(kind, map[string]string{"filename": name})
}
