package toolchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics

	// waitDelay bounds how long a killed process may keep its pipes open.
	waitDelay = 2 * time.Second
)

// Runner executes the media tools.
type Runner interface {
	// RunFFmpeg runs ffmpeg with args. outPath, when set, is the file ffmpeg
	// writes; its directory is created first.
	RunFFmpeg(ctx context.Context, outPath string, args ...string) (RunResult, error)

	// Probe inspects a media file with ffprobe.
	Probe(ctx context.Context, path string) (*ProbeResult, error)

	// RunDoctor checks which tools are installed and what they support.
	RunDoctor(ctx context.Context) (*Capabilities, error)
}

// Config holds the runner's configuration.
type Config struct {
	FFmpegPath    string        // empty = look up "ffmpeg" on PATH
	FFprobePath   string        // empty = look up "ffprobe" on PATH
	EncodeTimeout time.Duration // upper bound for one ffmpeg run
	ProbeTimeout  time.Duration
	DoctorTimeout time.Duration
	Logger        *slog.Logger
	DebugPaths    bool // if true, log full file paths; otherwise sanitise
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		EncodeTimeout: 30 * time.Minute,
		ProbeTimeout:  30 * time.Second,
		DoctorTimeout: 30 * time.Second,
		Logger:        logger,
	}
}

// SubprocessRunner is the production implementation of Runner.
type SubprocessRunner struct {
	cfg     Config
	ffmpeg  string
	ffprobe string
}

// NewRunner resolves the tool binaries. ffmpeg is required; a missing
// ffprobe only disables Probe.
func NewRunner(cfg Config) (*SubprocessRunner, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ffmpeg, err := resolveBinary(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("cannot locate ffmpeg: %w", err)
	}
	ffprobe, err := resolveBinary(cfg.FFprobePath, "ffprobe")
	if err != nil {
		cfg.Logger.Warn("ffprobe not found, output probing disabled", "error", err)
		ffprobe = ""
	}

	cfg.Logger.Info("toolchain runner initialised", "ffmpeg", ffmpeg, "ffprobe", ffprobe)
	return &SubprocessRunner{cfg: cfg, ffmpeg: ffmpeg, ffprobe: ffprobe}, nil
}

// RunFFmpeg runs ffmpeg non-interactively, overwriting outputs.
func (r *SubprocessRunner) RunFFmpeg(ctx context.Context, outPath string, args ...string) (RunResult, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.EncodeTimeout)
	defer cancel()

	full := append([]string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error"}, args...)
	result := r.exec(ctx, r.ffmpeg, outPath, io.Discard, full...)
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

// Probe reads duration, size and codecs of path.
func (r *SubprocessRunner) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if r.ffprobe == "" {
		return nil, errors.New("ffprobe is not available")
	}
	ctx, cancel := withTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	var stdout bytes.Buffer
	result := r.exec(ctx, r.ffprobe, "", &stdout,
		"-v", "error", "-print_format", "json", "-show_format", "-show_streams", path)
	if !result.IsSuccess() {
		return nil, fmt.Errorf("ffprobe exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	return parseProbe(stdout.Bytes())
}

// withTimeout bounds ctx by d; a non-positive d leaves it unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func parseProbe(data []byte) (*ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}

	res := &ProbeResult{}
	res.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if res.VideoCodec == "" {
				res.VideoCodec = s.CodecName
				res.Width, res.Height = s.Width, s.Height
				res.FrameRate = parseRate(s.AvgFrameRate)
			}
		case "audio":
			if res.AudioCodec == "" {
				res.AudioCodec = s.CodecName
			}
		}
		if res.Duration == 0 {
			res.Duration, _ = strconv.ParseFloat(s.Duration, 64)
		}
	}
	return res, nil
}

// parseRate turns "24/1" or "30000/1001" into frames per second.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// RunDoctor probes versions and the features the encoder relies on.
func (r *SubprocessRunner) RunDoctor(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.DoctorTimeout)
	defer cancel()

	caps := &Capabilities{ProbedAt: time.Now()}
	caps.FFmpeg = r.toolInfo(ctx, r.ffmpeg)
	if !caps.FFmpeg.Available {
		return caps, fmt.Errorf("ffmpeg unusable: %s", caps.FFmpeg.Error)
	}

	var encoders, filters bytes.Buffer
	if res := r.exec(ctx, r.ffmpeg, "", &encoders, "-hide_banner", "-encoders"); res.IsSuccess() {
		caps.HasEncode = hasToken(encoders.String(), "libx264") && hasToken(encoders.String(), "aac")
	}
	if res := r.exec(ctx, r.ffmpeg, "", &filters, "-hide_banner", "-filters"); res.IsSuccess() {
		caps.HasSubtitles = hasToken(filters.String(), "subtitles")
	}

	if r.ffprobe != "" {
		caps.FFprobe = r.toolInfo(ctx, r.ffprobe)
		caps.HasProbe = caps.FFprobe.Available
	} else {
		caps.FFprobe = ToolInfo{Error: "not found on PATH"}
	}

	r.cfg.Logger.Info("doctor probe complete",
		"encode", caps.HasEncode,
		"subtitles", caps.HasSubtitles,
		"probe", caps.HasProbe,
		"ffmpeg_version", caps.FFmpeg.Version,
	)
	return caps, nil
}

func (r *SubprocessRunner) toolInfo(ctx context.Context, bin string) ToolInfo {
	var out bytes.Buffer
	res := r.exec(ctx, bin, "", &out, "-version")
	if !res.IsSuccess() {
		return ToolInfo{Path: bin, Error: truncate(strings.TrimSpace(res.StderrTail), 256)}
	}
	return ToolInfo{Available: true, Path: bin, Version: parseVersion(out.String())}
}

// parseVersion extracts "6.1.1" from "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(banner string) string {
	first, _, _ := strings.Cut(banner, "\n")
	fields := strings.Fields(first)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

// hasToken reports whether listing contains name as a whitespace-separated word.
func hasToken(listing, name string) bool {
	for _, line := range strings.Split(listing, "\n") {
		for _, f := range strings.Fields(line) {
			if f == name {
				return true
			}
		}
	}
	return false
}

// exec is the core subprocess execution helper.
func (r *SubprocessRunner) exec(ctx context.Context, bin, outPath string, stdout io.Writer, args ...string) RunResult {
	start := time.Now()

	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			r.cfg.Logger.Error("cannot create output dir", "error", err)
			return RunResult{ExitCode: -1, StderrTail: err.Error(), Duration: time.Since(start)}
		}
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.WaitDelay = waitDelay

	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stdout = stdout

	r.cfg.Logger.Debug("executing tool command", "bin", filepath.Base(bin), "args", len(args))

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	stderrTail := stderrBuf.String()
	if exitCode != 0 && stderrTail == "" && err != nil {
		stderrTail = err.Error()
	}

	if exitCode != 0 {
		r.cfg.Logger.Warn("tool command failed",
			"bin", filepath.Base(bin),
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else if outPath != "" {
		r.cfg.Logger.Info("tool command succeeded",
			"bin", filepath.Base(bin),
			"duration_ms", elapsed.Milliseconds(),
			"output", r.safePath(outPath),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		OutputPath: outPath,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

func (r *SubprocessRunner) safePath(path string) string {
	if r.cfg.DebugPaths {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Base(path)
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return filepath.Base(path)
}

// resolveBinary finds an executable, preferring the configured path.
func resolveBinary(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("no %s binary found on PATH", name)
	}
	return p, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
