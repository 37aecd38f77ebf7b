package video

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lecturecast/lecturecast/internal/toolchain"
)

// Settings are the fixed encoding parameters of every output.
type Settings struct {
	Width        int
	Height       int
	FPS          int
	VideoCodec   string
	Preset       string
	PixelFormat  string
	AudioCodec   string
	AudioBitrate string
	SampleRate   int
	// subtitle overlay: bottom centre, MarginV pixels above the edge
	SubtitleFontSize int
	SubtitleMarginV  int
}

// DefaultSettings is 1280x720 H.264/AAC at 24 fps.
func DefaultSettings() Settings {
	return Settings{
		Width:            1280,
		Height:           720,
		FPS:              24,
		VideoCodec:       "libx264",
		Preset:           "medium",
		PixelFormat:      "yuv420p",
		AudioCodec:       "aac",
		AudioBitrate:     "192k",
		SampleRate:       44100,
		SubtitleFontSize: 22,
		SubtitleMarginV:  40,
	}
}

// Encoder is the video-encoding capability.
type Encoder interface {
	Encode(ctx context.Context, plan Plan, outputPath string) error
}

// FFmpegEncoder encodes a plan with a single ffmpeg filtergraph.
type FFmpegEncoder struct {
	runner   toolchain.Runner
	settings Settings
	logger   *slog.Logger
}

// NewFFmpegEncoder creates an encoder running through runner.
func NewFFmpegEncoder(runner toolchain.Runner, settings Settings, logger *slog.Logger) *FFmpegEncoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegEncoder{runner: runner, settings: settings, logger: logger}
}

// Encode runs ffmpeg and fails with the stderr tail on a non-zero exit.
func (e *FFmpegEncoder) Encode(ctx context.Context, plan Plan, outputPath string) error {
	args := BuildArgs(plan, outputPath, e.settings)
	result, err := e.runner.RunFFmpeg(ctx, outputPath, args...)
	if err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	if !result.IsSuccess() {
		return fmt.Errorf("ffmpeg exited %d: %s", result.ExitCode, strings.TrimSpace(result.StderrTail))
	}
	e.logger.Info("video encoded",
		"segments", len(plan.Segments),
		"subtitled", plan.Subtitles != "",
		"duration_ms", result.Duration.Milliseconds())
	return nil
}

// BuildArgs renders the ffmpeg arguments for plan. Each segment contributes a
// looped still image and its audio, both cut to the segment duration, and the
// pairs are concatenated in order. The subtitle overlay runs on the
// concatenated stream so cue times are absolute.
func BuildArgs(plan Plan, outputPath string, s Settings) []string {
	var args []string
	for _, seg := range plan.Segments {
		d := secs(seg.Duration)
		args = append(args,
			"-loop", "1", "-framerate", strconv.Itoa(s.FPS), "-t", d, "-i", seg.ImagePath,
			"-i", seg.AudioPath,
		)
	}

	var fg strings.Builder
	for i, seg := range plan.Segments {
		d := secs(seg.Duration)
		fmt.Fprintf(&fg,
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d,format=%s,trim=duration=%s,setpts=PTS-STARTPTS[v%d];",
			2*i, s.Width, s.Height, s.Width, s.Height, s.FPS, s.PixelFormat, d, i)
		fmt.Fprintf(&fg,
			"[%d:a]aresample=%d,aformat=sample_fmts=fltp:channel_layouts=stereo,apad,atrim=duration=%s,asetpts=PTS-STARTPTS[a%d];",
			2*i+1, s.SampleRate, d, i)
	}
	for i := range plan.Segments {
		fmt.Fprintf(&fg, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&fg, "concat=n=%d:v=1:a=1[vc][ac]", len(plan.Segments))

	videoOut := "[vc]"
	if plan.Subtitles != "" {
		fmt.Fprintf(&fg, ";[vc]subtitles=filename=%s:force_style='Alignment=2,MarginV=%d,FontSize=%d'[vs]",
			escapeFilterValue(plan.Subtitles), s.SubtitleMarginV, s.SubtitleFontSize)
		videoOut = "[vs]"
	}

	args = append(args,
		"-filter_complex", fg.String(),
		"-map", videoOut, "-map", "[ac]",
		"-c:v", s.VideoCodec, "-preset", s.Preset, "-pix_fmt", s.PixelFormat, "-r", strconv.Itoa(s.FPS),
		"-c:a", s.AudioCodec, "-b:a", s.AudioBitrate, "-ar", strconv.Itoa(s.SampleRate),
		"-movflags", "+faststart",
		outputPath,
	)
	return args
}

func secs(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}

// escapeFilterValue escapes a path for use as a filtergraph option value.
func escapeFilterValue(path string) string {
	path = filepath.ToSlash(path)
	r := strings.NewReplacer(
		`\`, `\\\\`,
		`'`, `\\\'`,
		`:`, `\\:`,
		`,`, `\,`,
		`;`, `\;`,
		`[`, `\[`,
		`]`, `\]`,
	)
	return r.Replace(path)
}
