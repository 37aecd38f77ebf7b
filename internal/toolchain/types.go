// Package toolchain runs the external media tools (ffmpeg, ffprobe) as
// subprocesses with bounded diagnostics and a cached capability probe.
package toolchain

import "time"

// Capabilities reports which external tools are usable.
type Capabilities struct {
	FFmpeg  ToolInfo `json:"ffmpeg"`
	FFprobe ToolInfo `json:"ffprobe"`

	HasEncode    bool      `json:"has_encode"`    // ffmpeg with libx264 and aac
	HasSubtitles bool      `json:"has_subtitles"` // ffmpeg built with the subtitles filter
	HasProbe     bool      `json:"has_probe"`
	ProbedAt     time.Time `json:"probed_at"`
}

// ToolInfo is the availability status of a single executable.
type ToolInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunResult is the structured outcome of executing a tool subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	OutputPath string        `json:"output_path,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// ProbeResult is the subset of ffprobe output the pipeline inspects.
type ProbeResult struct {
	Duration   float64 `json:"duration"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	VideoCodec string  `json:"video_codec"`
	AudioCodec string  `json:"audio_codec"`
	FrameRate  float64 `json:"frame_rate"`
}

// ffprobeOutput mirrors `ffprobe -print_format json -show_format -show_streams`.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}
