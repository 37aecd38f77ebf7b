package api

import (
	"time"

	"github.com/lecturecast/lecturecast/internal/jobs"
	"github.com/lecturecast/lecturecast/internal/toolchain"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State       string             `json:"state"`
	LastError   string             `json:"last_error,omitempty"`
	JobsRunning int                `json:"jobs_running"`
	JobsQueued  int                `json:"jobs_queued"`
	ActiveJobs  []JobResponse      `json:"active_jobs"`
	Toolchain   *ToolchainResponse `json:"toolchain,omitempty"`
}

type ToolchainResponse struct {
	HasEncode     bool   `json:"has_encode"`
	HasSubtitles  bool   `json:"has_subtitles"`
	HasProbe      bool   `json:"has_probe"`
	FFmpegVersion string `json:"ffmpeg_version,omitempty"`
	LastProbeAt   string `json:"last_probe_at,omitempty"`
}

type SubmitResponse struct {
	JobID string `json:"job_id"`
}

type JobResponse struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	State         string  `json:"state"`
	Progress      int     `json:"progress"`
	Theme         string  `json:"theme"`
	Voice         string  `json:"voice"`
	SlideCount    int     `json:"slide_count"`
	Degraded      bool    `json:"degraded"`
	FallbackCount int     `json:"fallback_count"`
	Duration      float64 `json:"duration,omitempty"`
	Error         string  `json:"error,omitempty"`
	HasVideo      bool    `json:"has_video"`
	HasSubtitles  bool    `json:"has_subtitles"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type EventResponse struct {
	ID      int64  `json:"id"`
	Time    string `json:"time"`
	Level   string `json:"level"`
	Stage   string `json:"stage"`
	Unit    string `json:"unit,omitempty"`
	Message string `json:"message"`
}

type EventsResponse struct {
	Events []EventResponse `json:"events"`
}

type UnitResponse struct {
	Seq           int     `json:"seq"`
	Key           string  `json:"key"`
	SlideID       int     `json:"slide_id,omitempty"`
	Narration     string  `json:"narration"`
	TargetSeconds int     `json:"target_seconds,omitempty"`
	Background    string  `json:"background,omitempty"`
	Duration      float64 `json:"duration"`
	Outcome       string  `json:"outcome"`
	RatePercent   int     `json:"rate_percent"`
}

type UnitsResponse struct {
	Units []UnitResponse `json:"units"`
}

type TranslateResponse struct {
	Lang string `json:"lang"`
	URL  string `json:"url"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func JobToResponse(j *jobs.Job) JobResponse {
	return JobResponse{
		ID:            j.ID,
		Title:         j.Title,
		State:         string(j.State),
		Progress:      j.Progress,
		Theme:         j.Theme,
		Voice:         j.Voice,
		SlideCount:    j.SlideCount,
		Degraded:      j.Degraded(),
		FallbackCount: j.FallbackCount,
		Duration:      j.Duration,
		Error:         j.Error,
		HasVideo:      j.VideoPath != "",
		HasSubtitles:  j.SubtitlePath != "",
		CreatedAt:     j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     j.UpdatedAt.Format(time.RFC3339),
	}
}

func EventToResponse(e *jobs.Event) EventResponse {
	return EventResponse{
		ID:      e.ID,
		Time:    e.Time.Format(time.RFC3339Nano),
		Level:   e.Level,
		Stage:   e.Stage,
		Unit:    e.Unit,
		Message: e.Message,
	}
}

func UnitToResponse(u *jobs.StoredUnit) UnitResponse {
	return UnitResponse{
		Seq:           u.Seq,
		Key:           u.Key,
		SlideID:       u.SlideID,
		Narration:     u.Narration,
		TargetSeconds: u.TargetSeconds,
		Background:    u.Background,
		Duration:      u.Duration,
		Outcome:       string(u.Outcome),
		RatePercent:   u.RatePercent,
	}
}

func ToolchainToResponse(caps *toolchain.Capabilities) *ToolchainResponse {
	resp := &ToolchainResponse{
		HasEncode:     caps.HasEncode,
		HasSubtitles:  caps.HasSubtitles,
		HasProbe:      caps.HasProbe,
		FFmpegVersion: caps.FFmpeg.Version,
	}
	if !caps.ProbedAt.IsZero() {
		resp.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
	}
	return resp
}
