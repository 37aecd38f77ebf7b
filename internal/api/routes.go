package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lecturecast/lecturecast/internal/jobs"
	"github.com/lecturecast/lecturecast/internal/pipeline"
	"github.com/lecturecast/lecturecast/internal/translate"
)

const maxSubmissionBytes = 16 << 20

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.ConfigStore, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/runner/pause", pauseHandler(cfg))
		r.Post("/runner/resume", resumeHandler(cfg))

		r.Post("/jobs", submitHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Delete("/jobs/{id}", deleteJobHandler(cfg))
		r.Post("/jobs/{id}/cancel", cancelJobHandler(cfg))
		r.Get("/jobs/{id}/events", listEventsHandler(cfg))
		r.Get("/jobs/{id}/units", listUnitsHandler(cfg))
		r.Post("/jobs/{id}/subtitles/{lang}", translateHandler(cfg))

		r.Group(func(r chi.Router) {
			r.Use(LoopbackGuard())

			r.Get("/jobs/{id}/video", videoHandler(cfg))
			r.Head("/jobs/{id}/video", videoHandler(cfg))
			r.Get("/jobs/{id}/subtitles", subtitlesHandler(cfg))
			r.Head("/jobs/{id}/subtitles", subtitlesHandler(cfg))
			r.Get("/jobs/{id}/timeline.edl", timelineHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		list, _ := cfg.Service.List(ctx, 50)

		state := "idle"
		lastError := ""
		queued := 0
		active := make([]JobResponse, 0)

		for _, j := range list {
			switch {
			case j.State.Running():
				active = append(active, JobToResponse(j))
			case j.State == pipeline.StateCreated:
				queued++
			case j.State == pipeline.StateFailed && lastError == "":
				lastError = j.Error
			}
		}

		resp := StatusResponse{
			LastError:   lastError,
			JobsRunning: len(active),
			JobsQueued:  queued,
			ActiveJobs:  active,
		}

		if len(active) > 0 {
			state = "rendering"
		}
		if cfg.Runner != nil {
			if cfg.Runner.IsPaused() {
				state = "paused"
			}
			if !cfg.Runner.IsRunning() {
				state = "stopped"
			}
			resp.JobsRunning = cfg.Runner.ActiveCount()
		}
		if lastError != "" && state == "idle" {
			state = "error"
		}
		resp.State = state

		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil {
				resp.Toolchain = ToolchainToResponse(caps)
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func pauseHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "runner not available", "UNAVAILABLE")
			return
		}
		cfg.Runner.Pause()
		w.WriteHeader(http.StatusNoContent)
	}
}

func resumeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "runner not available", "UNAVAILABLE")
			return
		}
		cfg.Runner.Resume()
		w.WriteHeader(http.StatusNoContent)
	}
}

func submitHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sub jobs.Submission
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionBytes))
		if err := dec.Decode(&sub); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		job, err := cfg.Service.Submit(r.Context(), sub)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		WriteJSON(w, http.StatusAccepted, SubmitResponse{JobID: job.ID})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = min(n, 500)
		}

		list, err := cfg.Service.List(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(list))}
		for i, j := range list {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Service.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func deleteJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func cancelJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if cfg.Runner != nil && cfg.Runner.Cancel(id) {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		if _, err := cfg.Service.Get(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		WriteError(w, http.StatusConflict, "job is not running", "CONFLICT")
	}
}

func listEventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := cfg.Service.Events(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := EventsResponse{Events: make([]EventResponse, len(events))}
		for i, e := range events {
			resp.Events[i] = EventToResponse(e)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func listUnitsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		units, err := cfg.Service.Units(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := UnitsResponse{Units: make([]UnitResponse, len(units))}
		for i, u := range units {
			resp.Units[i] = UnitToResponse(u)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// writeServiceError maps job service errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *jobs.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteError(w, http.StatusBadRequest, verr.Error(), "VALIDATION_ERROR")
	case errors.Is(err, jobs.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, jobs.ErrNotReady):
		WriteError(w, http.StatusConflict, err.Error(), "NOT_READY")
	case errors.Is(err, jobs.ErrBusy):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
	case errors.Is(err, translate.ErrNotConfigured):
		WriteError(w, http.StatusServiceUnavailable, err.Error(), "UNAVAILABLE")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
