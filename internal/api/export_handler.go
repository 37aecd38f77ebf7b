package api

import (
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/lecturecast/lecturecast/internal/export"
	"github.com/lecturecast/lecturecast/internal/jobs"
	"github.com/lecturecast/lecturecast/internal/pipeline"
	"github.com/lecturecast/lecturecast/internal/storage"
)

func videoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		path, job, err := cfg.Service.VideoFile(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		if err := cfg.Playback.ServeFile(w, r, path, downloadName(job.Title, id, "")); err != nil {
			cfg.Logger.Error("video download error", "error", err, "job_id", id)
		}
	}
}

func subtitlesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		lang := r.URL.Query().Get("lang")

		path, job, err := cfg.Service.SubtitleFile(r.Context(), id, lang)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		if err := cfg.Playback.ServeFile(w, r, path, downloadName(job.Title, id, lang)); err != nil {
			cfg.Logger.Error("subtitle download error", "error", err, "job_id", id, "lang", lang)
		}
	}
}

func translateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		lang := chi.URLParam(r, "lang")

		if _, err := cfg.Service.TranslateSubtitles(r.Context(), id, lang); err != nil {
			cfg.Logger.Warn("subtitle translation failed", "error", err, "job_id", id, "lang", lang)
			writeServiceError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, TranslateResponse{
			Lang: lang,
			URL:  "/jobs/" + url.PathEscape(id) + "/subtitles?lang=" + url.QueryEscape(lang),
		})
	}
}

// timelineHandler returns the slide sequence of a finished job as an EDL.
func timelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := cfg.Service.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if job.State != pipeline.StateComplete {
			writeServiceError(w, jobs.ErrNotReady)
			return
		}

		stored, err := cfg.Service.Units(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		units := make([]pipeline.Unit, len(stored))
		for i, u := range stored {
			units[i] = u.Unit
		}

		name := downloadName(job.Title, id, "")
		edl := export.GenerateEDL(export.ClipsFromUnits(units), name, export.DefaultFrameRate)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment",
			map[string]string{"filename": storage.SanitizeName(name, 120) + ".edl"}))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(edl))
	}
}

func downloadName(title, id, lang string) string {
	name := title
	if name == "" {
		name = "lecture_" + id
	}
	if lang != "" {
		name += "_" + lang
	}
	return name
}
