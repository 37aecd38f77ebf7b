package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lecturecast/lecturecast/internal/jobs"
	"github.com/lecturecast/lecturecast/internal/pipeline"
	"github.com/lecturecast/lecturecast/internal/speech"
	"github.com/lecturecast/lecturecast/internal/toolchain"
	"github.com/lecturecast/lecturecast/internal/translate"
)

const testToken = "0123456789abcdef0123456789abcdef"

func TestStatusHandler_NilDoctor(t *testing.T) {
	cfg := testConfig(&fakeService{}, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)

	statusHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}

	body := decodeJSONBody(t, rr)
	if _, ok := body["toolchain"]; ok {
		t.Fatal("toolchain should be omitted when doctor is nil")
	}
	if body["state"] != "idle" {
		t.Errorf("state = %v, want idle", body["state"])
	}
}

func TestStatusHandler_EmptyCache(t *testing.T) {
	doctor := toolchain.NewCachedDoctor(&fakeProber{}, testLogger())
	cfg := testConfig(&fakeService{}, doctor)

	rr := httptest.NewRecorder()
	statusHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	body := decodeJSONBody(t, rr)
	if _, ok := body["toolchain"]; ok {
		t.Fatal("toolchain should be omitted when cache is empty")
	}
}

func TestStatusHandler_WithCachedCaps(t *testing.T) {
	doctor := toolchain.NewCachedDoctor(&fakeProber{caps: &toolchain.Capabilities{
		FFmpeg:       toolchain.ToolInfo{Available: true, Version: "6.1"},
		HasEncode:    true,
		HasSubtitles: true,
		ProbedAt:     time.Now(),
	}}, testLogger())
	if _, err := doctor.Refresh(context.Background()); err != nil {
		t.Fatalf("doctor.Refresh() error = %v", err)
	}
	cfg := testConfig(&fakeService{}, doctor)

	rr := httptest.NewRecorder()
	statusHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	body := decodeJSONBody(t, rr)
	tc, ok := body["toolchain"].(map[string]interface{})
	if !ok {
		t.Fatal("toolchain missing from response")
	}
	if got, ok := tc["has_encode"].(bool); !ok || !got {
		t.Errorf("toolchain.has_encode = %v, want true", tc["has_encode"])
	}
	if tc["ffmpeg_version"] != "6.1" {
		t.Errorf("toolchain.ffmpeg_version = %v", tc["ffmpeg_version"])
	}
	if _, ok := tc["last_probe_at"]; !ok {
		t.Error("last_probe_at missing")
	}
}

func TestStatusHandler_ZeroProbedAt(t *testing.T) {
	doctor := toolchain.NewCachedDoctor(&fakeProber{caps: &toolchain.Capabilities{HasEncode: true}}, testLogger())
	if _, err := doctor.Refresh(context.Background()); err != nil {
		t.Fatalf("doctor.Refresh() error = %v", err)
	}
	cfg := testConfig(&fakeService{}, doctor)

	rr := httptest.NewRecorder()
	statusHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	body := decodeJSONBody(t, rr)
	tc := body["toolchain"].(map[string]interface{})
	if _, ok := tc["last_probe_at"]; ok {
		t.Fatal("last_probe_at should be omitted when ProbedAt is zero")
	}
}

func TestStatusHandler_States(t *testing.T) {
	svc := &fakeService{jobs: []*jobs.Job{
		{ID: "aaaa1111", State: pipeline.StateSlidesGenerated, Progress: 55},
		{ID: "bbbb2222", State: pipeline.StateCreated},
		{ID: "cccc3333", State: pipeline.StateFailed, Error: "ffmpeg exited with status 1"},
	}}
	runner := &fakeRunner{running: true}
	cfg := testConfig(svc, nil)
	cfg.Runner = runner

	rr := httptest.NewRecorder()
	statusHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	body := decodeJSONBody(t, rr)

	if body["state"] != "rendering" {
		t.Errorf("state = %v, want rendering", body["state"])
	}
	if body["jobs_queued"] != float64(1) {
		t.Errorf("jobs_queued = %v, want 1", body["jobs_queued"])
	}
	if body["last_error"] != "ffmpeg exited with status 1" {
		t.Errorf("last_error = %v", body["last_error"])
	}
	active := body["active_jobs"].([]interface{})
	if len(active) != 1 {
		t.Fatalf("active_jobs = %d, want 1", len(active))
	}

	runner.paused = true
	rr = httptest.NewRecorder()
	statusHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	if got := decodeJSONBody(t, rr)["state"]; got != "paused" {
		t.Errorf("state = %v, want paused", got)
	}
}

func TestSubmitHandler(t *testing.T) {
	svc := &fakeService{}
	cfg := testConfig(svc, nil)

	body := `{
		"project": {"title": "Intro to Go", "author": "Ada"},
		"slides": [{"id": 1, "title": "Goroutines", "duration": "1 minute", "content": ["cheap", "concurrent"]}],
		"narration": {"slide_1": {"voice_text": "Goroutines are cheap."}},
		"theme": "midnight"
	}`
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	submitHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body=%s", rr.Code, rr.Body.String())
	}
	if got := decodeJSONBody(t, rr)["job_id"]; got != "a1b2c3d4" {
		t.Errorf("job_id = %v", got)
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.submitted == nil || svc.submitted.Project.Title != "Intro to Go" || len(svc.submitted.Slides) != 1 {
		t.Fatalf("submission not passed through: %+v", svc.submitted)
	}
	if svc.submitted.Narration["slide_1"].VoiceText != "Goroutines are cheap." {
		t.Errorf("narration = %+v", svc.submitted.Narration)
	}
}

func TestSubmitHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		submit   error
		wantCode int
		wantErr  string
	}{
		{"malformed json", `{"slides": [`, nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"validation", `{"slides": []}`, &jobs.ValidationError{Field: "slides", Message: "deck has no slides"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"storage", `{"slides": []}`, errors.New("disk full"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(&fakeService{submitErr: tt.submit}, nil)
			rr := httptest.NewRecorder()
			submitHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(tt.body)))

			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if got := decodeJSONBody(t, rr)["code"]; got != tt.wantErr {
				t.Errorf("code = %v, want %s", got, tt.wantErr)
			}
		})
	}
}

func TestJobRoutes_Integration(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := &fakeService{
		jobs: []*jobs.Job{{
			ID: "a1b2c3d4", Title: "Intro to Go", State: pipeline.StateComplete, Progress: 100,
			FallbackCount: 1, Duration: 61.75, VideoPath: "/tmp/v.mp4", SubtitlePath: "/tmp/s.srt",
			CreatedAt: created, UpdatedAt: created,
		}},
		events: []*jobs.Event{{ID: 1, JobID: "a1b2c3d4", Event: pipeline.Event{
			Time: created, Level: pipeline.LevelWarn, Stage: "slides", Unit: "1", Message: "silent fallback",
		}}},
		units: []*jobs.StoredUnit{
			{JobID: "a1b2c3d4", Unit: pipeline.Unit{Seq: 0, Key: "intro", Duration: 1.75, Outcome: speech.OutcomeSynthesized, Narration: "Welcome"}},
			{JobID: "a1b2c3d4", Unit: pipeline.Unit{Seq: 1, Key: "1", SlideID: 1, TargetSeconds: 60, Duration: 2, Outcome: speech.OutcomeFallback}},
		},
	}
	server := httptest.NewServer(NewRouter(testConfig(svc, nil)))
	defer server.Close()

	resp := doRequest(t, http.MethodGet, server.URL+"/jobs/a1b2c3d4", testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET job status = %d", resp.StatusCode)
	}
	job := decodeResponse(t, resp)
	if job["state"] != "complete" || job["degraded"] != true || job["fallback_count"] != float64(1) {
		t.Errorf("job = %v", job)
	}
	if job["has_video"] != true {
		t.Errorf("has_video = %v", job["has_video"])
	}
	if _, leaked := job["video_path"]; leaked {
		t.Error("local paths must not be exposed")
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/jobs/zzzz9999", testToken)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, http.MethodGet, server.URL+"/jobs", testToken)
	list := decodeResponse(t, resp)
	if got := len(list["jobs"].([]interface{})); got != 1 {
		t.Errorf("jobs = %d, want 1", got)
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/jobs/a1b2c3d4/events", testToken)
	events := decodeResponse(t, resp)["events"].([]interface{})
	if len(events) != 1 || events[0].(map[string]interface{})["level"] != "warn" {
		t.Errorf("events = %v", events)
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/jobs/a1b2c3d4/units", testToken)
	units := decodeResponse(t, resp)["units"].([]interface{})
	if len(units) != 2 {
		t.Fatalf("units = %d, want 2", len(units))
	}
	second := units[1].(map[string]interface{})
	if second["outcome"] != "fallback" || second["target_seconds"] != float64(60) {
		t.Errorf("unit = %v", second)
	}
	if _, leaked := second["audio_path"]; leaked {
		t.Error("unit audio path must not be exposed")
	}
}

func TestJobRoutes_RequireAuth(t *testing.T) {
	server := httptest.NewServer(NewRouter(testConfig(&fakeService{}, nil)))
	defer server.Close()

	for _, path := range []string{"/jobs", "/status", "/jobs/a1b2c3d4/video"} {
		resp := doRequest(t, http.MethodGet, server.URL+path, "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, resp.StatusCode)
		}
	}

	resp := doRequest(t, http.MethodGet, server.URL+"/health", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", resp.StatusCode)
	}
}

func TestDeleteJobHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"deleted", nil, http.StatusNoContent},
		{"running", jobs.ErrBusy, http.StatusConflict},
		{"unknown", jobs.ErrNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{deleteErr: tt.err}
			server := httptest.NewServer(NewRouter(testConfig(svc, nil)))
			defer server.Close()

			resp := doRequest(t, http.MethodDelete, server.URL+"/jobs/a1b2c3d4", testToken)
			resp.Body.Close()
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			svc.mu.Lock()
			deleted := svc.deleted
			svc.mu.Unlock()
			if deleted != "a1b2c3d4" {
				t.Errorf("deleted = %q", deleted)
			}
		})
	}
}

func TestCancelAndRunnerControls(t *testing.T) {
	svc := &fakeService{jobs: []*jobs.Job{{ID: "a1b2c3d4", State: pipeline.StateComplete}}}
	runner := &fakeRunner{running: true, inflight: map[string]bool{"bbbb2222": true}}
	cfg := testConfig(svc, nil)
	cfg.Runner = runner
	server := httptest.NewServer(NewRouter(cfg))
	defer server.Close()

	cases := []struct {
		path string
		want int
	}{
		{"/jobs/bbbb2222/cancel", http.StatusAccepted},
		{"/jobs/a1b2c3d4/cancel", http.StatusConflict},
		{"/jobs/zzzz9999/cancel", http.StatusNotFound},
		{"/runner/pause", http.StatusNoContent},
	}
	for _, c := range cases {
		resp := doRequest(t, http.MethodPost, server.URL+c.path, testToken)
		resp.Body.Close()
		if resp.StatusCode != c.want {
			t.Errorf("POST %s = %d, want %d", c.path, resp.StatusCode, c.want)
		}
	}

	if !runner.IsPaused() {
		t.Error("runner should be paused")
	}
	resp := doRequest(t, http.MethodPost, server.URL+"/runner/resume", testToken)
	resp.Body.Close()
	if runner.IsPaused() {
		t.Error("runner should be resumed")
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(svc jobs.JobService, doctor *toolchain.CachedDoctor) ServerConfig {
	return ServerConfig{
		Service:     svc,
		Playback:    &fakePlayback{},
		ConfigStore: fakeConfigStore{AuthTokenKey: testToken},
		Doctor:      doctor,
		Logger:      testLogger(),
		StartTime:   time.Now().Add(-10 * time.Second),
		Version:     "0.1.0-test",
	}
}

func doRequest(t *testing.T, method, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	return body
}

type fakeConfigStore map[string]string

func (f fakeConfigStore) GetConfig(ctx context.Context, key string) (string, error) {
	return f[key], nil
}

type fakeService struct {
	mu        sync.Mutex
	jobs      []*jobs.Job
	events    []*jobs.Event
	units     []*jobs.StoredUnit
	submitted *jobs.Submission
	submitErr error
	deleted   string
	deleteErr error

	translated string
	subtitles  map[string]string // lang -> path
	translErr  error
}

var _ jobs.JobService = (*fakeService)(nil)

func (f *fakeService) Submit(ctx context.Context, sub jobs.Submission) (*jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = &sub
	return &jobs.Job{ID: "a1b2c3d4", State: pipeline.StateCreated}, nil
}

func (f *fakeService) Get(ctx context.Context, id string) (*jobs.Job, error) {
	for _, j := range f.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, jobs.ErrNotFound
}

func (f *fakeService) List(ctx context.Context, limit int) ([]*jobs.Job, error) {
	return f.jobs, nil
}

func (f *fakeService) Events(ctx context.Context, id string) ([]*jobs.Event, error) {
	if _, err := f.Get(ctx, id); err != nil {
		return nil, err
	}
	return f.events, nil
}

func (f *fakeService) Units(ctx context.Context, id string) ([]*jobs.StoredUnit, error) {
	if _, err := f.Get(ctx, id); err != nil {
		return nil, err
	}
	return f.units, nil
}

func (f *fakeService) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = id
	return f.deleteErr
}

func (f *fakeService) VideoFile(ctx context.Context, id string) (string, *jobs.Job, error) {
	job, err := f.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if job.VideoPath == "" {
		return "", job, jobs.ErrNotReady
	}
	return job.VideoPath, job, nil
}

func (f *fakeService) SubtitleFile(ctx context.Context, id, lang string) (string, *jobs.Job, error) {
	job, err := f.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if lang == "" {
		if job.SubtitlePath == "" {
			return "", job, jobs.ErrNotReady
		}
		return job.SubtitlePath, job, nil
	}
	path, ok := f.subtitles[lang]
	if !ok {
		return "", job, jobs.ErrNotFound
	}
	return path, job, nil
}

func (f *fakeService) TranslateSubtitles(ctx context.Context, id, lang string) (string, error) {
	if f.translErr != nil {
		return "", f.translErr
	}
	if !translate.Supported(lang) {
		return "", &jobs.ValidationError{Field: "lang", Message: "unsupported language"}
	}
	if _, err := f.Get(ctx, id); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.translated = lang
	f.mu.Unlock()
	return "/tmp/" + id + "_subtitles_" + lang + ".srt", nil
}

type fakeRunner struct {
	mu       sync.Mutex
	running  bool
	paused   bool
	inflight map[string]bool
}

func (f *fakeRunner) IsRunning() bool  { return f.running }
func (f *fakeRunner) ActiveCount() int { return len(f.inflight) }

func (f *fakeRunner) IsPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeRunner) Pause() {
	f.mu.Lock()
	f.paused = true
	f.mu.Unlock()
}

func (f *fakeRunner) Resume() {
	f.mu.Lock()
	f.paused = false
	f.mu.Unlock()
}

func (f *fakeRunner) Cancel(id string) bool {
	return f.inflight[id]
}

type fakeProber struct {
	caps *toolchain.Capabilities
}

func (f *fakeProber) RunDoctor(ctx context.Context) (*toolchain.Capabilities, error) {
	if f.caps == nil {
		return &toolchain.Capabilities{}, nil
	}
	return f.caps, nil
}

type fakePlayback struct {
	mu   sync.Mutex
	path string
	name string
}

func (f *fakePlayback) ServeFile(w http.ResponseWriter, r *http.Request, path, downloadName string) error {
	f.mu.Lock()
	f.path, f.name = path, downloadName
	f.mu.Unlock()
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		io.WriteString(w, "payload")
	}
	return nil
}

func (f *fakePlayback) served() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path, f.name
}
