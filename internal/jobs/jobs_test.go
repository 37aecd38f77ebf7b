package jobs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lecturecast/lecturecast/internal/db"
	"github.com/lecturecast/lecturecast/internal/notify"
	"github.com/lecturecast/lecturecast/internal/pipeline"
	"github.com/lecturecast/lecturecast/internal/slides"
	"github.com/lecturecast/lecturecast/internal/speech"
	"github.com/lecturecast/lecturecast/internal/storage"
	"github.com/lecturecast/lecturecast/internal/subtitle"
	"github.com/lecturecast/lecturecast/internal/translate"
	"github.com/lecturecast/lecturecast/internal/video"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type themeSet map[string]bool

func (t themeSet) Has(name string) bool { return t[name] }

type upperTranslator struct{}

func (upperTranslator) Translate(ctx context.Context, lines []string, lang string) ([]string, error) {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.ToUpper(l) + " [" + lang + "]"
	}
	return out, nil
}

type testEnv struct {
	repo  *SQLiteRepository
	store *storage.Store
	svc   *Service
	woken int
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	tmpDir := t.TempDir()

	database, err := db.New(filepath.Join(tmpDir, "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store, err := storage.NewStore(filepath.Join(tmpDir, "jobs"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	env := &testEnv{repo: NewRepository(database.Conn()), store: store}
	env.svc = NewService(ServiceConfig{
		Repo:         env.repo,
		Store:        store,
		Themes:       themeSet{"midnight": true, "light": true},
		Translator:   upperTranslator{},
		DefaultTheme: "midnight",
		DefaultVoice: "en-US-ChristopherNeural",
		Logger:       testLogger(),
	})
	env.svc.OnSubmit(func() { env.woken++ })
	return env
}

func validSubmission() Submission {
	return Submission{
		Project: slides.Project{Title: "Intro to Go", Author: "Ada"},
		Slides: []slides.Slide{
			{ID: 1, Title: "Goroutines", Duration: "1 min"},
			{ID: 2, Title: "Channels", Duration: "30 sec"},
		},
		Narration: slides.NarrationFile{"slide_1": {VoiceText: "Channels connect goroutines."}},
	}
}

func TestService_Submit(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	job, err := env.svc.Submit(ctx, validSubmission())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := storage.ValidateJobID(job.ID); err != nil {
		t.Errorf("job id %q invalid: %v", job.ID, err)
	}
	if job.State != pipeline.StateCreated {
		t.Errorf("state = %s, want created", job.State)
	}
	if job.Theme != "midnight" || job.Voice != "en-US-ChristopherNeural" {
		t.Errorf("defaults not applied: theme=%q voice=%q", job.Theme, job.Voice)
	}
	if env.woken != 1 {
		t.Errorf("wake called %d times, want 1", env.woken)
	}

	stored, err := env.svc.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.SlideCount != 2 || stored.Title != "Intro to Go" {
		t.Errorf("stored job = %+v", stored)
	}

	ws, _ := env.store.Open(job.ID)
	if _, err := os.Stat(ws.SubmissionPath()); err != nil {
		t.Errorf("submission copy missing: %v", err)
	}

	events, err := env.svc.Events(ctx, job.ID)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 1 || events[0].Stage != "submit" {
		t.Errorf("events = %+v", events)
	}
}

func TestService_Submit_Validation(t *testing.T) {
	env := setupTest(t)

	tests := []struct {
		name  string
		edit  func(*Submission)
		field string
	}{
		{"no slides", func(s *Submission) { s.Slides = nil }, "slides"},
		{"blank title", func(s *Submission) { s.Slides[0].Title = " " }, "slides"},
		{"duplicate id", func(s *Submission) { s.Slides[1].ID = 1 }, "slides"},
		{"bad narration key", func(s *Submission) { s.Narration = slides.NarrationFile{"intro": {}} }, "narration"},
		{"unknown theme", func(s *Submission) { s.Theme = "neon" }, "theme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := validSubmission()
			tt.edit(&sub)
			_, err := env.svc.Submit(context.Background(), sub)

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("field = %s, want %s", vErr.Field, tt.field)
			}
		})
	}

	jobs, _ := env.svc.List(context.Background(), 10)
	if len(jobs) != 0 {
		t.Errorf("rejected submissions created %d jobs", len(jobs))
	}
}

func TestService_Load(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	job, err := env.svc.Submit(ctx, validSubmission())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	pj, err := env.svc.Load(ctx, job.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if pj.ID != job.ID || len(pj.Deck.Slides) != 2 {
		t.Errorf("loaded job = %+v", pj)
	}
	if pj.Narration[1] != "Channels connect goroutines." {
		t.Errorf("narration = %v", pj.Narration)
	}
	if pj.Deck.Slides[0].Duration.Seconds() != 60 {
		t.Errorf("duration = %d, want 60", pj.Deck.Slides[0].Duration.Seconds())
	}
	if pj.Theme != "midnight" {
		t.Errorf("theme = %s, want midnight", pj.Theme)
	}

	if _, err := env.svc.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrNotFound", err)
	}
}

func TestService_GetUnknown(t *testing.T) {
	env := setupTest(t)
	if _, err := env.svc.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := env.svc.Units(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Units() error = %v, want ErrNotFound", err)
	}
}

func TestRepository_StatusEventsUnits(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	job, _ := env.svc.Submit(ctx, validSubmission())

	err := env.repo.UpdateJobStatus(ctx, pipeline.Status{
		JobID: job.ID, State: pipeline.StateSlidesGenerated, Progress: 80, FallbackCount: 1,
	})
	if err != nil {
		t.Fatalf("UpdateJobStatus() error = %v", err)
	}
	for i, key := range []string{"intro", "1"} {
		err := env.repo.AddUnit(ctx, job.ID, pipeline.Unit{
			Seq: i + 1, Key: key, SlideID: i, AudioPath: "/a/" + key + ".mp3", ImagePath: "/i/" + key + ".png",
			Duration: 2.5 * float64(i+1), Outcome: speech.OutcomeSynthesized, RatePercent: -30,
		})
		if err != nil {
			t.Fatalf("AddUnit() error = %v", err)
		}
	}
	env.repo.AddEvent(ctx, job.ID, pipeline.Event{Level: pipeline.LevelWarn, Stage: "slides", Unit: "1", Message: "fallback"})

	got, _ := env.repo.GetJob(ctx, job.ID)
	if got.State != pipeline.StateSlidesGenerated || got.Progress != 80 || !got.Degraded() {
		t.Errorf("job = %+v", got)
	}

	units, err := env.repo.ListUnits(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListUnits() error = %v", err)
	}
	if len(units) != 2 || units[0].Key != "intro" || units[1].Duration != 5 || units[1].RatePercent != -30 {
		t.Errorf("units = %+v, %+v", units[0], units[1])
	}

	events, _ := env.repo.ListEvents(ctx, job.ID)
	if len(events) != 2 || events[1].Unit != "1" || events[1].Time.IsZero() {
		t.Errorf("events = %+v", events)
	}

	queued, _ := env.repo.ListQueuedJobs(ctx, 10)
	if len(queued) != 0 {
		t.Errorf("running job listed as queued")
	}
}

func TestRepository_Config(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	if v, err := env.repo.GetConfig(ctx, "auth_token"); err != nil || v != "" {
		t.Fatalf("GetConfig(unset) = %q, %v", v, err)
	}
	env.repo.SetConfig(ctx, "auth_token", "one")
	env.repo.SetConfig(ctx, "auth_token", "two")
	if v, _ := env.repo.GetConfig(ctx, "auth_token"); v != "two" {
		t.Errorf("GetConfig() = %q, want two", v)
	}
}

func completeJob(t *testing.T, env *testEnv, id string) string {
	t.Helper()
	ctx := context.Background()
	ws, _ := env.store.Open(id)
	srt := ws.SubtitlePath("")
	track := subtitle.Build([]subtitle.Entry{{Duration: 2, Text: "welcome"}, {Duration: 3, Text: "goroutines"}}, nil)
	if err := subtitle.WriteFile(srt, track); err != nil {
		t.Fatalf("write srt: %v", err)
	}
	os.WriteFile(ws.VideoPath(), []byte("mp4"), 0o644)
	env.repo.UpdateJobStatus(ctx, pipeline.Status{JobID: id, State: pipeline.StateComplete, Progress: 100})
	env.repo.SetJobOutputs(ctx, id, ws.VideoPath(), srt, 5)
	return srt
}

func TestService_TranslateSubtitles(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	job, _ := env.svc.Submit(ctx, validSubmission())

	if _, err := env.svc.TranslateSubtitles(ctx, job.ID, "fr"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("translate before completion error = %v, want ErrNotReady", err)
	}

	completeJob(t, env, job.ID)

	out, err := env.svc.TranslateSubtitles(ctx, job.ID, "fr")
	if err != nil {
		t.Fatalf("TranslateSubtitles() error = %v", err)
	}
	if !strings.HasSuffix(out, "_fr.srt") {
		t.Errorf("path = %s", out)
	}

	track, err := subtitle.ReadFile(out)
	if err != nil {
		t.Fatalf("read translated: %v", err)
	}
	if len(track.Cues) != 2 || track.Cues[1].Text != "GOROUTINES [fr]" {
		t.Errorf("cues = %+v", track.Cues)
	}
	if track.Cues[1].Start != 2*time.Second || track.Cues[1].End != 5*time.Second {
		t.Errorf("timings changed: %+v", track.Cues[1])
	}

	path, _, err := env.svc.SubtitleFile(ctx, job.ID, "fr")
	if err != nil || path != out {
		t.Errorf("SubtitleFile(fr) = %s, %v", path, err)
	}
	if _, _, err := env.svc.SubtitleFile(ctx, job.ID, "de"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SubtitleFile(de) error = %v, want ErrNotFound", err)
	}

	var vErr *ValidationError
	if _, err := env.svc.TranslateSubtitles(ctx, job.ID, "xx"); !errors.As(err, &vErr) {
		t.Errorf("unsupported language error = %v", err)
	}
}

func TestService_TranslateWithoutTranslator(t *testing.T) {
	env := setupTest(t)
	env.svc.cfg.Translator = nil
	job, _ := env.svc.Submit(context.Background(), validSubmission())
	completeJob(t, env, job.ID)

	if _, err := env.svc.TranslateSubtitles(context.Background(), job.ID, "es"); !errors.Is(err, translate.ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestService_VideoFileAndDelete(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	job, _ := env.svc.Submit(ctx, validSubmission())

	if _, _, err := env.svc.VideoFile(ctx, job.ID); !errors.Is(err, ErrNotReady) {
		t.Fatalf("VideoFile() before completion error = %v", err)
	}

	env.repo.UpdateJobStatus(ctx, pipeline.Status{JobID: job.ID, State: pipeline.StateSubtitlesBuilt})
	if err := env.svc.Delete(ctx, job.ID); !errors.Is(err, ErrBusy) {
		t.Fatalf("Delete(running) error = %v, want ErrBusy", err)
	}

	completeJob(t, env, job.ID)
	path, _, err := env.svc.VideoFile(ctx, job.ID)
	if err != nil || !strings.HasSuffix(path, "presentation_"+job.ID+".mp4") {
		t.Fatalf("VideoFile() = %s, %v", path, err)
	}

	if err := env.svc.Delete(ctx, job.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(path)); !os.IsNotExist(err) {
		t.Errorf("workspace still present: %v", err)
	}
	if _, err := env.svc.Get(ctx, job.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v", err)
	}
}

// fakePipeline walks a job through the states without media work.
type fakePipeline struct {
	mu      sync.Mutex
	ran     []string
	fail    bool
	release chan struct{} // when set, each run blocks until it is closed
	active  int
	peak    int
}

func (f *fakePipeline) Run(ctx context.Context, job pipeline.Job, rep pipeline.Reporter) (*pipeline.Result, error) {
	f.mu.Lock()
	f.ran = append(f.ran, job.ID)
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	rep.Transition(ctx, pipeline.Status{JobID: job.ID, State: pipeline.StateIntroGenerated, Progress: 10})
	rep.UnitAdded(ctx, job.ID, pipeline.Unit{Seq: 1, Key: "intro", AudioPath: "a", ImagePath: "i", Duration: 3, Outcome: speech.OutcomeFallback})

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}

	res := &pipeline.Result{JobID: job.ID, FallbackCount: 1}
	if f.fail || ctx.Err() != nil {
		res.State = pipeline.StateFailed
		rep.Transition(ctx, pipeline.Status{JobID: job.ID, State: pipeline.StateFailed, Error: "boom", FallbackCount: 1})
		return res, errors.New("boom")
	}
	res.State = pipeline.StateComplete
	res.SubtitlePath = "/w/subtitles_" + job.ID + ".srt"
	res.Video = &video.Result{Path: "/w/presentation_" + job.ID + ".mp4", Planned: 3, Measured: 3.02}
	rep.Transition(ctx, pipeline.Status{JobID: job.ID, State: pipeline.StateComplete, Progress: 100, FallbackCount: 1})
	return res, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []notify.Payload
}

func (n *recordingNotifier) Notify(ctx context.Context, p notify.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, p)
	return nil
}

func TestRunner_RunsQueuedJob(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	job, _ := env.svc.Submit(ctx, validSubmission())

	pipe := &fakePipeline{}
	notifier := &recordingNotifier{}
	runner := NewRunner(env.svc, env.repo, pipe, nil, 2, testLogger())
	runner.SetNotifier(notifier)

	runner.dispatch(ctx)
	runner.wg.Wait()

	got, _ := env.svc.Get(ctx, job.ID)
	if got.State != pipeline.StateComplete {
		t.Fatalf("state = %s, want complete", got.State)
	}
	if got.Duration != 3.02 || !strings.HasSuffix(got.VideoPath, ".mp4") {
		t.Errorf("outputs not recorded: %+v", got)
	}

	units, _ := env.svc.Units(ctx, job.ID)
	if len(units) != 1 {
		t.Errorf("units = %d, want 1", len(units))
	}

	if len(notifier.payloads) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.payloads))
	}
	p := notifier.payloads[0]
	if p.State != "complete" || !p.Degraded || p.FallbackCount != 1 {
		t.Errorf("payload = %+v", p)
	}
	if runner.ActiveCount() != 0 {
		t.Errorf("active = %d after completion", runner.ActiveCount())
	}
}

func TestRunner_FailedJob(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	job, _ := env.svc.Submit(ctx, validSubmission())

	notifier := &recordingNotifier{}
	runner := NewRunner(env.svc, env.repo, &fakePipeline{fail: true}, nil, 1, testLogger())
	runner.SetNotifier(notifier)
	runner.dispatch(ctx)
	runner.wg.Wait()

	got, _ := env.svc.Get(ctx, job.ID)
	if got.State != pipeline.StateFailed || got.Error != "boom" {
		t.Errorf("job = %+v", got)
	}
	if got.VideoPath != "" {
		t.Errorf("failed job has video path %s", got.VideoPath)
	}
	if len(notifier.payloads) != 1 || notifier.payloads[0].State != "failed" {
		t.Errorf("payloads = %+v", notifier.payloads)
	}
}

func TestRunner_RespectsMaxJobs(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := env.svc.Submit(ctx, validSubmission()); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	pipe := &fakePipeline{release: make(chan struct{})}
	runner := NewRunner(env.svc, env.repo, pipe, nil, 2, testLogger())

	runner.dispatch(ctx)
	runner.dispatch(ctx)
	if n := runner.ActiveCount(); n != 2 {
		t.Fatalf("active = %d, want 2", n)
	}

	close(pipe.release)
	runner.wg.Wait()
	runner.dispatch(ctx)
	runner.wg.Wait()

	if pipe.peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", pipe.peak)
	}
	if len(pipe.ran) != 3 {
		t.Errorf("ran %d jobs, want 3", len(pipe.ran))
	}
	jobs, _ := env.svc.List(ctx, 10)
	for _, j := range jobs {
		if j.State != pipeline.StateComplete {
			t.Errorf("job %s state = %s", j.ID, j.State)
		}
	}
}

func TestRunner_PausedBeforeStart(t *testing.T) {
	env := setupTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job, _ := env.svc.Submit(ctx, validSubmission())

	pipe := &fakePipeline{}
	runner := NewRunner(env.svc, env.repo, pipe, nil, 1, testLogger())
	runner.Pause()

	done := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(done)
	}()

	waitFor(t, runner.IsRunning)
	time.Sleep(100 * time.Millisecond)

	pipe.mu.Lock()
	ran := len(pipe.ran)
	pipe.mu.Unlock()
	if ran != 0 {
		t.Fatalf("paused runner ran %d jobs", ran)
	}
	if got, _ := env.svc.Get(ctx, job.ID); got.State != pipeline.StateCreated {
		t.Fatalf("state = %s while paused, want created", got.State)
	}

	runner.Resume()
	waitFor(t, func() bool {
		got, _ := env.svc.Get(ctx, job.ID)
		return got.State == pipeline.StateComplete
	})

	cancel()
	<-done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunner_Cancel(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	job, _ := env.svc.Submit(ctx, validSubmission())

	pipe := &fakePipeline{release: make(chan struct{})}
	runner := NewRunner(env.svc, env.repo, pipe, nil, 1, testLogger())
	runner.dispatch(ctx)

	if !runner.Cancel(job.ID) {
		t.Fatal("Cancel() = false for running job")
	}
	runner.wg.Wait()

	got, _ := env.svc.Get(ctx, job.ID)
	if got.State != pipeline.StateFailed {
		t.Errorf("state = %s, want failed", got.State)
	}
	if runner.Cancel(job.ID) {
		t.Error("Cancel() = true for finished job")
	}
}

func TestRunner_StartStop(t *testing.T) {
	env := setupTest(t)
	runner := NewRunner(env.svc, env.repo, &fakePipeline{}, nil, 1, testLogger())
	env.svc.OnSubmit(runner.Wake)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(done)
	}()

	job, _ := env.svc.Submit(context.Background(), validSubmission())

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, _ := env.svc.Get(context.Background(), job.ID)
		if got.State == pipeline.StateComplete {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job not completed, state = %s", got.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
	if runner.IsRunning() {
		t.Error("runner still reports running")
	}
}
