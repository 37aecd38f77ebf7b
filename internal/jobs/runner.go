package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lecturecast/lecturecast/internal/notify"
	"github.com/lecturecast/lecturecast/internal/pipeline"
	"github.com/lecturecast/lecturecast/internal/toolchain"
)

// Runner picks queued jobs and runs up to maxJobs of them concurrently, one
// goroutine per job.
type Runner struct {
	service      *Service
	repo         Repository
	pipe         pipeline.Pipeline
	doctor       *toolchain.CachedDoctor
	notifier     notify.Notifier
	logger       *slog.Logger
	pollInterval time.Duration
	maxJobs      int

	wake    chan struct{}
	running atomic.Bool
	paused  atomic.Bool

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	wg       sync.WaitGroup
}

// NewRunner creates a runner. doctor may be nil to skip the capability check.
func NewRunner(service *Service, repo Repository, pipe pipeline.Pipeline, doctor *toolchain.CachedDoctor, maxJobs int, logger *slog.Logger) *Runner {
	if maxJobs < 1 {
		maxJobs = 1
	}
	return &Runner{
		service:      service,
		repo:         repo,
		pipe:         pipe,
		doctor:       doctor,
		logger:       logger,
		pollInterval: 5 * time.Second,
		maxJobs:      maxJobs,
		wake:         make(chan struct{}, 1),
		inflight:     make(map[string]context.CancelFunc),
	}
}

// SetNotifier installs the terminal-state notifier.
func (r *Runner) SetNotifier(n notify.Notifier) {
	r.notifier = n
}

// Start blocks until ctx is cancelled, then waits for running jobs to stop.
func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("job runner started", "max_jobs", r.maxJobs)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			r.wg.Wait()
			r.running.Store(false)
			return
		case <-ticker.C:
		case <-r.wake:
		}
		r.dispatch(ctx)
	}
}

// Wake asks the runner to look for queued jobs now.
func (r *Runner) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
	r.Wake()
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// ActiveCount returns the number of jobs currently executing.
func (r *Runner) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// Cancel abandons a running job. It reports whether the job was running.
func (r *Runner) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.inflight[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// dispatch starts queued jobs up to the free slots. It does nothing while
// the runner is paused.
func (r *Runner) dispatch(ctx context.Context) {
	if r.paused.Load() {
		return
	}
	r.mu.Lock()
	free := r.maxJobs - len(r.inflight)
	busy := len(r.inflight)
	r.mu.Unlock()
	if free <= 0 {
		return
	}

	queued, err := r.repo.ListQueuedJobs(ctx, free+busy)
	if err != nil {
		r.logger.Error("failed to list queued jobs", "error", err)
		return
	}

	for _, job := range queued {
		if free == 0 {
			return
		}
		jobCtx, cancel := context.WithCancel(ctx)

		r.mu.Lock()
		if _, ok := r.inflight[job.ID]; ok {
			r.mu.Unlock()
			cancel()
			continue
		}
		r.inflight[job.ID] = cancel
		r.mu.Unlock()
		free--

		r.wg.Add(1)
		go func(job *Job) {
			defer r.wg.Done()
			defer r.finish(job.ID)
			r.runJob(jobCtx, job)
		}(job)
	}
}

func (r *Runner) finish(id string) {
	r.mu.Lock()
	if cancel, ok := r.inflight[id]; ok {
		cancel()
		delete(r.inflight, id)
	}
	r.mu.Unlock()
	r.Wake()
}

func (r *Runner) runJob(ctx context.Context, job *Job) {
	log := r.logger.With("job_id", job.ID)

	// the queue listing may predate another goroutine finishing this job
	if cur, err := r.repo.GetJob(context.WithoutCancel(ctx), job.ID); err != nil || cur == nil || cur.State != pipeline.StateCreated {
		return
	}
	log.Info("processing job", "slides", job.SlideCount)
	rep := &repoReporter{repo: r.repo, logger: r.logger}

	if err := r.preflight(ctx); err != nil {
		r.failJob(ctx, job, rep, err)
		return
	}

	pj, err := r.service.Load(ctx, job.ID)
	if err != nil {
		r.failJob(ctx, job, rep, fmt.Errorf("load submission: %w", err))
		return
	}

	res, err := r.pipe.Run(ctx, pj, rep)
	if err != nil {
		log.Error("job failed", "error", err)
	} else {
		var videoPath string
		var duration float64
		if res.Video != nil {
			videoPath = res.Video.Path
			duration = res.Video.Planned
			if res.Video.Measured > 0 {
				duration = res.Video.Measured
			}
		}
		if err := r.repo.SetJobOutputs(context.WithoutCancel(ctx), job.ID, videoPath, res.SubtitlePath, duration); err != nil {
			log.Error("failed to record job outputs", "error", err)
		}
	}
	r.notify(ctx, job.ID)
}

// preflight refuses to start when ffmpeg cannot encode.
func (r *Runner) preflight(ctx context.Context) error {
	if r.doctor == nil {
		return nil
	}
	caps, err := r.doctor.Get(ctx)
	if err != nil {
		return fmt.Errorf("doctor probe failed: %w", err)
	}
	if !caps.HasEncode {
		return fmt.Errorf("ffmpeg cannot encode libx264/aac")
	}
	return nil
}

func (r *Runner) failJob(ctx context.Context, job *Job, rep *repoReporter, err error) {
	ctx = context.WithoutCancel(ctx)
	r.logger.Error("job failed before pipeline start", "job_id", job.ID, "error", err)
	rep.Event(ctx, job.ID, pipeline.Event{Time: time.Now().UTC(), Level: pipeline.LevelError, Stage: "preflight", Message: err.Error()})
	rep.Transition(ctx, pipeline.Status{JobID: job.ID, State: pipeline.StateFailed, Error: err.Error()})
	r.notify(ctx, job.ID)
}

func (r *Runner) notify(ctx context.Context, id string) {
	if r.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	job, err := r.repo.GetJob(ctx, id)
	if err != nil || job == nil {
		r.logger.Warn("cannot load job for notification", "job_id", id, "error", err)
		return
	}
	p := notify.Payload{
		JobID:         job.ID,
		Title:         job.Title,
		State:         string(job.State),
		Degraded:      job.Degraded(),
		FallbackCount: job.FallbackCount,
		Duration:      job.Duration,
		Error:         job.Error,
		FinishedAt:    job.UpdatedAt,
	}
	if err := r.notifier.Notify(ctx, p); err != nil {
		r.logger.Warn("job notification failed", "job_id", id, "error", err)
	}
}
