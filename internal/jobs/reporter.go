package jobs

import (
	"context"
	"log/slog"

	"github.com/lecturecast/lecturecast/internal/pipeline"
)

// repoReporter records pipeline progress in the repository.
type repoReporter struct {
	repo   Repository
	logger *slog.Logger
}

func (r *repoReporter) Transition(ctx context.Context, st pipeline.Status) {
	if err := r.repo.UpdateJobStatus(ctx, st); err != nil {
		r.logger.Error("failed to record job status", "job_id", st.JobID, "state", st.State, "error", err)
	}
}

func (r *repoReporter) Event(ctx context.Context, jobID string, ev pipeline.Event) {
	if err := r.repo.AddEvent(ctx, jobID, ev); err != nil {
		r.logger.Error("failed to record job event", "job_id", jobID, "error", err)
	}
}

func (r *repoReporter) UnitAdded(ctx context.Context, jobID string, u pipeline.Unit) {
	if err := r.repo.AddUnit(ctx, jobID, u); err != nil {
		r.logger.Error("failed to record slide unit", "job_id", jobID, "unit", u.Key, "error", err)
	}
}
