package jobs

import (
	"context"
	"database/sql"
	"time"

	"github.com/lecturecast/lecturecast/internal/pipeline"
	"github.com/lecturecast/lecturecast/internal/speech"
)

type Repository interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListQueuedJobs(ctx context.Context, limit int) ([]*Job, error)
	Submission(ctx context.Context, id string) ([]byte, error)
	UpdateJobStatus(ctx context.Context, st pipeline.Status) error
	SetJobOutputs(ctx context.Context, id, videoPath, subtitlePath string, duration float64) error
	DeleteJob(ctx context.Context, id string) error

	AddEvent(ctx context.Context, jobID string, ev pipeline.Event) error
	ListEvents(ctx context.Context, jobID string) ([]*Event, error)

	AddUnit(ctx context.Context, jobID string, u pipeline.Unit) error
	ListUnits(ctx context.Context, jobID string) ([]*StoredUnit, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const jobColumns = `id, title, state, progress, theme, voice, slide_count, error, fallback_count,
	video_path, subtitle_path, duration, created_at, updated_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, title, state, progress, theme, voice, slide_count, submission, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Title, string(j.State), j.Progress, j.Theme, j.Voice, j.SlideCount, string(j.submission),
		j.CreatedAt.UTC().Format(time.RFC3339), j.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var state, createdAt, updatedAt string
	var errMsg, videoPath, subtitlePath sql.NullString

	err := row.Scan(&j.ID, &j.Title, &state, &j.Progress, &j.Theme, &j.Voice, &j.SlideCount, &errMsg,
		&j.FallbackCount, &videoPath, &subtitlePath, &j.Duration, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	j.State = pipeline.State(state)
	j.Error = errMsg.String
	j.VideoPath = videoPath.String
	j.SubtitlePath = subtitlePath.String
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

// ListQueuedJobs returns jobs not yet picked up, oldest first.
func (r *SQLiteRepository) ListQueuedJobs(ctx context.Context, limit int) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE state = ? ORDER BY created_at ASC, rowid ASC LIMIT ?
	`, string(pipeline.StateCreated), limit)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) Submission(ctx context.Context, id string) ([]byte, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, "SELECT submission FROM jobs WHERE id = ?", id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, st pipeline.Status) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, progress = ?, error = ?, fallback_count = ?, updated_at = ? WHERE id = ?
	`, string(st.State), st.Progress, nullString(st.Error), st.FallbackCount, now(), st.JobID)
	return err
}

func (r *SQLiteRepository) SetJobOutputs(ctx context.Context, id, videoPath, subtitlePath string, duration float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET video_path = ?, subtitle_path = ?, duration = ?, updated_at = ? WHERE id = ?
	`, nullString(videoPath), nullString(subtitlePath), duration, now(), id)
	return err
}

func (r *SQLiteRepository) DeleteJob(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) AddEvent(ctx context.Context, jobID string, ev pipeline.Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO job_events (job_id, level, stage, unit, message, created_at) VALUES (?, ?, ?, ?, ?, ?)
	`, jobID, ev.Level, ev.Stage, ev.Unit, ev.Message, ev.Time.UTC().Format(time.RFC3339Nano))
	return err
}

func (r *SQLiteRepository) ListEvents(ctx context.Context, jobID string) ([]*Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, level, stage, unit, message, created_at FROM job_events WHERE job_id = ? ORDER BY id ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var createdAt string
		if err := rows.Scan(&e.ID, &e.JobID, &e.Level, &e.Stage, &e.Unit, &e.Message, &createdAt); err != nil {
			return nil, err
		}
		e.Time, _ = time.Parse(time.RFC3339Nano, createdAt)
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (r *SQLiteRepository) AddUnit(ctx context.Context, jobID string, u pipeline.Unit) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO slide_units (job_id, seq, unit_key, slide_id, narration, target_seconds, audio_path, image_path,
			background, duration, outcome, rate_percent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, jobID, u.Seq, u.Key, u.SlideID, u.Narration, u.TargetSeconds, u.AudioPath, u.ImagePath,
		nullString(u.Background), u.Duration, string(u.Outcome), u.RatePercent)
	return err
}

func (r *SQLiteRepository) ListUnits(ctx context.Context, jobID string) ([]*StoredUnit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT job_id, seq, unit_key, slide_id, narration, target_seconds, audio_path, image_path,
			background, duration, outcome, rate_percent
		FROM slide_units WHERE job_id = ? ORDER BY seq ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []*StoredUnit
	for rows.Next() {
		var u StoredUnit
		var background sql.NullString
		var outcome string
		if err := rows.Scan(&u.JobID, &u.Seq, &u.Key, &u.SlideID, &u.Narration, &u.TargetSeconds, &u.AudioPath,
			&u.ImagePath, &background, &u.Duration, &outcome, &u.RatePercent); err != nil {
			return nil, err
		}
		u.Background = background.String
		u.Outcome = speech.Outcome(outcome)
		units = append(units, &u)
	}
	return units, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
