package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/pkg/models"
)

const jobColumns = `job_id, owner_id, job_type, due_at, status, payload, last_error, created_at, updated_at, completed_at`

type jobRow struct {
	ID          string         `db:"job_id"`
	OwnerID     int64          `db:"owner_id"`
	Type        string         `db:"job_type"`
	DueAt       int64          `db:"due_at"`
	Status      string         `db:"status"`
	Payload     sql.NullString `db:"payload"`
	LastError   sql.NullString `db:"last_error"`
	CreatedAt   int64          `db:"created_at"`
	UpdatedAt   int64          `db:"updated_at"`
	CompletedAt sql.NullInt64  `db:"completed_at"`
}

func (r jobRow) toModel() models.ScheduledJob {
	j := models.ScheduledJob{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Type:        r.Type,
		DueAt:       fromUnix(r.DueAt),
		Status:      models.JobStatus(r.Status),
		LastError:   r.LastError.String,
		CreatedAt:   fromUnix(r.CreatedAt),
		UpdatedAt:   fromUnix(r.UpdatedAt),
		CompletedAt: fromNullUnix(r.CompletedAt),
	}
	if r.Payload.Valid {
		j.Payload = json.RawMessage(r.Payload.String)
	}
	return j
}

func toJobs(rows []jobRow) []models.ScheduledJob {
	jobs := make([]models.ScheduledJob, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, row.toModel())
	}
	return jobs
}

// JobRepository is the durable deferred job store
type JobRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewJobRepository creates a new repository instance. now stamps updated_at
// and completed_at on transitions.
func NewJobRepository(db *sqlx.DB, now func() time.Time) *JobRepository {
	return &JobRepository{db: db, now: now}
}

// Create inserts a pending job. It is idempotent on job id: created is false
// when a job with that id already exists, and the stored job is left untouched.
// The due time is rounded up to a whole second.
func (r *JobRepository) Create(ctx context.Context, job models.ScheduledJob) (created bool, err error) {
	var payload sql.NullString
	if len(job.Payload) > 0 {
		payload = sql.NullString{String: string(job.Payload), Valid: true}
	}
	ts := unix(r.now())
	q := r.db.Rebind(`INSERT INTO scheduled_jobs (job_id, owner_id, job_type, due_at, status, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (job_id) DO NOTHING`)
	res, err := r.db.ExecContext(ctx, q, job.ID, job.OwnerID, job.Type, unixCeil(job.DueAt), string(models.JobPending), payload, ts, ts)
	if err != nil {
		return false, apperrors.Store("create job", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.Store("create job", err)
	}
	return n == 1, nil
}

// Get loads a job by id
func (r *JobRepository) Get(ctx context.Context, jobID string) (models.ScheduledJob, error) {
	var row jobRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+jobColumns+` FROM scheduled_jobs WHERE job_id = ?`), jobID)
	if err == sql.ErrNoRows {
		return models.ScheduledJob{}, apperrors.ErrJobNotFound
	}
	if err != nil {
		return models.ScheduledJob{}, apperrors.Store("get job", err)
	}
	return row.toModel(), nil
}

// ListDue returns pending jobs with due_at <= now, ordered by due_at then job_id
func (r *JobRepository) ListDue(ctx context.Context, now time.Time) ([]models.ScheduledJob, error) {
	q := r.db.Rebind(`SELECT ` + jobColumns + ` FROM scheduled_jobs
		WHERE status = ? AND due_at <= ? ORDER BY due_at ASC, job_id ASC`)
	var rows []jobRow
	if err := r.db.SelectContext(ctx, &rows, q, string(models.JobPending), unix(now)); err != nil {
		return nil, apperrors.Store("list due jobs", err)
	}
	return toJobs(rows), nil
}

// MarkDone moves a pending job to done. It reports false if the job was no longer pending.
func (r *JobRepository) MarkDone(ctx context.Context, jobID string) (bool, error) {
	return r.finish(ctx, "mark job done", jobID, models.JobDone, sql.NullString{})
}

// MarkCancelled moves a pending job to cancelled
func (r *JobRepository) MarkCancelled(ctx context.Context, jobID string) (bool, error) {
	return r.finish(ctx, "mark job cancelled", jobID, models.JobCancelled, sql.NullString{})
}

// MarkFailed moves a pending job to failed with a reason
func (r *JobRepository) MarkFailed(ctx context.Context, jobID, reason string) (bool, error) {
	return r.finish(ctx, "mark job failed", jobID, models.JobFailed, sql.NullString{String: reason, Valid: true})
}

// finish is the only path out of pending. The status check is part of the
// UPDATE, so a transition that lost a race affects no rows.
func (r *JobRepository) finish(ctx context.Context, op, jobID string, status models.JobStatus, reason sql.NullString) (bool, error) {
	ts := unix(r.now())
	q := r.db.Rebind(`UPDATE scheduled_jobs SET status = ?, last_error = COALESCE(?, last_error), updated_at = ?, completed_at = ?
		WHERE job_id = ? AND status = ?`)
	res, err := r.db.ExecContext(ctx, q, string(status), reason, ts, ts, jobID, string(models.JobPending))
	if err != nil {
		return false, apperrors.Store(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.Store(op, err)
	}
	return n == 1, nil
}

// ListPendingForOwner returns an owner's pending jobs, earliest due first
func (r *JobRepository) ListPendingForOwner(ctx context.Context, ownerID int64) ([]models.ScheduledJob, error) {
	q := r.db.Rebind(`SELECT ` + jobColumns + ` FROM scheduled_jobs
		WHERE owner_id = ? AND status = ? ORDER BY due_at ASC, job_id ASC`)
	var rows []jobRow
	if err := r.db.SelectContext(ctx, &rows, q, ownerID, string(models.JobPending)); err != nil {
		return nil, apperrors.Store("list pending jobs", err)
	}
	return toJobs(rows), nil
}

// CancelEarliestPendingForOwner cancels the pending job with the smallest
// due_at (ties by job_id). It returns nil when the owner has nothing pending.
func (r *JobRepository) CancelEarliestPendingForOwner(ctx context.Context, ownerID int64) (*models.ScheduledJob, error) {
	ts := unix(r.now())
	q := r.db.Rebind(`UPDATE scheduled_jobs SET status = ?, updated_at = ?, completed_at = ?
		WHERE status = ? AND job_id = (
			SELECT job_id FROM scheduled_jobs WHERE owner_id = ? AND status = ?
			ORDER BY due_at ASC, job_id ASC LIMIT 1
		)
		RETURNING ` + jobColumns)
	var row jobRow
	err := r.db.GetContext(ctx, &row, q, string(models.JobCancelled), ts, ts,
		string(models.JobPending), ownerID, string(models.JobPending))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Store("cancel earliest job", err)
	}
	j := row.toModel()
	return &j, nil
}

// CancelAllForOwner cancels every pending job of the owner and returns how many were cancelled
func (r *JobRepository) CancelAllForOwner(ctx context.Context, ownerID int64) (int, error) {
	ts := unix(r.now())
	q := r.db.Rebind(`UPDATE scheduled_jobs SET status = ?, updated_at = ?, completed_at = ? WHERE owner_id = ? AND status = ?`)
	res, err := r.db.ExecContext(ctx, q, string(models.JobCancelled), ts, ts, ownerID, string(models.JobPending))
	if err != nil {
		return 0, apperrors.Store("cancel jobs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Store("cancel jobs", err)
	}
	return int(n), nil
}
