package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/duetime"
	"github.com/example/studybot/internal/ident"
	"github.com/example/studybot/pkg/models"
)

// QueueStore is the part of the deferred job store used to create and cancel jobs
type QueueStore interface {
	Create(ctx context.Context, job models.ScheduledJob) (bool, error)
	ListPendingForOwner(ctx context.Context, ownerID int64) ([]models.ScheduledJob, error)
	CancelEarliestPendingForOwner(ctx context.Context, ownerID int64) (*models.ScheduledJob, error)
	CancelAllForOwner(ctx context.Context, ownerID int64) (int, error)
}

// Queue creates and cancels deferred jobs on behalf of owners
type Queue struct {
	store QueueStore
	ids   ident.Generator
	clock clock.Clock
	log   *zap.SugaredLogger
}

func NewQueue(store QueueStore, ids ident.Generator, clk clock.Clock, log *zap.SugaredLogger) *Queue {
	return &Queue{store: store, ids: ids, clock: clk, log: log}
}

// Enqueue persists a pending job with a fresh id
func (q *Queue) Enqueue(ctx context.Context, ownerID int64, jobType string, dueAt time.Time, payload any) (models.ScheduledJob, error) {
	return q.EnqueueWithID(ctx, q.ids.New(), ownerID, jobType, dueAt, payload)
}

// EnqueueWithID persists a pending job under a caller-chosen id. Reusing an id
// fails with apperrors.ErrDuplicateJob and leaves the existing job untouched.
func (q *Queue) EnqueueWithID(ctx context.Context, jobID string, ownerID int64, jobType string, dueAt time.Time, payload any) (models.ScheduledJob, error) {
	job := models.ScheduledJob{
		ID:      jobID,
		OwnerID: ownerID,
		Type:    jobType,
		DueAt:   dueAt.UTC(),
		Status:  models.JobPending,
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return models.ScheduledJob{}, fmt.Errorf("marshal job payload: %w", err)
		}
		job.Payload = b
	}

	created, err := q.store.Create(ctx, job)
	if err != nil {
		return models.ScheduledJob{}, err
	}
	if !created {
		return models.ScheduledJob{}, fmt.Errorf("%w: %s", apperrors.ErrDuplicateJob, jobID)
	}
	q.log.Infow("job enqueued", "job_id", jobID, "job_type", jobType, "owner_id", ownerID, "due_at", job.DueAt)
	return job, nil
}

// ScheduleReminder parses "<when> <text...>" in the owner's timezone and
// enqueues a reminder job carrying text.
func (q *Queue) ScheduleReminder(ctx context.Context, ownerID int64, tzName string, args []string) (models.ScheduledJob, error) {
	res, err := duetime.Parse(args, tzName, q.clock.Now())
	if err != nil {
		return models.ScheduledJob{}, err
	}
	text := strings.TrimSpace(strings.Join(args[res.Consumed:], " "))
	if text == "" {
		return models.ScheduledJob{}, apperrors.ErrEmptyReminderText
	}
	return q.Enqueue(ctx, ownerID, models.JobTypeReminder, res.At, models.ReminderPayload{Text: text})
}

// Pending lists the owner's pending jobs, earliest first
func (q *Queue) Pending(ctx context.Context, ownerID int64) ([]models.ScheduledJob, error) {
	return q.store.ListPendingForOwner(ctx, ownerID)
}

// CancelNext cancels the owner's earliest pending job. It fails with
// apperrors.ErrJobNotFound when nothing is pending.
func (q *Queue) CancelNext(ctx context.Context, ownerID int64) (models.ScheduledJob, error) {
	job, err := q.store.CancelEarliestPendingForOwner(ctx, ownerID)
	if err != nil {
		return models.ScheduledJob{}, err
	}
	if job == nil {
		return models.ScheduledJob{}, apperrors.ErrJobNotFound
	}
	q.log.Infow("job cancelled", "job_id", job.ID, "owner_id", ownerID)
	return *job, nil
}

// CancelAll cancels every pending job of the owner
func (q *Queue) CancelAll(ctx context.Context, ownerID int64) (int, error) {
	n, err := q.store.CancelAllForOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	q.log.Infow("jobs cancelled", "owner_id", ownerID, "count", n)
	return n, nil
}
