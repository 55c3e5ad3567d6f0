package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/database"
	"github.com/example/studybot/pkg/models"
)

type seqIDs struct{ n int }

func (s *seqIDs) New() string {
	s.n++
	return fmt.Sprintf("job-%d", s.n)
}

func newQueue(t *testing.T, now time.Time) (*Queue, *database.JobRepository) {
	t.Helper()
	db, err := database.Connect(context.Background(), database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	clk := clock.NewManual(now)
	repo := database.NewJobRepository(db, clk.Now)
	return NewQueue(repo, &seqIDs{}, clk, zaptest.NewLogger(t).Sugar()), repo
}

func TestEnqueueDuplicateID(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	q, _ := newQueue(t, now)

	if _, err := q.EnqueueWithID(ctx, "fixed", 1, models.JobTypePing, now, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	_, err := q.EnqueueWithID(ctx, "fixed", 1, models.JobTypePing, now.Add(time.Hour), nil)
	if !errors.Is(err, apperrors.ErrDuplicateJob) || !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected duplicate conflict, got %v", err)
	}
	pending, _ := q.Pending(ctx, 1)
	if len(pending) != 1 || !pending[0].DueAt.Equal(now) {
		t.Fatalf("unexpected pending jobs %+v", pending)
	}
}

func TestScheduleReminder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	q, repo := newQueue(t, now)

	job, err := q.ScheduleReminder(ctx, 1, "UTC", []string{"in", "10m", "stretch", "and", "water"})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if job.ID != "job-1" || job.Type != models.JobTypeReminder || !job.DueAt.Equal(now.Add(10*time.Minute)) {
		t.Fatalf("unexpected job %+v", job)
	}
	stored, err := repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var p models.ReminderPayload
	if err := json.Unmarshal(stored.Payload, &p); err != nil || p.Text != "stretch and water" {
		t.Fatalf("unexpected payload %s %v", stored.Payload, err)
	}

	if _, err := q.ScheduleReminder(ctx, 1, "UTC", []string{"18:00"}); !errors.Is(err, apperrors.ErrEmptyReminderText) {
		t.Fatalf("expected ErrEmptyReminderText, got %v", err)
	}
	if _, err := q.ScheduleReminder(ctx, 1, "UTC", []string{"someday", "x"}); !errors.Is(err, apperrors.ErrInvalidTimeExpression) {
		t.Fatalf("expected ErrInvalidTimeExpression, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	q, _ := newQueue(t, now)

	if _, err := q.CancelNext(ctx, 1); !errors.Is(err, apperrors.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	late, _ := q.Enqueue(ctx, 1, models.JobTypePing, now.Add(2*time.Hour), nil)
	early, _ := q.Enqueue(ctx, 1, models.JobTypePing, now.Add(time.Hour), nil)

	cancelled, err := q.CancelNext(ctx, 1)
	if err != nil || cancelled.ID != early.ID {
		t.Fatalf("expected %s cancelled, got %+v %v", early.ID, cancelled, err)
	}
	n, err := q.CancelAll(ctx, 1)
	if err != nil || n != 1 {
		t.Fatalf("cancel all: n=%d err=%v", n, err)
	}
	pending, _ := q.Pending(ctx, 1)
	if len(pending) != 0 {
		t.Fatalf("job %s still pending", late.ID)
	}
}
