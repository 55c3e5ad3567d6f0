package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/pkg/models"
)

func newJobRepo(t *testing.T, now time.Time) *JobRepository {
	return NewJobRepository(newTestDB(t), func() time.Time { return now })
}

func pendingJob(id string, owner int64, due time.Time) models.ScheduledJob {
	return models.ScheduledJob{ID: id, OwnerID: owner, Type: models.JobTypePing, DueAt: due}
}

func TestJobCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	now := mustTime(t, "2025-01-01T12:00:00Z")
	repo := newJobRepo(t, now)

	job := pendingJob("a", 1, now.Add(time.Minute))
	job.Payload = json.RawMessage(`{"text":"first"}`)
	created, err := repo.Create(ctx, job)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	job.Payload = json.RawMessage(`{"text":"second"}`)
	job.DueAt = now.Add(time.Hour)
	created, err = repo.Create(ctx, job)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatal("duplicate job id created a row")
	}

	got, err := repo.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Payload) != `{"text":"first"}` || !got.DueAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("stored job was modified: %+v", got)
	}
	if got.Status != models.JobPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
}

func TestJobGetNotFound(t *testing.T) {
	repo := newJobRepo(t, time.Now())
	if _, err := repo.Get(context.Background(), "missing"); err != apperrors.ErrJobNotFound {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestListDueOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	now := mustTime(t, "2025-01-01T12:00:00Z")
	repo := newJobRepo(t, now)

	jobs := []models.ScheduledJob{
		pendingJob("c", 1, now.Add(-time.Minute)),
		pendingJob("b", 1, now.Add(-time.Minute)),
		pendingJob("a", 1, now),
		pendingJob("z", 1, now.Add(-time.Hour)),
		pendingJob("future", 1, now.Add(time.Second)),
		pendingJob("done", 1, now.Add(-2*time.Hour)),
		pendingJob("early", 1, now.Add(-500*time.Millisecond)),
	}
	for _, j := range jobs {
		if _, err := repo.Create(ctx, j); err != nil {
			t.Fatalf("create %s: %v", j.ID, err)
		}
	}
	if ok, err := repo.MarkDone(ctx, "done"); err != nil || !ok {
		t.Fatalf("mark done: ok=%v err=%v", ok, err)
	}

	due, err := repo.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	var ids []string
	for _, j := range due {
		if j.Status != models.JobPending || j.DueAt.After(now) {
			t.Fatalf("listDue returned %+v", j)
		}
		ids = append(ids, j.ID)
	}
	// "early" is rounded up to 12:00:00 and ties with "a"
	want := []string{"z", "b", "c", "a", "early"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	ctx := context.Background()
	now := mustTime(t, "2025-01-01T12:00:00Z")
	repo := newJobRepo(t, now)

	if _, err := repo.Create(ctx, pendingJob("a", 1, now)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := repo.MarkCancelled(ctx, "a"); err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}

	if ok, err := repo.MarkDone(ctx, "a"); err != nil || ok {
		t.Fatalf("done after cancel: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.MarkFailed(ctx, "a", "boom"); err != nil || ok {
		t.Fatalf("failed after cancel: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.MarkDone(ctx, "missing"); err != nil || ok {
		t.Fatalf("done on missing job: ok=%v err=%v", ok, err)
	}

	got, err := repo.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.JobCancelled || got.LastError != "" || got.CompletedAt == nil {
		t.Fatalf("unexpected job after races: %+v", got)
	}
}

func TestMarkFailedKeepsReason(t *testing.T) {
	ctx := context.Background()
	now := mustTime(t, "2025-01-01T12:00:00Z")
	repo := newJobRepo(t, now)

	if _, err := repo.Create(ctx, pendingJob("a", 1, now)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := repo.MarkFailed(ctx, "a", "no handler"); err != nil || !ok {
		t.Fatalf("mark failed: ok=%v err=%v", ok, err)
	}
	got, _ := repo.Get(ctx, "a")
	if got.Status != models.JobFailed || got.LastError != "no handler" {
		t.Fatalf("unexpected job: %+v", got)
	}
	due, _ := repo.ListDue(ctx, now.Add(time.Hour))
	if len(due) != 0 {
		t.Fatalf("failed job is still due: %+v", due)
	}
}

func TestOwnerCancellation(t *testing.T) {
	ctx := context.Background()
	now := mustTime(t, "2025-01-01T12:00:00Z")
	repo := newJobRepo(t, now)

	for _, j := range []models.ScheduledJob{
		pendingJob("late", 1, now.Add(2*time.Hour)),
		pendingJob("soon", 1, now.Add(time.Hour)),
		pendingJob("other", 2, now),
	} {
		if _, err := repo.Create(ctx, j); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	cancelled, err := repo.CancelEarliestPendingForOwner(ctx, 1)
	if err != nil {
		t.Fatalf("cancel earliest: %v", err)
	}
	if cancelled == nil || cancelled.ID != "soon" || cancelled.Status != models.JobCancelled {
		t.Fatalf("unexpected cancelled job: %+v", cancelled)
	}

	pending, err := repo.ListPendingForOwner(ctx, 1)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "late" {
		t.Fatalf("unexpected pending jobs: %+v", pending)
	}

	n, err := repo.CancelAllForOwner(ctx, 1)
	if err != nil || n != 1 {
		t.Fatalf("cancel all: n=%d err=%v", n, err)
	}
	if j, err := repo.CancelEarliestPendingForOwner(ctx, 1); err != nil || j != nil {
		t.Fatalf("expected nothing to cancel, got %+v %v", j, err)
	}

	other, _ := repo.ListPendingForOwner(ctx, 2)
	if len(other) != 1 {
		t.Fatalf("other owner's jobs were touched: %+v", other)
	}
}
