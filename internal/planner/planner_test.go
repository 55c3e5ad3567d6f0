package planner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/database"
	"github.com/example/studybot/internal/ledger"
)

func newPlanner(t *testing.T, now time.Time) (*Planner, *ledger.Ledger) {
	t.Helper()
	db, err := database.Connect(context.Background(), database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := zaptest.NewLogger(t).Sugar()
	l := ledger.New(database.NewSessionRepository(db), clock.NewManual(now), log)
	return New(database.NewGoalRepository(db), database.NewStepRepository(db), l, log), l
}

func TestGoalValidation(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	p, _ := newPlanner(t, now)

	for _, minutes := range []int{0, -5, 1441} {
		if err := p.SetGoal(ctx, 1, now, minutes); !errors.Is(err, apperrors.ErrValidation) {
			t.Fatalf("%d: expected validation error, got %v", minutes, err)
		}
	}
	if err := p.SetGoal(ctx, 1, now, 1440); err != nil {
		t.Fatalf("set goal: %v", err)
	}
	got, err := p.Goal(ctx, 1)
	if err != nil || got != 1440 {
		t.Fatalf("expected 1440, got %d %v", got, err)
	}
}

func TestSteps(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	p, _ := newPlanner(t, now)

	if _, err := p.AddStep(ctx, 1, now, "   "); !errors.Is(err, apperrors.ErrEmptyStepText) {
		t.Fatalf("expected ErrEmptyStepText, got %v", err)
	}
	s, err := p.AddStep(ctx, 1, now, "  outline chapter 3 ")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if s.Text != "outline chapter 3" {
		t.Fatalf("text not trimmed: %q", s.Text)
	}
	if _, err := p.EditStep(ctx, 1, now, s.ID, ""); !errors.Is(err, apperrors.ErrEmptyStepText) {
		t.Fatalf("expected ErrEmptyStepText, got %v", err)
	}
	if _, err := p.DoneStep(ctx, 1, now, 999); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := p.AddStep(ctx, 1, now, strings.Repeat("x", i+1)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if _, err := p.AddStep(ctx, 1, now, "fourth"); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := p.DeleteStep(ctx, 1, now, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	steps, err := p.Steps(ctx, 1)
	if err != nil || len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d %v", len(steps), err)
	}
}

func TestStatusGoalNotYetMet(t *testing.T) {
	ctx := context.Background()
	loc, _ := time.LoadLocation("Europe/Helsinki")
	day := clock.NewDay(2025, 1, 1, loc)
	now := day.At(9, 0)
	p, l := newPlanner(t, now)

	if _, err := l.Start(ctx, 1, day.At(8, 0), ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := l.Stop(ctx, 1, day.At(8, 25)); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := p.SetGoal(ctx, 1, now, 30); err != nil {
		t.Fatalf("set goal: %v", err)
	}

	st, err := p.Status(ctx, 1, now)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.TodayMinutes != 25 || st.GoalMinutes != 30 || st.GoalMet() {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.StartedAt == nil || !st.StartedAt.Equal(day.At(8, 0)) || st.Open != nil || st.Streak != 1 {
		t.Fatalf("unexpected status %+v", st)
	}

	if _, err := l.Start(ctx, 1, day.At(9, 0), ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	st, err = p.Status(ctx, 1, day.At(9, 5))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.GoalMet() || st.Open == nil {
		t.Fatalf("expected open session and goal met, got %+v", st)
	}
}
