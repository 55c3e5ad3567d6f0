// Package planner keeps the owner's daily goal and short list of next steps,
// and composes the status view.
package planner

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/ledger"
	"github.com/example/studybot/pkg/models"
)

// Goal bounds in minutes
const (
	MinGoalMinutes = 1
	MaxGoalMinutes = 24 * 60
)

// ListLimit caps how many steps are shown
const ListLimit = 10

// GoalStore persists goals
type GoalStore interface {
	Set(ctx context.Context, ownerID int64, minutes int, at time.Time) error
	Get(ctx context.Context, ownerID int64) (*models.Goal, error)
}

// StepStore persists next steps
type StepStore interface {
	Add(ctx context.Context, ownerID int64, text string, at time.Time) (models.NextStep, error)
	List(ctx context.Context, ownerID int64, limit int) ([]models.NextStep, error)
	MarkDone(ctx context.Context, ownerID, stepID int64, at time.Time) (models.NextStep, error)
	UpdateText(ctx context.Context, ownerID, stepID int64, text string, at time.Time) (models.NextStep, error)
	Delete(ctx context.Context, ownerID, stepID int64, at time.Time) error
}

// Planner is the goal and next-step service
type Planner struct {
	goals  GoalStore
	steps  StepStore
	ledger *ledger.Ledger
	log    *zap.SugaredLogger
}

// New creates a planner
func New(goals GoalStore, steps StepStore, l *ledger.Ledger, log *zap.SugaredLogger) *Planner {
	return &Planner{goals: goals, steps: steps, ledger: l, log: log}
}

// SetGoal replaces the daily goal
func (p *Planner) SetGoal(ctx context.Context, ownerID int64, now time.Time, minutes int) error {
	if minutes < MinGoalMinutes || minutes > MaxGoalMinutes {
		return apperrors.ErrGoalOutOfRange
	}
	if err := p.goals.Set(ctx, ownerID, minutes, now); err != nil {
		return err
	}
	p.log.Infow("goal set", "owner_id", ownerID, "minutes", minutes)
	return nil
}

// Goal returns the goal in minutes, or 0 if none is set
func (p *Planner) Goal(ctx context.Context, ownerID int64) (int, error) {
	g, err := p.goals.Get(ctx, ownerID)
	if err != nil || g == nil {
		return 0, err
	}
	return g.Minutes, nil
}

// AddStep adds an active step. At most models.MaxActiveSteps may be active.
func (p *Planner) AddStep(ctx context.Context, ownerID int64, now time.Time, text string) (models.NextStep, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.NextStep{}, apperrors.ErrEmptyStepText
	}
	return p.steps.Add(ctx, ownerID, text, now)
}

// Steps lists active steps first, then recently finished ones
func (p *Planner) Steps(ctx context.Context, ownerID int64) ([]models.NextStep, error) {
	return p.steps.List(ctx, ownerID, ListLimit)
}

func (p *Planner) DoneStep(ctx context.Context, ownerID int64, now time.Time, stepID int64) (models.NextStep, error) {
	return p.steps.MarkDone(ctx, ownerID, stepID, now)
}

func (p *Planner) EditStep(ctx context.Context, ownerID int64, now time.Time, stepID int64, text string) (models.NextStep, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.NextStep{}, apperrors.ErrEmptyStepText
	}
	return p.steps.UpdateText(ctx, ownerID, stepID, text, now)
}

func (p *Planner) DeleteStep(ctx context.Context, ownerID int64, now time.Time, stepID int64) error {
	return p.steps.Delete(ctx, ownerID, stepID, now)
}

// Status is the owner's view of the current day
type Status struct {
	Today        clock.Day
	StartedAt    *time.Time // first session start today
	TodayMinutes int
	Open         *models.StudySession
	GoalMinutes  int // 0 when no goal is set
	Steps        []models.NextStep
	Streak       int
}

// GoalMet reports whether today's minutes reached the goal
func (s Status) GoalMet() bool {
	return s.GoalMinutes > 0 && s.TodayMinutes >= s.GoalMinutes
}

// Status composes the current day's state. localNow must be in the owner's timezone.
func (p *Planner) Status(ctx context.Context, ownerID int64, localNow time.Time) (Status, error) {
	today := clock.DayOf(localNow)
	st := Status{Today: today}

	started, err := p.ledger.StartedOn(ctx, ownerID, today)
	if err != nil {
		return Status{}, err
	}
	if started != nil {
		at := started.StartedAt
		st.StartedAt = &at
	}
	if st.TodayMinutes, err = p.ledger.MinutesForDay(ctx, ownerID, today, localNow); err != nil {
		return Status{}, err
	}
	if st.Open, err = p.ledger.OpenSession(ctx, ownerID); err != nil {
		return Status{}, err
	}
	if st.GoalMinutes, err = p.Goal(ctx, ownerID); err != nil {
		return Status{}, err
	}
	if st.Steps, err = p.Steps(ctx, ownerID); err != nil {
		return Status{}, err
	}
	if st.Streak, err = p.ledger.Streak(ctx, ownerID, today); err != nil {
		return Status{}, err
	}
	return st, nil
}
