package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/reminder"
	"github.com/example/studybot/pkg/models"
)

// Job tags
const (
	TagReminders = "reminders"
	TagWeekly    = "weekly-summary"
)

// DefaultWeeklyCheck is how often pending weekly summaries are verified
const DefaultWeeklyCheck = time.Hour

// Owners lists owners and their settings
type Owners interface {
	Owners(ctx context.Context) ([]int64, error)
	Get(ctx context.Context, ownerID int64) (models.OwnerSettings, error)
}

// Gate evaluates the reminder state machine
type Gate interface {
	Evaluate(ctx context.Context, ownerID int64, localNow time.Time) (reminder.Decision, error)
}

// WeeklyEnsurer keeps the next weekly summary queued
type WeeklyEnsurer interface {
	Ensure(ctx context.Context, ownerID int64) (time.Time, error)
}

// Scheduler manages the periodic tasks of the application
type Scheduler struct {
	scheduler        *gocron.Scheduler
	owners           Owners
	gate             Gate
	weekly           WeeklyEnsurer
	clock            clock.Clock
	log              *zap.SugaredLogger
	reminderInterval time.Duration
	weeklyInterval   time.Duration
}

// New creates a new scheduler instance
func New(owners Owners, gate Gate, weekly WeeklyEnsurer, clk clock.Clock, log *zap.SugaredLogger, reminderInterval time.Duration) *Scheduler {
	if reminderInterval <= 0 {
		reminderInterval = time.Minute
	}
	return &Scheduler{
		scheduler:        gocron.NewScheduler(time.UTC),
		owners:           owners,
		gate:             gate,
		weekly:           weekly,
		clock:            clk,
		log:              log,
		reminderInterval: reminderInterval,
		weeklyInterval:   DefaultWeeklyCheck,
	}
}

// Start registers the periodic tasks and runs them in the background
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.scheduler.Every(s.reminderInterval).SingletonMode().Tag(TagReminders).Do(s.CheckReminders, ctx); err != nil {
		return fmt.Errorf("schedule reminders: %w", err)
	}
	if _, err := s.scheduler.Every(s.weeklyInterval).SingletonMode().Tag(TagWeekly).Do(s.EnsureWeekly, ctx); err != nil {
		return fmt.Errorf("schedule weekly summaries: %w", err)
	}

	// Start the scheduler in a non-blocking manner
	s.scheduler.StartAsync()
	s.log.Infow("periodic scheduler started", "reminder_interval", s.reminderInterval, "jobs", s.scheduler.Len())
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// Len returns the number of registered tasks
func (s *Scheduler) Len() int {
	return s.scheduler.Len()
}

// CheckReminders runs the reminder gate for every owner with reminders on,
// at the owner's local time. One owner's failure does not stop the others.
func (s *Scheduler) CheckReminders(ctx context.Context) {
	s.forEachOwner(ctx, "reminders", func(ownerID int64) error {
		st, err := s.owners.Get(ctx, ownerID)
		if err != nil {
			return err
		}
		if !st.RemindersEnabled {
			return nil
		}
		loc, err := clock.Location(st.Timezone)
		if err != nil {
			return err
		}
		decision, err := s.gate.Evaluate(ctx, ownerID, s.clock.Now().In(loc))
		if err != nil {
			return err
		}
		if decision != reminder.None {
			s.log.Debugw("reminder decision", "owner_id", ownerID, "decision", decision)
		}
		return nil
	})
}

// EnsureWeekly makes sure every owner has the next weekly summary queued
func (s *Scheduler) EnsureWeekly(ctx context.Context) {
	s.forEachOwner(ctx, "weekly summary", func(ownerID int64) error {
		_, err := s.weekly.Ensure(ctx, ownerID)
		return err
	})
}

func (s *Scheduler) forEachOwner(ctx context.Context, task string, fn func(ownerID int64) error) {
	owners, err := s.owners.Owners(ctx)
	if err != nil {
		s.log.Errorw("list owners", "task", task, "error", err)
		return
	}
	for _, id := range owners {
		if ctx.Err() != nil {
			return
		}
		if err := fn(id); err != nil {
			s.log.Errorw("periodic task failed", "task", task, "owner_id", id, "error", err)
		}
	}
}
