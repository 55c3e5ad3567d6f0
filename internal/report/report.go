// Package report builds the weekly study summary and keeps one pending
// weekly_summary job per owner in the deferred job store.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/studybot/internal/ai"
	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/internal/blocker"
	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/jobs"
	"github.com/example/studybot/internal/ledger"
	"github.com/example/studybot/pkg/models"
)

// Ledger supplies the weekly aggregate
type Ledger interface {
	WeeklySummary(ctx context.Context, ownerID int64, today clock.Day) (ledger.Weekly, error)
}

// Planner supplies goal and steps
type Planner interface {
	Goal(ctx context.Context, ownerID int64) (int, error)
	Steps(ctx context.Context, ownerID int64) ([]models.NextStep, error)
}

// BlockerCounter counts blockers by category in a time range
type BlockerCounter interface {
	CountByCategory(ctx context.Context, ownerID int64, from, to time.Time) (map[models.BlockerCategory]int, error)
}

// Settings resolves owner preferences
type Settings interface {
	Get(ctx context.Context, ownerID int64) (models.OwnerSettings, error)
}

// Coach writes an optional coaching paragraph
type Coach interface {
	Available() bool
	WeeklyCoaching(ctx context.Context, in ai.WeeklyInput) (string, error)
}

// Enqueuer creates deferred jobs under a chosen id
type Enqueuer interface {
	EnqueueWithID(ctx context.Context, jobID string, ownerID int64, jobType string, dueAt time.Time, payload any) (models.ScheduledJob, error)
}

// Messenger delivers outbound messages
type Messenger interface {
	Send(ctx context.Context, msg models.OutboundMessage) error
}

// Weekly is one owner's week
type Weekly struct {
	Week     ledger.Weekly
	Goal     int
	Blockers map[models.BlockerCategory]int
	Coaching string
}

// Reporter composes weekly reports
type Reporter struct {
	ledger   Ledger
	planner  Planner
	blockers BlockerCounter
	settings Settings
	coach    Coach
	clock    clock.Clock
	log      *zap.SugaredLogger
}

// New creates a reporter. coach may be nil.
func New(l Ledger, p Planner, b BlockerCounter, s Settings, coach Coach, clk clock.Clock, log *zap.SugaredLogger) *Reporter {
	return &Reporter{ledger: l, planner: p, blockers: b, settings: s, coach: coach, clock: clk, log: log}
}

// Weekly builds the report for the seven days ending at today. withCoaching
// asks the coach for a paragraph; coach failures are logged, not returned.
func (r *Reporter) Weekly(ctx context.Context, ownerID int64, today clock.Day, withCoaching bool) (Weekly, error) {
	week, err := r.ledger.WeeklySummary(ctx, ownerID, today)
	if err != nil {
		return Weekly{}, err
	}
	goal, err := r.planner.Goal(ctx, ownerID)
	if err != nil {
		return Weekly{}, err
	}
	blockers, err := r.blockers.CountByCategory(ctx, ownerID, today.AddDays(-(ledger.WeekDays - 1)).Start(), today.End())
	if err != nil {
		return Weekly{}, err
	}
	rep := Weekly{Week: week, Goal: goal, Blockers: blockers}

	if withCoaching && r.coach != nil && r.coach.Available() {
		in := ai.WeeklyInput{Total: week.Total, QualifyingDays: week.QualifyingDays, GoalMinutes: goal, Blockers: map[string]int{}}
		for _, d := range week.Days {
			in.Days = append(in.Days, ai.DayMinutes{Day: d.Day.String(), Minutes: d.Minutes})
		}
		for c, n := range blockers {
			in.Blockers[string(c)] = n
		}
		if steps, err := r.planner.Steps(ctx, ownerID); err == nil {
			for _, s := range steps {
				if !s.Done {
					in.OpenSteps = append(in.OpenSteps, s.Text)
				}
			}
		}
		text, err := r.coach.WeeklyCoaching(ctx, in)
		if err != nil {
			r.log.Warnw("weekly coaching failed", "owner_id", ownerID, "error", err)
		} else {
			rep.Coaching = text
		}
	}
	return rep, nil
}

// Format renders a report as a chat message
func Format(w Weekly) string {
	var b strings.Builder
	b.WriteString("Weekly summary (7 days):\n")
	for _, d := range w.Week.Days {
		fmt.Fprintf(&b, "%s %s: %d min\n", d.Day.Weekday().String()[:3], d.Day, d.Minutes)
	}
	fmt.Fprintf(&b, "\nTotal: %d min | Days with %d+ min: %d", w.Week.Total, ledger.QualifyingMinutes, w.Week.QualifyingDays)
	if w.Goal > 0 {
		fmt.Fprintf(&b, "\nDaily goal: %d min", w.Goal)
	}

	if len(w.Blockers) > 0 {
		cats := make([]models.BlockerCategory, 0, len(w.Blockers))
		for c := range w.Blockers {
			cats = append(cats, c)
		}
		sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
		parts := make([]string, 0, len(cats))
		for _, c := range cats {
			parts = append(parts, fmt.Sprintf("%s x%d", blocker.Label(c), w.Blockers[c]))
		}
		b.WriteString("\nBlockers: " + strings.Join(parts, ", "))
	}
	if w.Coaching != "" {
		b.WriteString("\n\n" + w.Coaching)
	}
	return b.String()
}

// NextWeekly returns the next instant after now that matches the owner's
// weekly summary weekday and local time.
func NextWeekly(st models.OwnerSettings, loc *time.Location, now time.Time) (time.Time, error) {
	h, m, err := clock.ParseHHMM(st.WeeklySummaryTime)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	day := clock.DayOf(local)
	for i := 0; i <= 7; i++ {
		d := day.AddDays(i)
		if d.Weekday() != st.WeeklySummaryDay {
			continue
		}
		if at := d.At(h, m); at.After(local) {
			return at, nil
		}
	}
	return day.AddDays(7).At(h, m), nil
}

// WeeklyJobID names the weekly job for one slot, so that scheduling the same
// slot twice is rejected by the store.
func WeeklyJobID(ownerID int64, localDue time.Time) string {
	return fmt.Sprintf("weekly:%d:%s", ownerID, localDue.Format("2006-01-02T15:04"))
}

// Scheduler keeps the weekly summary job queued
type Scheduler struct {
	reporter *Reporter
	queue    Enqueuer
	out      Messenger
}

func NewScheduler(reporter *Reporter, queue Enqueuer, out Messenger) *Scheduler {
	return &Scheduler{reporter: reporter, queue: queue, out: out}
}

// Ensure queues the owner's next weekly summary unless it is already queued.
func (s *Scheduler) Ensure(ctx context.Context, ownerID int64) (time.Time, error) {
	r := s.reporter
	st, err := r.settings.Get(ctx, ownerID)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := clock.Location(st.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	due, err := NextWeekly(st, loc, r.clock.Now())
	if err != nil {
		return time.Time{}, err
	}
	_, err = s.queue.EnqueueWithID(ctx, WeeklyJobID(ownerID, due), ownerID, models.JobTypeWeeklySummary, due, nil)
	if err != nil && !errors.Is(err, apperrors.ErrDuplicateJob) {
		return time.Time{}, err
	}
	return due, nil
}

// Handler sends the weekly summary and queues the next one. A job whose slot
// no longer matches the owner's settings is dropped silently.
func (s *Scheduler) Handler() jobs.Handler {
	return func(ctx context.Context, job models.ScheduledJob) error {
		r := s.reporter
		st, err := r.settings.Get(ctx, job.OwnerID)
		if err != nil {
			return err
		}
		loc, err := clock.Location(st.Timezone)
		if err != nil {
			return err
		}
		if job.ID != WeeklyJobID(job.OwnerID, job.DueAt.In(loc)) || !matchesSlot(st, job.DueAt.In(loc)) {
			r.log.Infow("stale weekly summary job skipped", "job_id", job.ID, "owner_id", job.OwnerID)
			_, err := s.Ensure(ctx, job.OwnerID)
			return err
		}

		rep, err := r.Weekly(ctx, job.OwnerID, clock.DayOf(job.DueAt.In(loc)), true)
		if err != nil {
			return err
		}
		if err := s.out.Send(ctx, models.OutboundMessage{OwnerID: job.OwnerID, Text: Format(rep)}); err != nil {
			return err
		}
		_, err = s.Ensure(ctx, job.OwnerID)
		return err
	}
}

func matchesSlot(st models.OwnerSettings, local time.Time) bool {
	h, m, err := clock.ParseHHMM(st.WeeklySummaryTime)
	if err != nil {
		return false
	}
	return local.Weekday() == st.WeeklySummaryDay && local.Hour() == h && local.Minute() == m
}
