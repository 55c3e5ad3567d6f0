// Package ledger tracks study sessions and turns them into per-day minutes,
// streaks and weekly aggregates.
package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/pkg/models"
)

const (
	// QualifyingMinutes is the daily amount that counts a day towards a streak
	QualifyingMinutes = 15
	// MaxStreakDays bounds how far back a streak is searched
	MaxStreakDays = 365
	// WeekDays is the length of the weekly summary
	WeekDays = 7
)

// Store is the durable session storage the ledger relies on.
type Store interface {
	Start(ctx context.Context, ownerID int64, at time.Time, topic string) (models.StudySession, error)
	Stop(ctx context.Context, ownerID int64, at time.Time) (models.StudySession, error)
	Open(ctx context.Context, ownerID int64) (*models.StudySession, error)
	Overlapping(ctx context.Context, ownerID int64, from, to time.Time) ([]models.StudySession, error)
	FirstStartedBetween(ctx context.Context, ownerID int64, from, to time.Time) (*models.StudySession, error)
	UndoLast(ctx context.Context, ownerID int64, at time.Time) (models.UndoKind, models.StudySession, error)
}

// Ledger is the session lifecycle service
type Ledger struct {
	store Store
	clock clock.Clock
	log   *zap.SugaredLogger
}

// New creates a ledger
func New(store Store, clk clock.Clock, log *zap.SugaredLogger) *Ledger {
	return &Ledger{store: store, clock: clk, log: log}
}

// StopResult is a closed session and its whole-minute length
type StopResult struct {
	Session models.StudySession
	Minutes int
}

// DayMinutes is the study time attributed to one calendar day
type DayMinutes struct {
	Day     clock.Day
	Minutes int
}

// Weekly aggregates the seven days ending at a reference day
type Weekly struct {
	Days           []DayMinutes // oldest first
	Total          int
	QualifyingDays int
}

// Start opens a session. It fails with apperrors.ErrAlreadyOpen if one is open.
func (l *Ledger) Start(ctx context.Context, ownerID int64, now time.Time, topic string) (models.StudySession, error) {
	s, err := l.store.Start(ctx, ownerID, now, topic)
	if err != nil {
		return models.StudySession{}, err
	}
	l.log.Infow("session started", "owner_id", ownerID, "session_id", s.ID)
	return s, nil
}

// Stop closes the open session. It fails with apperrors.ErrNoOpenSession if none is open.
func (l *Ledger) Stop(ctx context.Context, ownerID int64, now time.Time) (StopResult, error) {
	s, err := l.store.Stop(ctx, ownerID, now)
	if err != nil {
		return StopResult{}, err
	}
	minutes := wholeMinutes(s.StartedAt, s.EndOr(now))
	l.log.Infow("session stopped", "owner_id", ownerID, "session_id", s.ID, "minutes", minutes)
	return StopResult{Session: s, Minutes: minutes}, nil
}

// OpenSession returns the open session, or nil
func (l *Ledger) OpenSession(ctx context.Context, ownerID int64) (*models.StudySession, error) {
	return l.store.Open(ctx, ownerID)
}

// StartedOn returns the first session that started within day, or nil
func (l *Ledger) StartedOn(ctx context.Context, ownerID int64, day clock.Day) (*models.StudySession, error) {
	return l.store.FirstStartedBetween(ctx, ownerID, day.Start(), day.End())
}

// Undo reverts the most recent session start or stop
func (l *Ledger) Undo(ctx context.Context, ownerID int64, now time.Time) (models.UndoKind, models.StudySession, error) {
	kind, s, err := l.store.UndoLast(ctx, ownerID, now)
	if err != nil {
		return "", models.StudySession{}, err
	}
	l.log.Infow("session event undone", "owner_id", ownerID, "session_id", s.ID, "reverted", kind)
	return kind, s, nil
}

// MinutesForDay sums the parts of the owner's sessions that fall inside day.
// Open sessions are measured up to eval.
func (l *Ledger) MinutesForDay(ctx context.Context, ownerID int64, day clock.Day, eval time.Time) (int, error) {
	days, err := l.dailyMinutes(ctx, ownerID, day, 1, eval)
	if err != nil {
		return 0, err
	}
	return days[0].Minutes, nil
}

// Streak counts consecutive qualifying days ending at today.
func (l *Ledger) Streak(ctx context.Context, ownerID int64, today clock.Day) (int, error) {
	days, err := l.dailyMinutes(ctx, ownerID, today, MaxStreakDays, l.clock.Now())
	if err != nil {
		return 0, err
	}
	streak := 0
	for i := len(days) - 1; i >= 0; i-- {
		if days[i].Minutes < QualifyingMinutes {
			break
		}
		streak++
	}
	return streak, nil
}

// WeeklySummary reports the seven days ending at today.
func (l *Ledger) WeeklySummary(ctx context.Context, ownerID int64, today clock.Day) (Weekly, error) {
	days, err := l.dailyMinutes(ctx, ownerID, today, WeekDays, l.clock.Now())
	if err != nil {
		return Weekly{}, err
	}
	w := Weekly{Days: days}
	for _, d := range days {
		w.Total += d.Minutes
		if d.Minutes >= QualifyingMinutes {
			w.QualifyingDays++
		}
	}
	return w, nil
}

// dailyMinutes loads the sessions of n days ending at last with one query and
// attributes them to days, oldest first.
func (l *Ledger) dailyMinutes(ctx context.Context, ownerID int64, last clock.Day, n int, eval time.Time) ([]DayMinutes, error) {
	first := last.AddDays(-(n - 1))
	sessions, err := l.store.Overlapping(ctx, ownerID, first.Start(), last.End())
	if err != nil {
		return nil, err
	}

	days := make([]DayMinutes, n)
	for i := range days {
		days[i].Day = first.AddDays(i)
	}
	for _, s := range sessions {
		for i := range days {
			days[i].Minutes += minutesWithin(s, days[i].Day, eval)
		}
	}
	return days, nil
}

// minutesWithin clamps the session to day and returns its whole minutes.
func minutesWithin(s models.StudySession, day clock.Day, eval time.Time) int {
	from := s.StartedAt
	if day.Start().After(from) {
		from = day.Start()
	}
	to := s.EndOr(eval)
	if day.End().Before(to) {
		to = day.End()
	}
	return wholeMinutes(from, to)
}

func wholeMinutes(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / time.Minute)
}
