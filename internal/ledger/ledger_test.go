package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/database"
)

type fixture struct {
	ledger *Ledger
	clock  *clock.Manual
	loc    *time.Location
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := database.Connect(context.Background(), database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	clk := clock.NewManual(time.Date(2025, 1, 1, 12, 0, 0, 0, loc))
	return fixture{
		ledger: New(database.NewSessionRepository(db), clk, zaptest.NewLogger(t).Sugar()),
		clock:  clk,
		loc:    loc,
	}
}

func (f fixture) at(day clock.Day, hour, minute int) time.Time {
	return day.At(hour, minute)
}

func (f fixture) session(t *testing.T, from, to time.Time) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.ledger.Start(ctx, 1, from, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.ledger.Stop(ctx, 1, to); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestStartStopMinutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := clock.NewDay(2025, 1, 1, f.loc)

	if _, err := f.ledger.Stop(ctx, 1, f.at(day, 8, 0)); !errors.Is(err, apperrors.ErrNoOpenSession) {
		t.Fatalf("expected ErrNoOpenSession, got %v", err)
	}
	if _, err := f.ledger.Start(ctx, 1, f.at(day, 8, 0), ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.ledger.Start(ctx, 1, f.at(day, 8, 1), ""); !errors.Is(err, apperrors.ErrAlreadyOpen) {
		t.Fatalf("expected ErrAlreadyOpen, got %v", err)
	}
	res, err := f.ledger.Stop(ctx, 1, f.at(day, 8, 25).Add(59*time.Second))
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Minutes != 25 {
		t.Fatalf("expected 25 minutes, got %d", res.Minutes)
	}
}

func TestMinutesSplitAcrossMidnight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d1 := clock.NewDay(2025, 1, 1, f.loc)
	d2 := d1.AddDays(1)

	f.session(t, f.at(d1, 23, 30), f.at(d2, 0, 30))

	eval := f.at(d2.AddDays(5), 0, 0)
	for _, tc := range []struct {
		day  clock.Day
		want int
	}{
		{d1.AddDays(-1), 0},
		{d1, 30},
		{d2, 30},
		{d2.AddDays(1), 0},
	} {
		got, err := f.ledger.MinutesForDay(ctx, 1, tc.day, eval)
		if err != nil {
			t.Fatalf("minutes for %s: %v", tc.day, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %d minutes, got %d", tc.day, tc.want, got)
		}
	}
}

func TestMinutesForOpenSessionUseEvalInstant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := clock.NewDay(2025, 1, 1, f.loc)

	if _, err := f.ledger.Start(ctx, 1, f.at(day, 10, 0), ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, tc := range []struct {
		eval time.Time
		want int
	}{
		{f.at(day, 9, 0), 0},
		{f.at(day, 10, 40), 40},
		{f.at(day.AddDays(1), 3, 0), 14 * 60},
	} {
		got, err := f.ledger.MinutesForDay(ctx, 1, day, tc.eval)
		if err != nil {
			t.Fatalf("minutes: %v", err)
		}
		if got != tc.want {
			t.Fatalf("eval %s: expected %d, got %d", tc.eval, tc.want, got)
		}
	}
}

func TestMinutesOnShortDSTDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := clock.NewDay(2025, 3, 30, f.loc) // clocks jump 03:00 -> 04:00

	f.session(t, f.at(day, 2, 30), f.at(day, 4, 30))
	got, err := f.ledger.MinutesForDay(ctx, 1, day, f.at(day, 23, 0))
	if err != nil {
		t.Fatalf("minutes: %v", err)
	}
	if got != 60 {
		t.Fatalf("expected 60 elapsed minutes, got %d", got)
	}
}

func TestStreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := clock.NewDay(2025, 1, 10, f.loc)
	f.clock.Set(f.at(today, 22, 0))

	f.session(t, f.at(today.AddDays(-3), 9, 0), f.at(today.AddDays(-3), 9, 10)) // 10 min, breaks the streak
	f.session(t, f.at(today.AddDays(-2), 9, 0), f.at(today.AddDays(-2), 9, 15))
	f.session(t, f.at(today.AddDays(-1), 23, 50), f.at(today, 0, 5)) // 10 + 5
	f.session(t, f.at(today.AddDays(-1), 8, 0), f.at(today.AddDays(-1), 8, 10))
	f.session(t, f.at(today, 7, 0), f.at(today, 7, 10))

	got, err := f.ledger.Streak(ctx, 1, today)
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected streak 3, got %d", got)
	}

	got, err = f.ledger.Streak(ctx, 1, today.AddDays(1))
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected streak 0 for a day without study, got %d", got)
	}
}

func TestStreakIsCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := clock.NewDay(2025, 1, 1, f.loc)
	f.clock.Set(f.at(today, 12, 0))

	// one session covering more than a year
	f.session(t, f.at(today.AddDays(-400), 0, 0), f.at(today, 12, 0))
	got, err := f.ledger.Streak(ctx, 1, today)
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if got != MaxStreakDays {
		t.Fatalf("expected %d, got %d", MaxStreakDays, got)
	}
}

func TestWeeklySummaryEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := clock.NewDay(2025, 1, 1, f.loc)

	f.session(t, f.at(today, 8, 0), f.at(today, 8, 25))
	f.clock.Set(f.at(today, 9, 0))

	minutes, err := f.ledger.MinutesForDay(ctx, 1, today, f.clock.Now())
	if err != nil {
		t.Fatalf("minutes: %v", err)
	}
	if minutes != 25 {
		t.Fatalf("expected 25, got %d", minutes)
	}

	w, err := f.ledger.WeeklySummary(ctx, 1, today.AddDays(3))
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if len(w.Days) != WeekDays || w.Total != 25 || w.QualifyingDays != 1 {
		t.Fatalf("unexpected summary %+v", w)
	}
	if !w.Days[0].Day.Equal(today.AddDays(-3)) || !w.Days[6].Day.Equal(today.AddDays(3)) {
		t.Fatalf("unexpected range %s..%s", w.Days[0].Day, w.Days[6].Day)
	}

	started, err := f.ledger.StartedOn(ctx, 1, today)
	if err != nil || started == nil {
		t.Fatalf("expected a session today, got %v %v", started, err)
	}
}

func TestUndo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := clock.NewDay(2025, 1, 1, f.loc)

	f.session(t, f.at(day, 8, 0), f.at(day, 8, 30))
	kind, s, err := f.ledger.Undo(ctx, 1, f.at(day, 8, 31))
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if kind != "stop" || !s.IsOpen() {
		t.Fatalf("unexpected undo %s %+v", kind, s)
	}
	open, err := f.ledger.OpenSession(ctx, 1)
	if err != nil || open == nil || open.ID != s.ID {
		t.Fatalf("expected reopened session, got %+v %v", open, err)
	}
}
