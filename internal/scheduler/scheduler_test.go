package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/reminder"
	"github.com/example/studybot/pkg/models"
)

type owners map[int64]models.OwnerSettings

func (o owners) Owners(context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(o))
	for id := range o {
		ids = append(ids, id)
	}
	return ids, nil
}

func (o owners) Get(_ context.Context, id int64) (models.OwnerSettings, error) {
	return o[id], nil
}

type gateCall struct {
	owner int64
	local time.Time
}

type fakeGate struct {
	mu    sync.Mutex
	calls []gateCall
}

func (g *fakeGate) Evaluate(_ context.Context, ownerID int64, localNow time.Time) (reminder.Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, gateCall{ownerID, localNow})
	if ownerID == 3 {
		return reminder.None, errors.New("store down")
	}
	return reminder.Nudge, nil
}

type fakeWeekly struct {
	mu    sync.Mutex
	seen  map[int64]int
	calls chan struct{}
}

func (w *fakeWeekly) Ensure(_ context.Context, ownerID int64) (time.Time, error) {
	w.mu.Lock()
	w.seen[ownerID]++
	w.mu.Unlock()
	select {
	case w.calls <- struct{}{}:
	default:
	}
	return time.Time{}, nil
}

func TestCheckRemindersUsesOwnerTimezone(t *testing.T) {
	o := owners{
		1: {OwnerID: 1, Timezone: "Europe/Helsinki", RemindersEnabled: true},
		2: {OwnerID: 2, Timezone: "UTC", RemindersEnabled: false},
		3: {OwnerID: 3, Timezone: "UTC", RemindersEnabled: true},
	}
	gate := &fakeGate{}
	clk := clock.NewManual(time.Date(2025, 1, 1, 16, 30, 0, 0, time.UTC))
	s := New(o, gate, &fakeWeekly{seen: map[int64]int{}}, clk, zaptest.NewLogger(t).Sugar(), time.Minute)

	s.CheckReminders(context.Background())

	if len(gate.calls) != 2 {
		t.Fatalf("expected 2 evaluations, got %+v", gate.calls)
	}
	for _, c := range gate.calls {
		switch c.owner {
		case 1:
			if c.local.Hour() != 18 || c.local.Location().String() != "Europe/Helsinki" {
				t.Fatalf("owner 1 evaluated at %s", c.local)
			}
		case 2:
			t.Fatal("owner with reminders off was evaluated")
		}
	}
}

func TestStartRegistersTasks(t *testing.T) {
	o := owners{1: {OwnerID: 1, Timezone: "UTC", RemindersEnabled: true}}
	weekly := &fakeWeekly{seen: map[int64]int{}, calls: make(chan struct{}, 1)}
	s := New(o, &fakeGate{}, weekly, clock.System{}, zaptest.NewLogger(t).Sugar(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if s.Len() != 2 {
		t.Fatalf("expected 2 tasks, got %d", s.Len())
	}
	select {
	case <-weekly.calls:
	case <-time.After(3 * time.Second):
		t.Fatal("weekly task did not run on start")
	}
}
