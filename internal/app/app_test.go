package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap/zaptest"

	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/config"
	"github.com/example/studybot/internal/database"
	"github.com/example/studybot/internal/reminder"
	"github.com/example/studybot/pkg/models"
)

const owner int64 = 42

type fakeAPI struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) {
	return "", errors.New("no files in tests")
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Text)
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		OwnerID:  owner,
		Timezone: "Europe/Helsinki",
		Database: config.DatabaseConfig{Driver: "sqlite3", DSN: ":memory:"},
		Scheduler: config.SchedulerConfig{
			Interval:         time.Second,
			HandlerTimeout:   time.Second,
			ReminderInterval: time.Minute,
		},
		Reminder: config.ReminderConfig{NudgeAt: "18:00", EscalationAt: "19:00", SnoozeMinutes: 30},
	}
}

func newTestApp(t *testing.T, now time.Time) (*App, *fakeAPI, *clock.Manual) {
	t.Helper()
	api := &fakeAPI{}
	clk := clock.NewManual(now)
	a, err := New(context.Background(), testConfig(), api, clk, zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, api, clk
}

func TestNewRejectsBadReminderWindows(t *testing.T) {
	cfg := testConfig()
	cfg.Reminder.EscalationAt = "17:00"
	if _, err := New(context.Background(), cfg, &fakeAPI{}, clock.System{}, zaptest.NewLogger(t).Sugar()); err == nil {
		t.Fatal("expected an error for escalation before nudge")
	}
}

func TestPrepareQueuesWeeklySummary(t *testing.T) {
	// Monday 12:00 in Helsinki
	a, _, _ := newTestApp(t, time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if err := a.Prepare(ctx); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := a.Prepare(ctx); err != nil {
		t.Fatalf("second prepare: %v", err)
	}
	pending, err := a.Services.Queue.Pending(ctx, owner)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	want := time.Date(2025, 3, 16, 17, 0, 0, 0, time.UTC) // Sunday 19:00 EET
	if len(pending) != 1 || pending[0].Type != models.JobTypeWeeklySummary || !pending[0].DueAt.Equal(want) {
		t.Fatalf("expected one weekly summary at %s, got %+v", want, pending)
	}
}

func TestRegisteredHandlersDeliverMessages(t *testing.T) {
	a, api, clk := newTestApp(t, time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if _, err := a.Services.Queue.ScheduleReminder(ctx, owner, "Europe/Helsinki", []string{"in", "5m", "drink", "water"}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := a.Services.Queue.Enqueue(ctx, owner, models.JobTypePing, clk.Now(), nil); err != nil {
		t.Fatalf("enqueue ping: %v", err)
	}

	if n := a.Jobs.Tick(ctx); n != 1 {
		t.Fatalf("expected only the ping to run, ran %d", n)
	}
	clk.Advance(5 * time.Minute)
	if n := a.Jobs.Tick(ctx); n != 1 {
		t.Fatalf("expected the reminder to run, ran %d", n)
	}

	texts := api.texts()
	if len(texts) != 1 || texts[0] != "Reminder: drink water" {
		t.Fatalf("unexpected messages %q", texts)
	}
}

func TestPeriodicSweepSendsNudgeOnce(t *testing.T) {
	// 18:10 in Helsinki
	a, api, _ := newTestApp(t, time.Date(2025, 3, 10, 16, 10, 0, 0, time.UTC))
	ctx := context.Background()
	if err := a.Prepare(ctx); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	a.Periodic.CheckReminders(ctx)
	a.Periodic.CheckReminders(ctx)

	texts := api.texts()
	if len(texts) != 1 || !strings.Contains(texts[0], "Shall we start now?") {
		t.Fatalf("expected a single nudge, got %q", texts)
	}
	api.mu.Lock()
	kb, ok := api.sent[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	api.mu.Unlock()
	if !ok || kb.InlineKeyboard[0][0].CallbackData == nil || *kb.InlineKeyboard[0][0].CallbackData != reminder.CallbackStartNow {
		t.Fatalf("nudge is missing the start-now button: %+v", kb)
	}
}

func TestShutdownDrainsRunningJob(t *testing.T) {
	a, _, clk := newTestApp(t, time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC))

	started := make(chan struct{})
	var handlerErr error
	a.Jobs.Register("slow", func(ctx context.Context, _ models.ScheduledJob) error {
		close(started)
		time.Sleep(200 * time.Millisecond)
		handlerErr = ctx.Err()
		return handlerErr
	})
	job, err := a.Services.Queue.Enqueue(context.Background(), owner, "slow", clk.Now(), nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
	}
	cancel()
	if err := <-runErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from Run, got %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if handlerErr != nil {
		t.Fatalf("handler saw a cancelled context: %v", handlerErr)
	}
	got, err := database.NewJobRepository(a.DB, clk.Now).Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != models.JobDone {
		t.Fatalf("expected the running job to finish as done, got %s", got.Status)
	}
}
