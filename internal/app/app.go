// Package app wires configuration, storage and services into a runnable bot.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/example/studybot/internal/ai"
	"github.com/example/studybot/internal/blocker"
	"github.com/example/studybot/internal/bot"
	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/config"
	"github.com/example/studybot/internal/database"
	"github.com/example/studybot/internal/excel"
	"github.com/example/studybot/internal/ident"
	"github.com/example/studybot/internal/jobs"
	"github.com/example/studybot/internal/ledger"
	"github.com/example/studybot/internal/planner"
	"github.com/example/studybot/internal/reminder"
	"github.com/example/studybot/internal/report"
	"github.com/example/studybot/internal/scheduler"
	"github.com/example/studybot/internal/settings"
	"github.com/example/studybot/pkg/models"
)

type App struct {
	DB       *sqlx.DB
	Services bot.Services
	Bot      *bot.Bot
	Jobs     *jobs.Scheduler
	Periodic *scheduler.Scheduler

	ownerID int64
	log     *zap.SugaredLogger

	mu         sync.Mutex
	cancelWork context.CancelFunc
}

// New connects to the database and builds every component. The caller owns
// the returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, api bot.API, clk clock.Clock, log *zap.SugaredLogger) (*App, error) {
	windows, err := reminder.ParseWindows(cfg.Reminder.NudgeAt, cfg.Reminder.EscalationAt, cfg.Reminder.SnoozeMinutes)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	sessions := database.NewSessionRepository(db)
	blockers := database.NewBlockerRepository(db)
	jobStore := database.NewJobRepository(db, clk.Now)

	sender := bot.NewSender(api, log)
	l := ledger.New(sessions, clk, log)
	p := planner.New(database.NewGoalRepository(db), database.NewStepRepository(db), l, log)
	st := settings.NewService(database.NewSettingsRepository(db), cfg.Timezone)
	gate := reminder.NewGate(database.NewReminderStateRepository(db), l, sender, windows, log)
	queue := jobs.NewQueue(jobStore, ident.UUID{}, clk, log)
	reporter := report.New(l, p, blockers, st, ai.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model), clk, log)
	weekly := report.NewScheduler(reporter, queue, sender)

	svc := bot.Services{
		Ledger:   l,
		Planner:  p,
		Advisor:  blocker.NewAdvisor(blockers, log),
		Gate:     gate,
		Settings: st,
		Queue:    queue,
		Reporter: reporter,
		Weekly:   weekly,
		Exporter: excel.NewExporter(l, sessions, excel.DefaultExportConfig()),
		Importer: excel.NewImporter(sessions, excel.DefaultImportConfig()),
		Events:   database.NewEventRepository(db),
	}

	registry := jobs.NewRegistry()
	registry.Register(models.JobTypePing, jobs.PingHandler(log))
	registry.Register(models.JobTypeReminder, jobs.ReminderHandler(sender))
	registry.Register(models.JobTypeNudge, jobs.NudgeHandler(l, st, clk, sender, windows.SnoozeMinutes))
	registry.Register(models.JobTypeWeeklySummary, weekly.Handler())

	return &App{
		DB:       db,
		Services: svc,
		Bot: bot.New(api, sender, svc, clk, log, bot.Options{
			OwnerID:        cfg.OwnerID,
			SnoozeMinutes:  windows.SnoozeMinutes,
			RequestTimeout: cfg.Scheduler.HandlerTimeout,
		}),
		Jobs: jobs.NewScheduler(jobStore, registry, clk, log, jobs.Options{
			Interval:       cfg.Scheduler.Interval,
			HandlerTimeout: cfg.Scheduler.HandlerTimeout,
		}),
		Periodic: scheduler.New(st, gate, weekly, clk, log, cfg.Scheduler.ReminderInterval),
		ownerID:  cfg.OwnerID,
		log:      log,
	}, nil
}

// Prepare makes the configured owner known so reminders run before the
// first message arrives.
func (a *App) Prepare(ctx context.Context) error {
	if _, err := a.Services.Settings.Get(ctx, a.ownerID); err != nil {
		return fmt.Errorf("owner settings: %w", err)
	}
	if _, err := a.Services.Weekly.Ensure(ctx, a.ownerID); err != nil {
		return fmt.Errorf("weekly summary: %w", err)
	}
	return nil
}

// Run starts the background loops and then receives updates until ctx ends.
// Handlers and job ticks run on a context that outlives ctx and is only
// cancelled by Shutdown, so work in flight when ctx ends can finish.
func (a *App) Run(ctx context.Context) error {
	if err := a.Prepare(ctx); err != nil {
		return err
	}
	work, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.mu.Lock()
	a.cancelWork = cancel
	a.mu.Unlock()

	a.Jobs.Start(work)
	if err := a.Periodic.Start(work); err != nil {
		a.Jobs.Stop()
		cancel()
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- a.Bot.Start(work) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		return err
	}
}

// Shutdown stops the bot first, then the schedulers, waiting for work in
// flight before cancelling its context.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Bot.Stop(ctx)
	a.Periodic.Stop()
	a.Jobs.Stop()

	a.mu.Lock()
	if a.cancelWork != nil {
		a.cancelWork()
	}
	a.mu.Unlock()
	a.log.Info("application stopped")
	return err
}

func (a *App) Close() error {
	return a.DB.Close()
}
