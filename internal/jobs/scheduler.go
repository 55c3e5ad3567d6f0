// Package jobs runs persisted deferred jobs. A single polling loop asks the
// store for due jobs and hands each to the handler registered for its type.
// Delivery is at-least-once: a crash between a handler returning and the job
// being marked done runs the job again on the next start.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/pkg/models"
)

// ReasonNoHandler is recorded for jobs of an unregistered type
const ReasonNoHandler = "no handler"

// Handler executes one job. A returned error marks the job failed.
type Handler func(ctx context.Context, job models.ScheduledJob) error

// Store is the part of the deferred job store the scheduler drives
type Store interface {
	ListDue(ctx context.Context, now time.Time) ([]models.ScheduledJob, error)
	MarkDone(ctx context.Context, jobID string) (bool, error)
	MarkFailed(ctx context.Context, jobID, reason string) (bool, error)
}

// Registry maps job types to handlers
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register installs or replaces the handler for jobType
func (r *Registry) Register(jobType string, h Handler) {
	r.mu.Lock()
	r.handlers[jobType] = h
	r.mu.Unlock()
}

func (r *Registry) lookup(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Options tune the loop
type Options struct {
	Interval       time.Duration
	HandlerTimeout time.Duration // zero means no timeout
}

// Scheduler is the polling loop
type Scheduler struct {
	store    Store
	registry *Registry
	clock    clock.Clock
	log      *zap.SugaredLogger
	opts     Options

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. The registry may gain handlers later.
func NewScheduler(store Store, registry *Registry, clk clock.Clock, log *zap.SugaredLogger, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	return &Scheduler{
		store:    store,
		registry: registry,
		clock:    clk,
		log:      log,
		opts:     opts,
		stop:     make(chan struct{}),
	}
}

// Register installs or replaces a handler
func (s *Scheduler) Register(jobType string, h Handler) {
	s.registry.Register(jobType, h)
}

// Start launches the loop. It ticks immediately, then every interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop asks the loop to exit and waits for the tick in progress to finish.
// Jobs not reached stay pending.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.log.Infow("job scheduler started", "interval", s.opts.Interval)
	for {
		s.Tick(ctx)
		select {
		case <-s.stop:
			s.log.Info("job scheduler stopping")
			return
		case <-ctx.Done():
			s.log.Info("context canceled, job scheduler exiting")
			return
		case <-ticker.C:
		}
	}
}

// Tick processes every job due at the current instant, in due order, and
// returns how many were handled. Store failures are logged and end the tick.
func (s *Scheduler) Tick(ctx context.Context) int {
	due, err := s.store.ListDue(ctx, s.clock.Now())
	if err != nil {
		s.log.Errorw("list due jobs", "error", err)
		return 0
	}

	processed := 0
	for _, job := range due {
		if ctx.Err() != nil {
			break
		}
		s.process(ctx, job)
		processed++
	}
	return processed
}

func (s *Scheduler) process(ctx context.Context, job models.ScheduledJob) {
	log := s.log.With("job_id", job.ID, "job_type", job.Type, "owner_id", job.OwnerID)

	h, ok := s.registry.lookup(job.Type)
	if !ok {
		log.Warn("no handler registered")
		s.finish(ctx, log, job, ReasonNoHandler)
		return
	}

	if err := s.invoke(ctx, h, job); err != nil {
		log.Warnw("job failed", "error", err)
		s.finish(ctx, log, job, err.Error())
		return
	}
	s.finish(ctx, log, job, "")
}

// finish records the outcome. An empty reason means done.
func (s *Scheduler) finish(ctx context.Context, log *zap.SugaredLogger, job models.ScheduledJob, reason string) {
	var (
		moved bool
		err   error
	)
	if reason == "" {
		moved, err = s.store.MarkDone(ctx, job.ID)
	} else {
		moved, err = s.store.MarkFailed(ctx, job.ID, reason)
	}
	switch {
	case err != nil:
		log.Errorw("record job outcome", "error", err)
	case !moved:
		log.Debug("job left pending state concurrently")
	case reason == "":
		log.Debug("job done")
	}
}

// invoke runs h with the handler timeout and turns a panic into an error.
func (s *Scheduler) invoke(ctx context.Context, h Handler, job models.ScheduledJob) (err error) {
	if s.opts.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.HandlerTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}
