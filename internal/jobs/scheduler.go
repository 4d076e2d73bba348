package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/service"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

var ErrAlreadyRunning = errors.New("scheduler already running")

// ScheduleSource lists the schedules evaluated on every tick.
type ScheduleSource interface {
	ListActiveWithTimezone(ctx context.Context) ([]*models.ScheduleWithTimezone, error)
}

// TickLock keeps instances sharing a database from ticking at the same time.
type TickLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Options struct {
	Interval    time.Duration
	Concurrency int
	Grace       time.Duration
	Lock        TickLock // optional
}

type Status struct {
	Running          bool          `json:"running"`
	LastCheck        time.Time     `json:"last_check"`
	LastTickDuration time.Duration `json:"last_tick_duration"`
	LastDueCount     int           `json:"last_due_count"`
}

// Scheduler polls the active schedules on a fixed interval and dispatches
// every schedule with an occurrence in the window since the previous tick.
type Scheduler struct {
	schedules  ScheduleSource
	dispatcher service.Dispatcher
	opts       Options
	now        func() time.Time
	log        *slog.Logger

	mu               sync.Mutex
	cron             *cron.Cron
	cancel           context.CancelFunc
	running          bool
	lastGlobalCheck  time.Time
	lastTickDuration time.Duration
	lastDueCount     int

	inflight sync.WaitGroup
}

func NewScheduler(schedules ScheduleSource, dispatcher service.Dispatcher, opts Options) *Scheduler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Scheduler{
		schedules:  schedules,
		dispatcher: dispatcher,
		opts:       opts,
		now:        time.Now,
		log:        slog.With("component", "scheduler"),
	}
}

// Start arms the poll timer and runs the first tick right away.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	baseCtx, cancel := context.WithCancel(ctx)
	logger := cronLogger{l: s.log}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	id, err := c.AddFunc(fmt.Sprintf("@every %s", s.opts.Interval), func() { s.tick(baseCtx) })
	if err != nil {
		cancel()
		return fmt.Errorf("arm scheduler: %w", err)
	}
	// The wrapped job shares the SkipIfStillRunning guard with the timer.
	first := c.Entry(id).WrappedJob

	s.lastGlobalCheck = s.now().Add(-s.opts.Interval)
	s.cron = c
	s.cancel = cancel
	s.running = true

	c.Start()
	go first.Run()

	s.log.Info("scheduler started", "interval", s.opts.Interval, "concurrency", s.opts.Concurrency)
	return nil
}

// Stop disarms the timer and waits up to the grace period for in-flight
// dispatches. Work still running afterwards has its context cancelled.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c, cancel := s.cron, s.cancel
	s.running = false
	s.mu.Unlock()

	cronDone := c.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.inflight.Wait()
		close(done)
	}()

	grace := time.NewTimer(s.opts.Grace)
	defer grace.Stop()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-grace.C:
		s.log.Warn("grace period elapsed, abandoning in-flight dispatches", "grace", s.opts.Grace)
	case <-ctx.Done():
		s.log.Warn("scheduler stop interrupted", "error", ctx.Err())
	}
	cancel()
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Running:          s.running,
		LastCheck:        s.lastGlobalCheck,
		LastTickDuration: s.lastTickDuration,
		LastDueCount:     s.lastDueCount,
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	since := s.lastGlobalCheck
	s.mu.Unlock()
	defer s.inflight.Done()

	start := s.now()

	if s.opts.Lock != nil {
		ok, err := s.opts.Lock.TryAcquire(ctx)
		if err != nil {
			s.log.Error("tick lock unavailable, skipping tick", "error", err)
			return
		}
		if !ok {
			s.log.Debug("another instance holds the tick lock, skipping tick")
			return
		}
		defer func() {
			if err := s.opts.Lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("failed to release tick lock", "error", err)
			}
		}()
	}

	schedules, err := s.schedules.ListActiveWithTimezone(ctx)
	if err != nil {
		// The window is not advanced so the next tick covers this one too.
		s.log.Error("failed to list active schedules", "error", err)
		return
	}

	due := s.collectDue(schedules, since, start)

	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)
	for _, d := range due {
		g.Go(func() error {
			s.dispatch(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	s.lastGlobalCheck = start
	s.lastTickDuration = s.now().Sub(start)
	s.lastDueCount = len(due)
	s.mu.Unlock()

	if len(due) > 0 {
		s.log.Info("tick complete", "due", len(due), "active", len(schedules), "window_start", since, "window_end", start)
	}
}

func (s *Scheduler) collectDue(schedules []*models.ScheduleWithTimezone, since, now time.Time) []models.DueSchedule {
	var due []models.DueSchedule
	for _, sw := range schedules {
		occurrence, ok, err := IsDue(sw.Schedule.CronExpression, sw.Timezone, since, sw.Schedule.LastExecuted, now)
		if err != nil {
			s.log.Warn("skipping unparseable schedule", "schedule_id", sw.Schedule.ID, "error", err)
			continue
		}
		if ok {
			due = append(due, models.DueSchedule{
				ScheduleID: sw.Schedule.ID,
				UserDid:    sw.Schedule.UserDid,
				Occurrence: occurrence,
			})
		}
	}
	return due
}

// dispatch runs one due schedule. Failures and panics stay with that schedule.
func (s *Scheduler) dispatch(ctx context.Context, due models.DueSchedule) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("dispatch panicked", "schedule_id", due.ScheduleID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if err := s.dispatcher.Dispatch(ctx, due); err != nil {
		s.log.Warn("dispatch failed", "schedule_id", due.ScheduleID, "user_did", due.UserDid, "error", err)
	}
}
