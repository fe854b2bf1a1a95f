package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quantbay/tradebot/internal/domain"
)

// StrategyRunner starts and stops the active strategy. Satisfied by the
// strategy engine.
type StrategyRunner interface {
	Start(ctx context.Context, cfg domain.StrategyConfig) error
	Stop() error
}

// SquareOffAller closes every open position in a book. Satisfied by the
// order router.
type SquareOffAller interface {
	SquareOffAll(ctx context.Context, book domain.Book, reason domain.ExitReason, source domain.IntentSource) error
}

// DayArchiver exports one day's ledger to cold storage. Satisfied by
// the S3 archiver; nil disables archival.
type DayArchiver interface {
	ArchiveDay(ctx context.Context, day time.Time) error
}

// Scheduler drives the daily trading cycle: start the configured
// strategy at the session start time, stop it at the stop time, and
// square off everything at end of day. Each action fires at most once
// per calendar date, keyed in the configured timezone, so restarts and
// clock polls inside the window do not repeat it.
type Scheduler struct {
	engine   StrategyRunner
	router   SquareOffAller
	archiver DayArchiver
	auto     *domain.StrategyConfig
	trade    domain.Book
	logger   *slog.Logger

	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	sched   domain.Schedule
	loc     *time.Location
	firedOn map[string]string
}

func NewScheduler(sched domain.Schedule, loc *time.Location, engine StrategyRunner, router SquareOffAller, archiver DayArchiver, auto *domain.StrategyConfig, trade domain.Book, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		sched:    sched,
		loc:      loc,
		engine:   engine,
		router:   router,
		archiver: archiver,
		auto:     auto,
		trade:    trade,
		logger:   logger.With(slog.String("component", "scheduler")),
		interval: 10 * time.Second,
		now:      time.Now,
		firedOn:  make(map[string]string),
	}
}

// Run polls the clock until cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	sched := s.Schedule()
	s.logger.Info("scheduler started",
		slog.String("start", sched.Start.String()),
		slog.String("stop", sched.Stop.String()),
		slog.Bool("square_off_eod", sched.SquareOffEOD),
		slog.String("timezone", sched.Timezone))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates the schedule against the current wall clock.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	sched := s.sched
	loc := s.loc
	s.mu.Unlock()

	now := s.now().In(loc)
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return
	}
	date := now.Format("2006-01-02")

	// Stop is checked first so a boot after hours does not start a
	// strategy only to kill it on the same tick.
	if sched.Stop.Reached(now) {
		if s.fireOnce("stop", date) {
			s.stopDay(ctx, sched, loc)
		}
		return
	}

	if sched.Start.Reached(now) && s.fireOnce("start", date) {
		s.startDay(ctx)
	}
}

// fireOnce records the action for the date and reports whether this
// call was the one that fired it.
func (s *Scheduler) fireOnce(action, date string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firedOn[action] == date {
		return false
	}
	s.firedOn[action] = date
	return true
}

func (s *Scheduler) startDay(ctx context.Context) {
	if s.auto == nil {
		s.logger.Info("session start, no auto strategy configured")
		return
	}
	if err := s.engine.Start(ctx, *s.auto); err != nil {
		s.logger.Error("scheduled strategy start failed",
			slog.String("strategy", string(s.auto.Type)),
			slog.String("error", err.Error()))
		return
	}
	s.logger.Info("scheduled strategy started", slog.String("strategy", string(s.auto.Type)))
}

func (s *Scheduler) stopDay(ctx context.Context, sched domain.Schedule, loc *time.Location) {
	if err := s.engine.Stop(); err != nil && !errors.Is(err, domain.ErrNoActiveStrategy) {
		s.logger.Error("scheduled strategy stop failed", slog.String("error", err.Error()))
	} else {
		s.logger.Info("scheduled strategy stopped")
	}

	if sched.SquareOffEOD {
		if err := s.router.SquareOffAll(ctx, s.trade, domain.ExitEOD, domain.SourceSchedule); err != nil {
			s.logger.Error("eod square off failed", slog.String("error", err.Error()))
		} else {
			s.logger.Info("eod square off complete")
		}
	}

	if s.archiver != nil {
		if err := s.archiver.ArchiveDay(ctx, s.now().In(loc)); err != nil {
			s.logger.Error("eod archive failed", slog.String("error", err.Error()))
		}
	}
}

// Schedule returns the schedule currently in effect.
func (s *Scheduler) Schedule() domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched
}

// SetSchedule replaces the schedule as a whole. The next Tick evaluates
// the new times; actions already fired today stay fired.
func (s *Scheduler) SetSchedule(sched domain.Schedule) error {
	for _, t := range []domain.TimeOfDay{sched.Start, sched.Stop} {
		if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
			return fmt.Errorf("service: set schedule: time %s out of range: %w", t, domain.ErrValidation)
		}
	}
	if sched.Start.Minutes() >= sched.Stop.Minutes() {
		return fmt.Errorf("service: set schedule: start %s must be before stop %s: %w",
			sched.Start, sched.Stop, domain.ErrValidation)
	}

	var loc *time.Location
	if sched.Timezone != "" {
		l, err := time.LoadLocation(sched.Timezone)
		if err != nil {
			return fmt.Errorf("service: set schedule: timezone %q: %w", sched.Timezone, domain.ErrValidation)
		}
		loc = l
	}

	s.mu.Lock()
	s.sched = sched
	if loc != nil {
		s.loc = loc
	}
	s.mu.Unlock()

	s.logger.Info("schedule updated",
		slog.String("start", sched.Start.String()),
		slog.String("stop", sched.Stop.String()),
		slog.Bool("square_off_eod", sched.SquareOffEOD),
		slog.String("timezone", sched.Timezone))
	return nil
}
