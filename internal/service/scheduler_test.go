package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbay/tradebot/internal/domain"
)

type fakeRunner struct {
	starts []domain.StrategyConfig
	stops  int
	active bool
}

func (r *fakeRunner) Start(_ context.Context, cfg domain.StrategyConfig) error {
	r.starts = append(r.starts, cfg)
	r.active = true
	return nil
}

func (r *fakeRunner) Stop() error {
	r.stops++
	if !r.active {
		return domain.ErrNoActiveStrategy
	}
	r.active = false
	return nil
}

type fakeSquareOffAll struct {
	calls []domain.ExitReason
}

func (f *fakeSquareOffAll) SquareOffAll(_ context.Context, _ domain.Book, reason domain.ExitReason, _ domain.IntentSource) error {
	f.calls = append(f.calls, reason)
	return nil
}

type fakeArchiver struct {
	days []time.Time
}

func (a *fakeArchiver) ArchiveDay(_ context.Context, day time.Time) error {
	a.days = append(a.days, day)
	return nil
}

func mustTOD(t *testing.T, s string) domain.TimeOfDay {
	t.Helper()
	tod, err := domain.ParseTimeOfDay(s)
	require.NoError(t, err)
	return tod
}

type schedFixture struct {
	scheduler *Scheduler
	runner    *fakeRunner
	router    *fakeSquareOffAll
	archiver  *fakeArchiver
	clock     time.Time
}

func newSchedFixture(t *testing.T, auto *domain.StrategyConfig) *schedFixture {
	t.Helper()
	sched := domain.Schedule{
		Start:        mustTOD(t, "09:20"),
		Stop:         mustTOD(t, "15:25"),
		SquareOffEOD: true,
		Timezone:     "UTC",
	}
	f := &schedFixture{
		runner:   &fakeRunner{},
		router:   &fakeSquareOffAll{},
		archiver: &fakeArchiver{},
	}
	f.scheduler = NewScheduler(sched, time.UTC, f.runner, f.router, f.archiver, auto, domain.BookPaper, testLogger())
	f.scheduler.now = func() time.Time { return f.clock }
	return f
}

func autoCfg() *domain.StrategyConfig {
	return &domain.StrategyConfig{Type: domain.StrategySMACrossover, Symbols: []string{"NIFTY24AUGFUT"}, Qty: 75}
}

// 2026-08-28 is a Friday.
func tradingDay(hour, minute int) time.Time {
	return time.Date(2026, 8, 28, hour, minute, 0, 0, time.UTC)
}

func TestSchedulerStartsOncePerDay(t *testing.T) {
	f := newSchedFixture(t, autoCfg())

	f.clock = tradingDay(9, 0)
	f.scheduler.Tick(context.Background())
	assert.Empty(t, f.runner.starts, "before the start time nothing fires")

	f.clock = tradingDay(9, 20)
	f.scheduler.Tick(context.Background())
	f.clock = tradingDay(9, 21)
	f.scheduler.Tick(context.Background())
	f.clock = tradingDay(12, 0)
	f.scheduler.Tick(context.Background())

	assert.Len(t, f.runner.starts, 1, "start fires once for the date")
	assert.Equal(t, domain.StrategySMACrossover, f.runner.starts[0].Type)
}

func TestSchedulerStopSequence(t *testing.T) {
	f := newSchedFixture(t, autoCfg())

	f.clock = tradingDay(9, 20)
	f.scheduler.Tick(context.Background())
	require.Len(t, f.runner.starts, 1)

	f.clock = tradingDay(15, 25)
	f.scheduler.Tick(context.Background())
	f.clock = tradingDay(15, 26)
	f.scheduler.Tick(context.Background())

	assert.Equal(t, 1, f.runner.stops)
	require.Len(t, f.router.calls, 1)
	assert.Equal(t, domain.ExitEOD, f.router.calls[0])
	require.Len(t, f.archiver.days, 1)
	assert.Equal(t, 28, f.archiver.days[0].Day())
}

func TestSchedulerBootAfterHoursNeverStarts(t *testing.T) {
	f := newSchedFixture(t, autoCfg())

	// First tick of the day arrives after the stop time: the stop path
	// runs and the start is suppressed for the rest of the day.
	f.clock = tradingDay(16, 0)
	f.scheduler.Tick(context.Background())
	f.clock = tradingDay(16, 1)
	f.scheduler.Tick(context.Background())

	assert.Empty(t, f.runner.starts)
	assert.Equal(t, 1, f.runner.stops, "idle engine stop is tolerated")
	assert.Len(t, f.router.calls, 1)
}

func TestSchedulerSkipsWeekends(t *testing.T) {
	f := newSchedFixture(t, autoCfg())

	// 2026-08-29 is a Saturday, 2026-08-30 a Sunday.
	f.clock = time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	f.scheduler.Tick(context.Background())
	f.clock = time.Date(2026, 8, 30, 16, 0, 0, 0, time.UTC)
	f.scheduler.Tick(context.Background())

	assert.Empty(t, f.runner.starts)
	assert.Zero(t, f.runner.stops)
	assert.Empty(t, f.router.calls)
}

func TestSchedulerFiresAgainNextDay(t *testing.T) {
	f := newSchedFixture(t, autoCfg())

	f.clock = tradingDay(9, 20)
	f.scheduler.Tick(context.Background())
	f.clock = tradingDay(15, 25)
	f.scheduler.Tick(context.Background())

	// Monday 2026-08-31.
	f.clock = time.Date(2026, 8, 31, 9, 20, 0, 0, time.UTC)
	f.scheduler.Tick(context.Background())
	f.clock = time.Date(2026, 8, 31, 15, 25, 0, 0, time.UTC)
	f.scheduler.Tick(context.Background())

	assert.Len(t, f.runner.starts, 2)
	assert.Equal(t, 2, f.runner.stops)
	assert.Len(t, f.router.calls, 2)
}

func TestSchedulerNoAutoStrategy(t *testing.T) {
	f := newSchedFixture(t, nil)

	f.clock = tradingDay(9, 20)
	f.scheduler.Tick(context.Background())
	assert.Empty(t, f.runner.starts, "no auto strategy means start is a no-op")

	f.clock = tradingDay(15, 25)
	f.scheduler.Tick(context.Background())
	assert.Len(t, f.router.calls, 1, "square-off still runs at the stop")
}

func TestSchedulerNilArchiver(t *testing.T) {
	sched := domain.Schedule{Start: mustTOD(t, "09:20"), Stop: mustTOD(t, "15:25"), SquareOffEOD: false, Timezone: "UTC"}
	runner := &fakeRunner{}
	router := &fakeSquareOffAll{}
	s := NewScheduler(sched, time.UTC, runner, router, nil, nil, domain.BookPaper, testLogger())
	s.now = func() time.Time { return tradingDay(15, 30) }

	s.Tick(context.Background())
	assert.Empty(t, router.calls, "square-off disabled")
}

func TestSchedulerSetScheduleValidation(t *testing.T) {
	f := newSchedFixture(t, autoCfg())

	err := f.scheduler.SetSchedule(domain.Schedule{
		Start: domain.TimeOfDay{Hour: 25}, Stop: mustTOD(t, "15:25"),
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	err = f.scheduler.SetSchedule(domain.Schedule{
		Start: mustTOD(t, "15:25"), Stop: mustTOD(t, "09:20"),
	})
	require.ErrorIs(t, err, domain.ErrValidation, "start must precede stop")

	err = f.scheduler.SetSchedule(domain.Schedule{
		Start: mustTOD(t, "09:20"), Stop: mustTOD(t, "15:25"), Timezone: "Mars/Olympus",
	})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestSchedulerSetScheduleTakesEffectNextTick(t *testing.T) {
	f := newSchedFixture(t, autoCfg())

	f.clock = tradingDay(10, 0)
	f.scheduler.Tick(context.Background())
	require.Len(t, f.runner.starts, 1)

	// Pull the stop forward to 11:00: the very next tick past it fires.
	require.NoError(t, f.scheduler.SetSchedule(domain.Schedule{
		Start:        mustTOD(t, "09:20"),
		Stop:         mustTOD(t, "11:00"),
		SquareOffEOD: true,
		Timezone:     "UTC",
	}))
	assert.Equal(t, mustTOD(t, "11:00"), f.scheduler.Schedule().Stop)

	f.clock = tradingDay(11, 1)
	f.scheduler.Tick(context.Background())
	assert.Equal(t, 1, f.runner.stops)
	assert.Len(t, f.router.calls, 1)

	// The start already fired today and stays fired.
	f.clock = tradingDay(11, 5)
	f.scheduler.Tick(context.Background())
	assert.Len(t, f.runner.starts, 1)
}
