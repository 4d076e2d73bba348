package job

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls     atomic.Int32
	schedules []*models.ScheduleWithTimezone
	err       error
	panicMsg  string
	called    chan struct{}
}

func (f *fakeSource) ListActiveWithTimezone(ctx context.Context) ([]*models.ScheduleWithTimezone, error) {
	f.calls.Add(1)
	if f.called != nil {
		select {
		case f.called <- struct{}{}:
		default:
		}
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.schedules, f.err
}

type fakeDispatcher struct {
	mu   sync.Mutex
	seen []int64
	fn   func(ctx context.Context, due models.DueSchedule) error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, due models.DueSchedule) error {
	f.mu.Lock()
	f.seen = append(f.seen, due.ScheduleID)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, due)
	}
	return nil
}

func (f *fakeDispatcher) ids() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.seen...)
}

type fakeLock struct {
	ok       bool
	err      error
	released atomic.Int32
}

func (l *fakeLock) TryAcquire(ctx context.Context) (bool, error) { return l.ok, l.err }
func (l *fakeLock) Release(ctx context.Context) error {
	l.released.Add(1)
	return nil
}

func schedule(id int64, expr, tz string) *models.ScheduleWithTimezone {
	return &models.ScheduleWithTimezone{
		Schedule: models.PostingSchedule{ID: id, UserDid: "did:plc:u", CronExpression: expr, Active: true},
		Timezone: tz,
	}
}

// newTickingScheduler returns a scheduler whose tick can be driven by hand.
func newTickingScheduler(src ScheduleSource, d *fakeDispatcher, lock TickLock, now time.Time) *Scheduler {
	s := NewScheduler(src, d, Options{Interval: 5 * time.Minute, Concurrency: 4, Grace: time.Second, Lock: lock})
	s.now = func() time.Time { return now }
	s.running = true
	s.lastGlobalCheck = now.Add(-5 * time.Minute)
	return s
}

func TestScheduler_TickDispatchesDueSchedules(t *testing.T) {
	src := &fakeSource{schedules: []*models.ScheduleWithTimezone{
		schedule(1, "0 9 * * *", "UTC"),
		schedule(2, "0 10 * * *", "UTC"),
		schedule(3, "bogus", "UTC"),
		schedule(4, "*/5 * * * *", "UTC"),
	}}
	d := &fakeDispatcher{}
	s := newTickingScheduler(src, d, nil, at(9, 3))

	s.tick(context.Background())

	assert.ElementsMatch(t, []int64{1, 4}, d.ids())
	st := s.Status()
	assert.Equal(t, at(9, 3), st.LastCheck)
	assert.Equal(t, 2, st.LastDueCount)
}

func TestScheduler_SecondTickDoesNotRedispatch(t *testing.T) {
	src := &fakeSource{schedules: []*models.ScheduleWithTimezone{schedule(1, "0 9 * * *", "UTC")}}
	d := &fakeDispatcher{}
	s := newTickingScheduler(src, d, nil, at(9, 5))
	s.lastGlobalCheck = at(8, 55)

	s.tick(context.Background())
	s.now = func() time.Time { return at(9, 10) }
	s.tick(context.Background())

	assert.Equal(t, []int64{1}, d.ids())
}

func TestScheduler_FailuresAreIsolated(t *testing.T) {
	src := &fakeSource{schedules: []*models.ScheduleWithTimezone{
		schedule(1, "0 9 * * *", "UTC"),
		schedule(2, "0 9 * * *", "UTC"),
		schedule(3, "0 9 * * *", "UTC"),
	}}
	d := &fakeDispatcher{fn: func(ctx context.Context, due models.DueSchedule) error {
		switch due.ScheduleID {
		case 1:
			return errors.New("network down")
		case 2:
			panic("boom")
		}
		return nil
	}}
	s := newTickingScheduler(src, d, nil, at(9, 3))

	require.NotPanics(t, func() { s.tick(context.Background()) })

	assert.ElementsMatch(t, []int64{1, 2, 3}, d.ids())
	assert.Equal(t, at(9, 3), s.Status().LastCheck)
}

func TestScheduler_ListFailureKeepsWindow(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}
	s := newTickingScheduler(src, &fakeDispatcher{}, nil, at(9, 3))
	before := s.Status().LastCheck

	s.tick(context.Background())

	assert.Equal(t, before, s.Status().LastCheck)
}

func TestScheduler_SkipsTickWithoutLock(t *testing.T) {
	src := &fakeSource{schedules: []*models.ScheduleWithTimezone{schedule(1, "0 9 * * *", "UTC")}}
	d := &fakeDispatcher{}
	held := &fakeLock{ok: false}
	s := newTickingScheduler(src, d, held, at(9, 3))

	s.tick(context.Background())

	assert.Equal(t, int32(0), src.calls.Load())
	assert.Empty(t, d.ids())
	assert.Equal(t, int32(0), held.released.Load())

	broken := &fakeLock{err: errors.New("redis down")}
	s.opts.Lock = broken
	s.tick(context.Background())
	assert.Equal(t, int32(0), src.calls.Load())
}

func TestScheduler_ReleasesTickLock(t *testing.T) {
	src := &fakeSource{}
	l := &fakeLock{ok: true}
	s := newTickingScheduler(src, &fakeDispatcher{}, l, at(9, 3))

	s.tick(context.Background())

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, int32(1), l.released.Load())
}

func TestScheduler_StartRunsImmediateTick(t *testing.T) {
	src := &fakeSource{called: make(chan struct{}, 1)}
	s := NewScheduler(src, &fakeDispatcher{}, Options{Interval: time.Hour, Concurrency: 1, Grace: time.Second})
	start := time.Now()

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	select {
	case <-src.called:
	case <-time.After(2 * time.Second):
		t.Fatal("no immediate tick")
	}
	assert.True(t, s.Status().Running)

	s.Stop(context.Background())
	st := s.Status()
	assert.False(t, st.Running)
	assert.False(t, st.LastCheck.Before(start.Add(-time.Hour)))
}

func TestScheduler_PanicInTickIsRecovered(t *testing.T) {
	src := &fakeSource{panicMsg: "list exploded", called: make(chan struct{}, 1)}
	s := NewScheduler(src, &fakeDispatcher{}, Options{Interval: time.Hour, Concurrency: 1, Grace: time.Second})

	require.NoError(t, s.Start(context.Background()))
	select {
	case <-src.called:
	case <-time.After(2 * time.Second):
		t.Fatal("no immediate tick")
	}

	s.Stop(context.Background())
	assert.False(t, s.Status().Running)
}

func TestScheduler_StopCancelsAfterGrace(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	d := &fakeDispatcher{fn: func(ctx context.Context, due models.DueSchedule) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}}
	src := &fakeSource{schedules: []*models.ScheduleWithTimezone{schedule(1, "* * * * *", "UTC")}}
	s := NewScheduler(src, d, Options{Interval: time.Hour, Concurrency: 1, Grace: 20 * time.Millisecond})
	s.now = func() time.Time { return at(9, 3) }

	require.NoError(t, s.Start(context.Background()))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never started")
	}

	s.Stop(context.Background())

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight dispatch was not cancelled after the grace period")
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s := NewScheduler(&fakeSource{}, &fakeDispatcher{}, Options{Interval: time.Minute})
	s.Stop(context.Background())
	assert.False(t, s.Status().Running)
}
