package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

type mockWorker struct {
	*BaseWorker
	runCount int32
	runFunc  func(ctx context.Context) error
}

func newMockWorker(name string, interval time.Duration, enabled bool) *mockWorker {
	return &mockWorker{BaseWorker: NewBaseWorker(name, interval, enabled)}
}

func (m *mockWorker) Run(ctx context.Context) error {
	atomic.AddInt32(&m.runCount, 1)
	if m.runFunc != nil {
		return m.runFunc(ctx)
	}
	return nil
}

func (m *mockWorker) runs() int {
	return int(atomic.LoadInt32(&m.runCount))
}

func TestScheduler_RunsImmediatelyThenOnTicker(t *testing.T) {
	s := NewScheduler(logger.NewNop())
	w := newMockWorker("ticker", 50*time.Millisecond, true)
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return w.runs() >= 3 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}

func TestScheduler_DisabledWorkerNeverRuns(t *testing.T) {
	s := NewScheduler(logger.NewNop())
	on := newMockWorker("on", 20*time.Millisecond, true)
	off := newMockWorker("off", 20*time.Millisecond, false)
	s.RegisterWorker(on)
	s.RegisterWorker(off)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return on.runs() > 0 }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Equal(t, 0, off.runs())
}

func TestScheduler_StartTwiceAndStopUnstarted(t *testing.T) {
	s := NewScheduler(logger.NewNop())
	assert.Error(t, s.Stop())

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}

func TestScheduler_RegisterAfterStartIgnored(t *testing.T) {
	s := NewScheduler(logger.NewNop())
	s.RegisterWorker(newMockWorker("first", time.Hour, true))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.RegisterWorker(newMockWorker("late", time.Hour, true))
	assert.Len(t, s.GetWorkers(), 1)
}

func TestScheduler_RecordsHealth(t *testing.T) {
	s := NewScheduler(logger.NewNop())

	failing := newMockWorker("failing", time.Hour, true)
	failing.runFunc = func(context.Context) error { return errors.ErrUnavailable }
	ok := newMockWorker("ok", time.Hour, true)

	s.RegisterWorker(failing)
	s.RegisterWorker(ok)
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return failing.Health().RunCount == 1 && ok.Health().RunCount == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())

	health := s.Health()
	require.Len(t, health, 2)
	assert.Equal(t, "failing", health[0].Name)
	assert.Equal(t, int64(1), health[0].ErrorCount)
	assert.Contains(t, health[0].LastError, "service unavailable")
	assert.Equal(t, int64(0), health[1].ErrorCount)
	assert.Empty(t, health[1].LastError)
}

func TestScheduler_PanicIsContained(t *testing.T) {
	s := NewScheduler(logger.NewNop())
	w := newMockWorker("panicky", 20*time.Millisecond, true)
	w.runFunc = func(context.Context) error { panic("boom") }
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return w.runs() >= 2 }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())

	assert.GreaterOrEqual(t, w.Health().ErrorCount, int64(2))
	assert.Contains(t, w.Health().LastError, "boom")
}

func TestScheduler_StopTimesOut(t *testing.T) {
	s := NewScheduler(logger.NewNop())
	s.shutdownTimeout = 20 * time.Millisecond

	release := make(chan struct{})
	defer close(release)

	w := newMockWorker("stuck", time.Hour, true)
	w.runFunc = func(context.Context) error { <-release; return nil }
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return w.runs() == 1 }, time.Second, 5*time.Millisecond)

	err := s.Stop()
	assert.True(t, errors.Is(err, errors.ErrTimeout))
}

func TestWorkerHealth_Stale(t *testing.T) {
	now := time.Now()
	h := WorkerHealth{Enabled: true, LastRun: now.Add(-10 * time.Second)}

	assert.True(t, h.Stale(time.Second, now))
	assert.False(t, h.Stale(time.Minute, now))
	assert.False(t, WorkerHealth{Enabled: true}.Stale(time.Second, now))
	assert.False(t, WorkerHealth{LastRun: now.Add(-time.Hour)}.Stale(time.Second, now))
}

func TestScheduler_CheckStale(t *testing.T) {
	s := NewScheduler(logger.NewNop())
	w := newMockWorker("monitor", time.Millisecond, true)
	s.RegisterWorker(w)

	assert.NoError(t, s.CheckStale(context.Background()), "never ran is not stale")

	w.RecordRun(time.Microsecond)
	time.Sleep(10 * time.Millisecond)

	err := s.CheckStale(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
	assert.Contains(t, err.Error(), "monitor")
}
