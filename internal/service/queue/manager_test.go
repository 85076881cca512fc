package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/domain/event"
	"github.com/otaupdater/ota-download-manager/internal/domain/service"
	"github.com/otaupdater/ota-download-manager/internal/service/executor"
)

func TestManager_AdmitsOneAtATime(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	b := h.enqueue(t, "b.zip")

	require.Equal(t, 1, h.runners.Count())
	assert.Equal(t, domain.StatusStarting, h.status(t, a))
	assert.Equal(t, domain.StatusQueued, h.status(t, b))
	assert.Equal(t, []int64{b}, h.m.Pending())
	assert.Equal(t, 1, h.m.ActiveCount())

	ra := h.runners.Last()
	assert.True(t, ra.started.Load())
	ra.begin()
	assert.Equal(t, domain.StatusRunning, h.status(t, a))
	assert.True(t, h.wake.Held())

	ra.progress(100)
	ra.finish(domain.StatusCompleted, domain.OutcomeFinished)

	assert.Equal(t, domain.StatusCompleted, h.status(t, a))
	require.Equal(t, 2, h.runners.Count())
	assert.Equal(t, domain.StatusStarting, h.status(t, b))
	assert.Empty(t, h.m.Pending())
	assert.False(t, h.wake.Held())
	assert.Equal(t, 1, h.m.ActiveCount())
}

func TestManager_EnqueueIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	again := h.enqueue(t, "a.zip")
	assert.Equal(t, a, again)
	assert.Equal(t, 1, h.runners.Count())
	assert.Len(t, h.m.List(domain.FilterAll), 1)

	_, err := h.m.Enqueue(domain.TransferSpec{URL: "gopher://example.com/x"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedScheme)

	_, err = h.m.Enqueue(domain.TransferSpec{})
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
}

func TestManager_EnqueueTerminalStartsOver(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	r := h.runners.Last()
	r.begin()
	r.progress(42)
	r.finish(domain.StatusFailed, domain.OutcomeFailedNetworkError)
	assert.Equal(t, domain.StatusFailed, h.status(t, a))

	again := h.enqueue(t, "a.zip")
	assert.Equal(t, a, again)
	assert.Equal(t, domain.StatusStarting, h.status(t, a))
	done, err := h.m.DoneSize(a)
	require.NoError(t, err)
	assert.Zero(t, done)
	assert.Equal(t, 2, h.runners.Count())
}

func TestManager_PauseQueuedIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.enqueue(t, "a.zip")
	b := h.enqueue(t, "b.zip")

	require.NoError(t, h.m.Pause(b))
	assert.Equal(t, domain.StatusQueued, h.status(t, b))
	assert.Equal(t, []int64{b}, h.m.Pending())
	assert.Equal(t, 1, h.runners.Count())
}

func TestManager_PauseAndResume(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	b := h.enqueue(t, "b.zip")
	ra := h.runners.Last()
	ra.begin()

	require.NoError(t, h.m.Pause(a))
	assert.Equal(t, domain.StatusPausedUser, h.status(t, a))
	assert.True(t, ra.paused.Load())

	// Resume before the run has wound down is applied once it has.
	require.NoError(t, h.m.Resume(a))
	assert.Equal(t, domain.StatusPausedUser, h.status(t, a))

	ra.finish(domain.StatusPausedUser, domain.OutcomePaused)

	// The resumed transfer rejoins the queue behind the one already waiting.
	assert.Equal(t, domain.StatusQueued, h.status(t, a))
	assert.Equal(t, domain.StatusStarting, h.status(t, b))
	assert.Equal(t, []int64{a}, h.m.Pending())
	assert.Equal(t, 2, h.runners.Count())
}

func TestManager_ResumeMovesToBackOfQueue(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	h.enqueue(t, "b.zip")
	ra := h.runners.Last()
	ra.begin()

	require.NoError(t, h.m.Pause(a))
	ra.finish(domain.StatusPausedUser, domain.OutcomePaused)
	require.Equal(t, []int64{a}, h.m.Pending())

	c := h.enqueue(t, "c.zip")
	require.Equal(t, []int64{a, c}, h.m.Pending())

	require.NoError(t, h.m.Resume(a))
	assert.Equal(t, domain.StatusQueued, h.status(t, a))
	assert.Equal(t, []int64{c, a}, h.m.Pending())
}

func TestManager_PausedTransferIsSkipped(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	b := h.enqueue(t, "b.zip")
	ra := h.runners.Last()
	ra.begin()

	require.NoError(t, h.m.Pause(a))
	ra.finish(domain.StatusPausedUser, domain.OutcomePaused)

	assert.Equal(t, domain.StatusPausedUser, h.status(t, a))
	assert.Equal(t, domain.StatusStarting, h.status(t, b))
	assert.Equal(t, []int64{a}, h.m.Pending())

	rb := h.runners.Last()
	require.NoError(t, h.m.Resume(a))
	assert.Equal(t, domain.StatusQueued, h.status(t, a))

	rb.begin()
	rb.finish(domain.StatusCompleted, domain.OutcomeFinished)
	assert.Equal(t, domain.StatusStarting, h.status(t, a))
	assert.Equal(t, 3, h.runners.Count())
}

func TestManager_ResumeAndRetryOnlyFromTheirStatus(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	b := h.enqueue(t, "b.zip")

	require.NoError(t, h.m.Resume(b))
	require.NoError(t, h.m.Retry(b))
	require.NoError(t, h.m.Retry(a))
	assert.Equal(t, domain.StatusStarting, h.status(t, a))
	assert.Equal(t, domain.StatusQueued, h.status(t, b))
	assert.Equal(t, []int64{b}, h.m.Pending())
	assert.Equal(t, 1, h.runners.Count())
}

func TestManager_CancelQueued(t *testing.T) {
	h := newHarness(t, nil)
	rec := &eventRecorder{}
	h.m.Subscribe(rec)
	h.start(t)

	h.enqueue(t, "a.zip")
	b := h.enqueue(t, "b.zip")

	require.NoError(t, h.m.Cancel(b))
	assert.Equal(t, domain.StatusCancelledUser, h.status(t, b))
	assert.Empty(t, h.m.Pending())
	rb := h.m.Transfer(b)
	require.NotNil(t, rb)
	assert.Equal(t, domain.OutcomeCancelled, rb.Outcome)

	finished := rec.Named(event.NameTransferFinished)
	require.Len(t, finished, 1)
	fe := finished[0].(event.TransferFinished)
	assert.Equal(t, b, fe.Record.ID)
	assert.True(t, fe.Notify)

	// Cancelling again changes nothing and sends nothing.
	require.NoError(t, h.m.Cancel(b))
	assert.Len(t, rec.Named(event.NameTransferFinished), 1)

	require.NoError(t, h.m.Retry(b))
	assert.Equal(t, domain.StatusQueued, h.status(t, b))
	assert.Equal(t, []int64{b}, h.m.Pending())
	assert.Equal(t, domain.OutcomeNone, h.m.Transfer(b).Outcome)
}

func TestManager_CancelRunning(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	ra := h.runners.Last()
	ra.begin()

	require.NoError(t, h.m.Cancel(a))
	assert.Equal(t, domain.StatusCancelledUser, h.status(t, a))
	assert.True(t, ra.cancelled.Load())
	assert.False(t, ra.st.Pausing())

	ra.finish(domain.StatusCancelledUser, domain.OutcomeCancelled)
	assert.Empty(t, h.m.Pending())
	assert.Zero(t, h.m.ActiveCount())
	assert.False(t, h.wake.Held())
}

func TestManager_BulkCommands(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	b := h.enqueue(t, "b.zip")
	c := h.enqueue(t, "c.zip")
	ra := h.runners.Last()
	ra.begin()

	h.m.PauseAll()
	assert.Equal(t, domain.StatusPausedUser, h.status(t, a))
	assert.Equal(t, domain.StatusQueued, h.status(t, b))
	ra.finish(domain.StatusPausedUser, domain.OutcomePaused)

	rb := h.runners.Last()
	assert.Equal(t, domain.StatusStarting, h.status(t, b))

	h.m.CancelAll()
	assert.Equal(t, domain.StatusCancelledUser, h.status(t, a))
	assert.Equal(t, domain.StatusCancelledUser, h.status(t, b))
	assert.Equal(t, domain.StatusCancelledUser, h.status(t, c))
	rb.finish(domain.StatusCancelledUser, domain.OutcomeCancelled)
	assert.Empty(t, h.m.Pending())
	assert.Len(t, h.m.List(domain.FilterCancelled), 3)
}

func TestManager_UnknownTransfer(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	for name, fn := range map[string]func(int64) error{
		"pause":  h.m.Pause,
		"resume": h.m.Resume,
		"cancel": h.m.Cancel,
		"retry":  h.m.Retry,
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, fn(42), domain.ErrUnknownTransfer)
		})
	}

	_, err := h.m.Status(42)
	assert.ErrorIs(t, err, domain.ErrUnknownTransfer)
	_, err = h.m.TotalSize(42)
	assert.ErrorIs(t, err, domain.ErrUnknownTransfer)
	_, err = h.m.DoneSize(42)
	assert.ErrorIs(t, err, domain.ErrUnknownTransfer)
	assert.Nil(t, h.m.Transfer(42))
}

func TestManager_NetworkPolicyHoldsAdmission(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Network = service.NetworkSettings{WifiOnly: true}
	})
	h.conn.Set(domain.NetworkCellular)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	assert.Equal(t, domain.StatusPausedForWifi, h.status(t, a))
	assert.Zero(t, h.runners.Count())
	assert.Equal(t, []int64{a}, h.m.Pending())

	h.conn.Set(domain.NetworkNone)
	h.m.ConnectivityChanged()
	assert.Equal(t, domain.StatusPausedForData, h.status(t, a))
	assert.Zero(t, h.runners.Count())

	h.conn.Set(domain.NetworkWifi)
	h.m.ConnectivityChanged()
	assert.Equal(t, domain.StatusStarting, h.status(t, a))
	assert.Equal(t, 1, h.runners.Count())
}

func TestManager_SettingsChangeRequeues(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Network = service.NetworkSettings{WifiOnly: true}
	})
	h.conn.Set(domain.NetworkCellular)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	require.Equal(t, domain.StatusPausedForWifi, h.status(t, a))

	h.m.SetNetworkSettings(service.NetworkSettings{})
	assert.Equal(t, service.NetworkSettings{}, h.m.NetworkSettings())
	assert.Equal(t, domain.StatusStarting, h.status(t, a))
}

func TestManager_RunningTransferRechecksPolicy(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Network = service.NetworkSettings{MobileMaxBytes: 1000}
	})
	h.conn.Set(domain.NetworkCellular)
	h.start(t)

	h.enqueue(t, "a.zip")
	r := h.runners.Last()
	r.begin()

	assert.Equal(t, executor.Continue, r.listener.OnCheckContinue(r.st))

	r.st.SetTotalBytes(5000)
	r.listener.OnLengthKnown(r.st)
	assert.Equal(t, executor.PauseNoWifi, r.listener.OnCheckContinue(r.st))
	// The verdict is cached until something changes.
	assert.Equal(t, executor.Continue, r.listener.OnCheckContinue(r.st))

	h.conn.Set(domain.NetworkNone)
	h.m.ConnectivityChanged()
	assert.Equal(t, executor.PauseNoData, r.listener.OnCheckContinue(r.st))
}

func TestManager_RetryAfterBackoff(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	r := h.runners.Last()
	r.begin()
	r.st.ScheduleRetry(60, h.clock.Now())
	r.finish(domain.StatusPausedRetry, domain.OutcomeRetryLater)

	assert.Equal(t, domain.StatusPausedRetry, h.status(t, a))
	assert.Equal(t, []int64{a}, h.m.Pending())
	assert.Equal(t, 1, h.runners.Count())

	next, ok := h.m.NextRetry()
	require.True(t, ok)
	assert.Equal(t, h.clock.Now().Add(60*time.Second), next)

	assert.Zero(t, h.m.RetryDue())
	assert.Equal(t, domain.StatusPausedRetry, h.status(t, a))

	h.clock.Advance(61 * time.Second)
	assert.Equal(t, 1, h.m.RetryDue())
	assert.Equal(t, domain.StatusStarting, h.status(t, a))
	assert.Equal(t, 2, h.runners.Count())

	_, ok = h.m.NextRetry()
	assert.False(t, ok)
}

func TestManager_PersistsEveryStatusChange(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	rec, ok := h.repo.record(a)
	require.True(t, ok)
	assert.Equal(t, domain.StatusStarting, rec.Status)

	r := h.runners.Last()
	r.begin()
	rec, _ = h.repo.record(a)
	assert.Equal(t, domain.StatusRunning, rec.Status)

	require.NoError(t, h.m.Pause(a))
	rec, _ = h.repo.record(a)
	assert.Equal(t, domain.StatusPausedUser, rec.Status)

	r.finish(domain.StatusPausedUser, domain.OutcomePaused)
	snap, _ := h.repo.Saved()
	assert.Equal(t, []int64{a}, snap.Pending)
	require.Len(t, snap.Transfers, 1)
	assert.Equal(t, domain.OutcomePaused, snap.Transfers[0].Outcome)
}

func TestManager_ProgressPersistenceIsThrottled(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.PersistInterval = 50 * time.Millisecond
	})
	h.start(t)

	a := h.enqueue(t, "a.zip")
	r := h.runners.Last()
	r.begin()
	_, before := h.repo.Saved()

	for i := 0; i < 10; i++ {
		r.progress(10)
	}
	_, after := h.repo.Saved()
	assert.LessOrEqual(t, after, before+1)

	// The suppressed write is flushed once the interval has passed.
	require.Eventually(t, func() bool {
		rec, ok := h.repo.record(a)
		return ok && rec.DoneBytes == 100
	}, time.Second, 10*time.Millisecond)
}

func TestManager_ProgressEventsAreThrottled(t *testing.T) {
	h := newHarness(t, nil)
	rec := &eventRecorder{}
	h.m.Subscribe(rec)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	r := h.runners.Last()

	// Nothing is reported before the run is under way.
	r.progress(1)
	assert.Empty(t, rec.Named(event.NameTransferProgress))

	r.begin()
	for i := 0; i < 5; i++ {
		r.progress(10)
	}
	require.Len(t, rec.Named(event.NameTransferProgress), 1)

	h.clock.Advance(600 * time.Millisecond)
	r.progress(10)
	progress := rec.Named(event.NameTransferProgress)
	require.Len(t, progress, 2)
	assert.Equal(t, int64(61), progress[1].(event.TransferProgress).Record.DoneBytes)

	require.NoError(t, h.m.Pause(a))
	h.clock.Advance(time.Second)
	r.progress(10)
	assert.Len(t, rec.Named(event.NameTransferProgress), 2)

	r.finish(domain.StatusPausedUser, domain.OutcomePaused)
	events := rec.Events()
	assert.Equal(t, event.NameTransferFinished, events[len(events)-1].EventName())
}

func TestManager_ProgressThrottleStartsOverEachRun(t *testing.T) {
	h := newHarness(t, nil)
	rec := &eventRecorder{}
	h.m.Subscribe(rec)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	b := h.enqueue(t, "b.zip")
	ra := h.runners.Last()
	ra.begin()
	ra.progress(10)
	ra.finish(domain.StatusCompleted, domain.OutcomeFinished)

	// same instant, so only a fresh throttle lets b's first progress through
	rb := h.runners.Last()
	rb.begin()
	rb.progress(10)

	progress := rec.Named(event.NameTransferProgress)
	require.Len(t, progress, 2)
	assert.Equal(t, a, progress[0].(event.TransferProgress).Record.ID)
	assert.Equal(t, b, progress[1].(event.TransferProgress).Record.ID)
}

func TestManager_EventsArriveInOrder(t *testing.T) {
	h := newHarness(t, nil)
	rec := &eventRecorder{}
	sub := h.m.Subscribe(rec)
	defer sub.Close()
	h.start(t)

	h.enqueue(t, "a.zip")
	r := h.runners.Last()
	r.begin()
	r.progress(10)
	r.finish(domain.StatusCompleted, domain.OutcomeFinished)

	var names []string
	for _, e := range rec.Events() {
		names = append(names, e.EventName())
	}
	assert.Equal(t, []string{
		event.NameTransferQueued,
		event.NameTransferStarted,
		event.NameTransferProgress,
		event.NameTransferFinished,
	}, names)

	fe := rec.Named(event.NameTransferFinished)[0].(event.TransferFinished)
	assert.Equal(t, domain.OutcomeFinished, fe.Outcome)
	assert.Equal(t, "run-1", fe.RunID)
	assert.True(t, fe.Notify)
}

func TestManager_StartRecoversInterruptedTransfers(t *testing.T) {
	spec := func(name string) domain.TransferSpec {
		return domain.TransferSpec{URL: "https://updates.example.com/" + name}
	}
	record := func(name string, status domain.Status) domain.TransferRecord {
		s := spec(name)
		return domain.TransferRecord{ID: domain.TransferID(s), Spec: s, Status: status}
	}
	a := record("a.zip", domain.StatusRunning)
	a.DoneBytes = 100
	b := record("b.zip", domain.StatusPausedSystem)
	c := record("c.zip", domain.StatusCompleted)
	d := record("d.zip", domain.StatusPausedUser)

	h := newHarness(t, nil)
	h.repo.snap = &domain.Snapshot{
		Transfers: []domain.TransferRecord{a, b, c, d},
		Pending:   []int64{d.ID},
	}
	h.start(t)

	assert.Equal(t, domain.StatusStarting, h.status(t, a.ID))
	assert.Equal(t, domain.StatusQueued, h.status(t, b.ID))
	assert.Equal(t, domain.StatusCompleted, h.status(t, c.ID))
	assert.Equal(t, domain.StatusPausedUser, h.status(t, d.ID))
	assert.Equal(t, []int64{d.ID, b.ID}, h.m.Pending())

	done, err := h.m.DoneSize(a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), done)

	assert.Error(t, h.m.Start(context.Background()))
}

func TestManager_StopPausesAsSystem(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	r := h.runners.Last()
	r.begin()

	stopped := make(chan struct{})
	go func() {
		h.m.Stop()
		close(stopped)
	}()

	require.Eventually(t, r.paused.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.StatusPausedSystem, h.status(t, a))
	assert.True(t, r.st.Pausing())

	r.finish(domain.StatusPausedSystem, domain.OutcomePaused)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	assert.False(t, h.wake.Held())
	assert.Equal(t, 1, h.runners.Count())

	rec, ok := h.repo.record(a)
	require.True(t, ok)
	assert.Equal(t, domain.StatusPausedSystem, rec.Status)

	// A fresh manager on the same store picks the transfer up again.
	runners := &fakeRunners{}
	m2 := New(DefaultConfig(), h.repo, runners, h.conn, zap.NewNop())
	require.NoError(t, m2.Start(context.Background()))
	s, err := m2.Status(a)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStarting, s)
	assert.Equal(t, 1, runners.Count())
}

func TestManager_Prune(t *testing.T) {
	h := newHarness(t, nil)
	rec := &eventRecorder{}
	h.m.Subscribe(rec)
	h.start(t)

	h.enqueue(t, "a.zip")
	b := h.enqueue(t, "b.zip")
	require.NoError(t, h.m.Cancel(b))

	assert.Zero(t, h.m.Prune(time.Hour))

	h.clock.Advance(2 * time.Hour)
	assert.Zero(t, h.m.Prune(0))
	assert.Equal(t, 1, h.m.Prune(time.Hour))
	assert.Nil(t, h.m.Transfer(b))
	assert.Len(t, h.m.List(domain.FilterAll), 1)

	removed := rec.Named(event.NameTransferRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, b, removed[0].(event.TransferRemoved).ID)

	snap, _ := h.repo.Saved()
	assert.Len(t, snap.Transfers, 1)
}

func TestManager_PruneUsesManagerClock(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	r := h.runners.Last()
	r.begin()
	r.finish(domain.StatusCompleted, domain.OutcomeFinished)

	rec := h.m.Transfer(a)
	require.NotNil(t, rec)
	assert.True(t, h.clock.Now().Equal(rec.FinishedAt))

	h.clock.Advance(6 * 24 * time.Hour)
	assert.Zero(t, h.m.Prune(7*24*time.Hour))

	h.clock.Advance(2 * 24 * time.Hour)
	assert.Equal(t, 1, h.m.Prune(7*24*time.Hour))
	assert.Nil(t, h.m.Transfer(a))
}

func TestManager_Idle(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.IdleTimeout = 20 * time.Millisecond
	})
	sub := h.m.Subscribe(&eventRecorder{})
	h.start(t)

	select {
	case <-h.m.Idle():
		t.Fatal("idle while subscribed")
	case <-time.After(100 * time.Millisecond):
	}

	sub.Close()
	select {
	case <-h.m.Idle():
	case <-time.After(time.Second):
		t.Fatal("manager never went idle")
	}
}

func TestManager_NotIdleWhileWorkIsPending(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.IdleTimeout = 20 * time.Millisecond
	})
	sub := h.m.Subscribe(&eventRecorder{})
	h.start(t)

	a := h.enqueue(t, "a.zip")
	r := h.runners.Last()
	r.begin()
	sub.Close()

	select {
	case <-h.m.Idle():
		t.Fatal("idle while a transfer runs")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, h.m.Pause(a))
	r.finish(domain.StatusPausedUser, domain.OutcomePaused)
	select {
	case <-h.m.Idle():
	case <-time.After(time.Second):
		t.Fatal("manager never went idle")
	}
}

func TestManager_ListFilters(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	a := h.enqueue(t, "a.zip")
	h.enqueue(t, "b.zip")
	r := h.runners.Last()
	r.begin()
	r.finish(domain.StatusCompleted, domain.OutcomeFinished)

	done := h.m.List(domain.FilterCompleted)
	require.Len(t, done, 1)
	assert.Equal(t, a, done[0].ID)
	assert.Len(t, h.m.List(domain.FilterAll), 2)
}
