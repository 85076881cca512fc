package queue

import (
	"time"

	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/domain/event"
	"github.com/otaupdater/ota-download-manager/internal/domain/service"
	"github.com/otaupdater/ota-download-manager/internal/service/executor"
)

// runListener receives the callbacks of one run and applies them under the
// manager's lock.
type runListener struct {
	m     *Manager
	id    int64
	runID string
}

func (l *runListener) OnStart(st *domain.TransferState) {
	m := l.m
	m.mu.Lock()
	if st.Status() == domain.StatusStarting {
		m.setStatusLocked(st, domain.StatusRunning)
	}
	if !m.wake.Held() {
		m.wake.Acquire(m.config.WakeLockTag)
	}
	// progress throttling is per run
	m.notifyLimiter.Reset()
	m.emitLocked(event.NewTransferStarted(m.now(), st.Snapshot(), l.runID))
	m.persistLocked(true)
	m.mu.Unlock()
	m.flush()
}

func (l *runListener) OnCheckContinue(st *domain.TransferState) executor.Verdict {
	m := l.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connDirty {
		return executor.Continue
	}
	m.connDirty = false

	conn := m.conn.Current()
	verdict := service.EvaluateNetwork(st.TotalBytes(), conn, m.settings)
	switch verdict {
	case service.VerdictOK:
		return executor.Continue
	case service.VerdictNoConnectivity:
		return executor.PauseNoData
	}
	m.logger.Info("network policy stopped running transfer",
		zap.Int64("transfer_id", st.ID()),
		zap.Stringer("verdict", verdict),
		zap.Stringer("network", conn))
	return executor.PauseNoWifi
}

// OnLengthKnown also invalidates the cached verdict: a size cap can only
// be checked once the size is known.
func (l *runListener) OnLengthKnown(st *domain.TransferState) {
	m := l.m
	m.mu.Lock()
	m.connDirty = true
	m.emitProgressLocked(st, l.runID, true)
	m.persistLocked(true)
	m.mu.Unlock()
	m.flush()
}

func (l *runListener) OnProgress(st *domain.TransferState) {
	m := l.m
	m.mu.Lock()
	m.emitProgressLocked(st, l.runID, false)
	m.persistLocked(false)
	m.mu.Unlock()
	m.flush()
}

func (l *runListener) OnPaused(st *domain.TransferState) {
	m := l.m
	m.mu.Lock()
	m.emitLocked(event.NewTransferPaused(m.now(), st.Snapshot(), l.runID))
	m.persistLocked(true)
	m.mu.Unlock()
	m.flush()
}

func (l *runListener) OnFinished(st *domain.TransferState, outcome domain.Outcome) {
	m := l.m
	m.mu.Lock()

	var run *activeRun
	if m.active != nil && m.active.id == l.id {
		run = m.active
		m.active = nil
	}
	st.SetPausing(false)
	if st.Status().IsTerminal() {
		st.FinishAt(st.Status(), outcome, m.now())
	}

	if outcome.Requeues() {
		m.addPendingLocked(l.id)
	}

	var took time.Duration
	if run != nil {
		took = m.now().Sub(run.startedAt)
	}
	m.emitFinishedLocked(st, l.runID, outcome, took)

	if m.active == nil && m.wake.Held() {
		m.wake.Release()
	}
	m.persistLocked(true)

	if run != nil {
		switch {
		case run.resumeRequested && st.Status() == domain.StatusPausedUser:
			m.removePendingLocked(st.ID())
			m.queueLocked(st)
		case run.retryRequested && st.Status().IsTerminal():
			st.Reset()
			m.queueLocked(st)
		}
	}

	m.tryAdmitNextLocked()
	m.checkIdleLocked()
	m.mu.Unlock()
	m.flush()
}
