package queue

import (
	"time"

	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/domain/event"
	"github.com/otaupdater/ota-download-manager/internal/domain/service"
)

// tryAdmitNextLocked starts the first eligible pending transfer when nothing
// is running. Entries the network policy rejects are parked in the matching
// paused status and the scan continues, so every waiting entry shows its
// current reason; at most one transfer is admitted per call.
func (m *Manager) tryAdmitNextLocked() {
	if !m.running || m.stopping || m.active != nil {
		return
	}

	conn := m.conn.Current()
	m.connDirty = false
	now := m.now()

	for i := 0; i < len(m.pending); i++ {
		id := m.pending[i]
		st, ok := m.transfers[id]
		if !ok || st.Status().IsTerminal() {
			m.pending = append(m.pending[:i:i], m.pending[i+1:]...)
			i--
			continue
		}

		switch st.Status() {
		case domain.StatusPausedUser, domain.StatusCancelledUser:
			continue
		case domain.StatusPausedRetry:
			if !st.RetryDue(now) {
				continue
			}
		}

		verdict := service.EvaluateNetwork(st.TotalBytes(), conn, m.settings)
		if paused, blocked := verdict.PausedStatus(); blocked {
			if st.Status() != paused && m.setStatusLocked(st, paused) {
				m.logger.Debug("transfer held by network policy",
					zap.Int64("transfer_id", id),
					zap.Stringer("verdict", verdict),
					zap.Stringer("network", conn))
				m.emitLocked(event.NewTransferUpdated(now, st.Snapshot()))
				m.persistLocked(true)
			}
			continue
		}

		if !m.setStatusLocked(st, domain.StatusStarting) {
			continue
		}
		m.pending = append(m.pending[:i:i], m.pending[i+1:]...)
		m.launchLocked(st)
		m.persistLocked(true)
		return
	}
}

func (m *Manager) launchLocked(st *domain.TransferState) {
	l := &runListener{m: m, id: st.ID()}
	runner := m.runners.NewRunner(st, l)
	l.runID = runner.RunID()

	m.active = &activeRun{id: st.ID(), runner: runner, startedAt: m.now()}
	m.stopIdleLocked()

	m.logger.Debug("admitting transfer",
		zap.Int64("transfer_id", st.ID()),
		zap.String("run_id", l.runID))
	runner.Start(m.runCtx)
}

// ConnectivityChanged tells the manager the network changed. Transfers
// waiting for the network are requeued and the cached verdict is dropped so
// the running transfer is re-evaluated at its next check.
func (m *Manager) ConnectivityChanged() {
	m.mu.Lock()
	m.requeueNetworkPausedLocked()
	m.mu.Unlock()
	m.flush()
}

func (m *Manager) requeueNetworkPausedLocked() {
	m.connDirty = true
	for _, id := range m.pending {
		st := m.transfers[id]
		switch st.Status() {
		case domain.StatusPausedForData, domain.StatusPausedForWifi:
			if m.setStatusLocked(st, domain.StatusQueued) {
				m.emitLocked(event.NewTransferQueued(m.now(), st.Snapshot()))
			}
		}
	}
	m.persistLocked(true)
	m.tryAdmitNextLocked()
	m.checkIdleLocked()
}

// RetryDue requeues transfers whose server-requested backoff has elapsed
// and returns how many were requeued.
func (m *Manager) RetryDue() int {
	m.mu.Lock()
	now := m.now()
	n := 0
	for _, id := range m.pending {
		st := m.transfers[id]
		if st.Status() == domain.StatusPausedRetry && st.RetryDue(now) {
			if m.setStatusLocked(st, domain.StatusQueued) {
				m.emitLocked(event.NewTransferQueued(now, st.Snapshot()))
				n++
			}
		}
	}
	if n > 0 {
		m.persistLocked(true)
		m.tryAdmitNextLocked()
	}
	m.mu.Unlock()

	m.flush()
	return n
}

// NextRetry returns the earliest backoff deadline among waiting transfers.
func (m *Manager) NextRetry() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var next time.Time
	for _, id := range m.pending {
		st := m.transfers[id]
		if st.Status() != domain.StatusPausedRetry {
			continue
		}
		if at := st.RetryNotBefore(); next.IsZero() || at.Before(next) {
			next = at
		}
	}
	return next, !next.IsZero()
}

// Prune drops terminal transfers that finished more than olderThan ago and
// returns how many were removed.
func (m *Manager) Prune(olderThan time.Duration) int {
	if olderThan <= 0 {
		return 0
	}

	m.mu.Lock()
	now := m.now()
	cutoff := now.Add(-olderThan)
	kept := m.order[:0]
	removed := 0
	for _, id := range m.order {
		st := m.transfers[id]
		finished := st.FinishedAt()
		active := m.active != nil && m.active.id == id
		if st.Status().IsTerminal() && !active && !finished.IsZero() && finished.Before(cutoff) {
			delete(m.transfers, id)
			m.removePendingLocked(id)
			m.emitLocked(event.NewTransferRemoved(now, id))
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	if removed > 0 {
		m.persistLocked(true)
	}
	m.mu.Unlock()

	m.flush()
	return removed
}
