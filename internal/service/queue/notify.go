package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/domain/event"
)

// emitLocked queues ev for delivery once mu is released.
func (m *Manager) emitLocked(ev event.DomainEvent) {
	m.outbox = append(m.outbox, ev)
}

// emitProgressLocked queues a progress event unless one was sent within the
// throttle interval. Nothing is sent for a transfer that is no longer running,
// so a pause or cancel is never followed by stale progress.
func (m *Manager) emitProgressLocked(st *domain.TransferState, runID string, force bool) {
	if st.Status() != domain.StatusRunning {
		return
	}
	if !m.notifyLimiter.AllowOrForce(force) {
		return
	}
	m.emitLocked(event.NewTransferProgress(m.now(), st.Snapshot(), runID))
}

// persistLocked stages a snapshot write. Unforced writes are throttled;
// a suppressed write is retried once the interval has passed.
func (m *Manager) persistLocked(force bool) {
	if !m.persistLimiter.AllowOrForce(force) {
		m.scheduleTrailingPersistLocked()
		return
	}
	m.pendingSnap = m.snapshotLocked()
}

func (m *Manager) scheduleTrailingPersistLocked() {
	if m.persistTimer != nil || !m.running {
		return
	}
	m.persistTimer = time.AfterFunc(m.persistLimiter.Interval(), func() {
		m.mu.Lock()
		m.persistTimer = nil
		if m.persistLimiter.Suppressed() {
			m.persistLocked(true)
		}
		m.mu.Unlock()
		m.flush()
	})
}

func (m *Manager) snapshotLocked() *domain.Snapshot {
	snap := &domain.Snapshot{
		Transfers: make([]domain.TransferRecord, 0, len(m.order)),
		Pending:   append([]int64(nil), m.pending...),
	}
	for _, id := range m.order {
		snap.Transfers = append(snap.Transfers, m.transfers[id].Snapshot())
	}
	return snap
}

// flush writes the staged snapshot and delivers queued events. It must be
// called without mu held.
func (m *Manager) flush() {
	m.flushPersist()
	m.deliver()
}

func (m *Manager) flushPersist() {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	snap := m.pendingSnap
	m.pendingSnap = nil
	m.mu.Unlock()

	if snap == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.SaveTimeout)
	defer cancel()
	if err := m.repo.SaveSnapshot(ctx, snap); err != nil {
		m.logger.Error("failed to persist transfer snapshot", zap.Error(err))
	}
}

// deliver drains the outbox in order. Whoever holds notifyMu delivers
// everything queued so far, so events reach observers in the order they
// were produced regardless of which goroutine produced them.
func (m *Manager) deliver() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	for {
		m.mu.Lock()
		batch := m.outbox
		m.outbox = nil
		m.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		m.dispatcher.DispatchAll(batch)
	}
}

// setStatusLocked moves st to status if the transition is allowed.
func (m *Manager) setStatusLocked(st *domain.TransferState, status domain.Status) bool {
	from := st.Status()
	if err := domain.ValidateTransition(from, status); err != nil {
		m.logger.Error("refusing status change",
			zap.Int64("transfer_id", st.ID()),
			zap.Error(err))
		return false
	}
	st.SetStatusAt(status, m.now())
	return true
}

func (m *Manager) addPendingLocked(id int64) {
	for _, p := range m.pending {
		if p == id {
			return
		}
	}
	m.pending = append(m.pending, id)
}

func (m *Manager) removePendingLocked(id int64) {
	for i, p := range m.pending {
		if p == id {
			m.pending = append(m.pending[:i:i], m.pending[i+1:]...)
			return
		}
	}
}

func (m *Manager) runIDLocked(id int64) string {
	if m.active != nil && m.active.id == id {
		return m.active.runner.RunID()
	}
	return ""
}
