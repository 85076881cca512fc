package queue

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/domain/event"
)

// Enqueue adds a transfer for spec and returns its id. Enqueueing a spec
// that is already known and still active returns the existing id unchanged;
// a known spec that has reached a terminal status starts over.
func (m *Manager) Enqueue(spec domain.TransferSpec) (int64, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	id := domain.TransferID(spec)

	m.mu.Lock()
	st, exists := m.transfers[id]
	switch {
	case !exists:
		st = domain.NewTransferState(spec)
		m.transfers[id] = st
		m.order = append(m.order, id)
		m.queueLocked(st)
		m.logger.Debug("transfer enqueued", zap.Int64("transfer_id", id), zap.String("url", spec.URL))
	case st.Status().IsTerminal():
		m.retryLocked(st)
	}
	m.mu.Unlock()

	m.flush()
	return id, nil
}

// Pause stops a running transfer and keeps it resumable. It is a no-op
// unless the transfer is starting or running.
func (m *Manager) Pause(id int64) error {
	return m.command(id, m.pauseLocked)
}

// Resume requeues a transfer paused by the user. Any other status is left alone.
func (m *Manager) Resume(id int64) error {
	return m.command(id, m.resumeLocked)
}

// Cancel stops a transfer for good. Terminal transfers are left alone.
func (m *Manager) Cancel(id int64) error {
	return m.command(id, m.cancelLocked)
}

// Retry starts a terminal transfer over with fresh bookkeeping. Any other
// status is left alone.
func (m *Manager) Retry(id int64) error {
	return m.command(id, m.retryLocked)
}

// PauseAll pauses every running transfer.
func (m *Manager) PauseAll() {
	m.all(m.pauseLocked)
}

// ResumeAll resumes every transfer paused by the user.
func (m *Manager) ResumeAll() {
	m.all(m.resumeLocked)
}

// CancelAll cancels every transfer that can still be cancelled.
func (m *Manager) CancelAll() {
	m.all(m.cancelLocked)
}

func (m *Manager) command(id int64, fn func(*domain.TransferState)) error {
	m.mu.Lock()
	st, ok := m.transfers[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", domain.ErrUnknownTransfer, id)
	}
	fn(st)
	m.checkIdleLocked()
	m.mu.Unlock()

	m.flush()
	return nil
}

func (m *Manager) all(fn func(*domain.TransferState)) {
	m.mu.Lock()
	for _, id := range append([]int64(nil), m.order...) {
		fn(m.transfers[id])
	}
	m.checkIdleLocked()
	m.mu.Unlock()

	m.flush()
}

func (m *Manager) pauseLocked(st *domain.TransferState) {
	switch st.Status() {
	case domain.StatusStarting, domain.StatusRunning:
	default:
		return
	}
	if !m.setStatusLocked(st, domain.StatusPausedUser) {
		return
	}
	if m.active != nil && m.active.id == st.ID() {
		m.active.resumeRequested = false
		m.active.runner.Pause()
	}
	m.emitLocked(event.NewTransferUpdated(m.now(), st.Snapshot()))
	m.persistLocked(true)
}

func (m *Manager) resumeLocked(st *domain.TransferState) {
	if st.Status() != domain.StatusPausedUser {
		return
	}
	if m.active != nil && m.active.id == st.ID() {
		// The paused run has not finished yet; requeue once it has.
		m.active.resumeRequested = true
		return
	}
	st.SetPausing(false)
	// a resumed transfer goes to the back of the queue
	m.removePendingLocked(st.ID())
	m.queueLocked(st)
}

func (m *Manager) cancelLocked(st *domain.TransferState) {
	if st.Status().IsTerminal() {
		return
	}
	if m.active != nil && m.active.id == st.ID() {
		if !m.setStatusLocked(st, domain.StatusCancelledUser) {
			return
		}
		m.active.resumeRequested = false
		m.active.runner.Cancel()
		m.emitLocked(event.NewTransferUpdated(m.now(), st.Snapshot()))
		m.persistLocked(true)
		return
	}

	if !domain.CanTransition(st.Status(), domain.StatusCancelledUser) {
		return
	}
	st.FinishAt(domain.StatusCancelledUser, domain.OutcomeCancelled, m.now())
	m.removePendingLocked(st.ID())
	m.emitFinishedLocked(st, "", domain.OutcomeCancelled, 0)
	m.persistLocked(true)
}

func (m *Manager) retryLocked(st *domain.TransferState) {
	if !st.Status().IsTerminal() {
		return
	}
	if m.active != nil && m.active.id == st.ID() {
		m.active.retryRequested = true
		return
	}
	st.Reset()
	m.queueLocked(st)
}

// queueLocked moves st to Queued at the back of the pending queue and
// tries to admit the next transfer.
func (m *Manager) queueLocked(st *domain.TransferState) {
	if st.Status() != domain.StatusQueued && !m.setStatusLocked(st, domain.StatusQueued) {
		return
	}
	m.addPendingLocked(st.ID())
	m.emitLocked(event.NewTransferQueued(m.now(), st.Snapshot()))
	m.persistLocked(true)
	m.tryAdmitNextLocked()
}

// emitFinishedLocked queues the final event of a run. Terminal events are
// flagged for user notification only the first time.
func (m *Manager) emitFinishedLocked(st *domain.TransferState, runID string, outcome domain.Outcome, took time.Duration) {
	notify := true
	if st.Status().IsTerminal() {
		notify = !st.OneShotNotificationShown()
		st.SetOneShotNotificationShown(true)
	}
	m.emitLocked(event.NewTransferFinished(m.now(), st.Snapshot(), runID, outcome, notify, took))
}
