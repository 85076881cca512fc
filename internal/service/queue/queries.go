package queue

import (
	"fmt"

	"github.com/otaupdater/ota-download-manager/internal/domain"
)

func (m *Manager) lookup(id int64) (*domain.TransferState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.transfers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnknownTransfer, id)
	}
	return st, nil
}

// Status returns the status of a transfer
func (m *Manager) Status(id int64) (domain.Status, error) {
	st, err := m.lookup(id)
	if err != nil {
		return domain.StatusQueued, err
	}
	return st.Status(), nil
}

// TotalSize returns the expected size of a transfer, zero while unknown
func (m *Manager) TotalSize(id int64) (int64, error) {
	st, err := m.lookup(id)
	if err != nil {
		return 0, err
	}
	return st.TotalBytes(), nil
}

// DoneSize returns the bytes received so far
func (m *Manager) DoneSize(id int64) (int64, error) {
	st, err := m.lookup(id)
	if err != nil {
		return 0, err
	}
	return st.DoneBytes(), nil
}

// Transfer returns a copy of a transfer, or nil if the id is unknown
func (m *Manager) Transfer(id int64) *domain.TransferRecord {
	st, err := m.lookup(id)
	if err != nil {
		return nil
	}
	rec := st.Snapshot()
	return &rec
}

// List returns the transfers matching filter in insertion order.
// domain.FilterAll matches every transfer.
func (m *Manager) List(filter domain.Filter) []domain.TransferRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.TransferRecord, 0, len(m.order))
	for _, id := range m.order {
		st := m.transfers[id]
		if st.MatchesFilter(filter) {
			out = append(out, st.Snapshot())
		}
	}
	return out
}

// Pending returns the ids waiting for admission in queue order.
func (m *Manager) Pending() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.pending...)
}

// ActiveCount returns the number of running executors, zero or one.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return 1
	}
	return 0
}
