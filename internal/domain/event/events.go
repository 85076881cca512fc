package event

import (
	"time"

	"github.com/otaupdater/ota-download-manager/internal/domain"
)

// Event names
const (
	NameTransferQueued   = "transfer.queued"
	NameTransferStarted  = "transfer.started"
	NameTransferProgress = "transfer.progress"
	NameTransferUpdated  = "transfer.updated"
	NameTransferPaused   = "transfer.paused"
	NameTransferFinished = "transfer.finished"
	NameTransferRemoved  = "transfer.removed"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// TransferEvent is implemented by every event that carries a transfer.
type TransferEvent interface {
	DomainEvent
	Transfer() TransferView
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// TransferView is a transfer as observers see it at the time of the event.
type TransferView struct {
	Record       domain.TransferRecord `json:"transfer"`
	Presentation domain.Presentation   `json:"presentation"`
	RunID        string                `json:"run_id,omitempty"`
}

// Transfer returns the transfer carried by the event
func (v TransferView) Transfer() TransferView {
	return v
}

func newView(rec domain.TransferRecord, runID string) TransferView {
	return TransferView{Record: rec, Presentation: domain.Present(rec), RunID: runID}
}

// TransferQueued is raised when a transfer enters the pending queue
type TransferQueued struct {
	BaseEvent
	TransferView
}

// EventName returns the event name
func (e TransferQueued) EventName() string {
	return NameTransferQueued
}

// NewTransferQueued creates a new TransferQueued event
func NewTransferQueued(at time.Time, rec domain.TransferRecord) TransferQueued {
	return TransferQueued{BaseEvent: BaseEvent{Timestamp: at}, TransferView: newView(rec, "")}
}

// TransferStarted is raised when an executor begins a run
type TransferStarted struct {
	BaseEvent
	TransferView
}

// EventName returns the event name
func (e TransferStarted) EventName() string {
	return NameTransferStarted
}

// NewTransferStarted creates a new TransferStarted event
func NewTransferStarted(at time.Time, rec domain.TransferRecord, runID string) TransferStarted {
	return TransferStarted{BaseEvent: BaseEvent{Timestamp: at}, TransferView: newView(rec, runID)}
}

// TransferProgress is raised as bytes arrive. Observers see at most one
// per throttle interval, with non-decreasing DoneBytes.
type TransferProgress struct {
	BaseEvent
	TransferView
}

// EventName returns the event name
func (e TransferProgress) EventName() string {
	return NameTransferProgress
}

// NewTransferProgress creates a new TransferProgress event
func NewTransferProgress(at time.Time, rec domain.TransferRecord, runID string) TransferProgress {
	return TransferProgress{BaseEvent: BaseEvent{Timestamp: at}, TransferView: newView(rec, runID)}
}

// TransferUpdated is raised for status changes that are not covered by a
// more specific event, such as a policy verdict parking a pending transfer.
type TransferUpdated struct {
	BaseEvent
	TransferView
}

// EventName returns the event name
func (e TransferUpdated) EventName() string {
	return NameTransferUpdated
}

// NewTransferUpdated creates a new TransferUpdated event
func NewTransferUpdated(at time.Time, rec domain.TransferRecord) TransferUpdated {
	return TransferUpdated{BaseEvent: BaseEvent{Timestamp: at}, TransferView: newView(rec, "")}
}

// TransferPaused is raised when a run stops in a resumable state
type TransferPaused struct {
	BaseEvent
	TransferView
}

// EventName returns the event name
func (e TransferPaused) EventName() string {
	return NameTransferPaused
}

// NewTransferPaused creates a new TransferPaused event
func NewTransferPaused(at time.Time, rec domain.TransferRecord, runID string) TransferPaused {
	return TransferPaused{BaseEvent: BaseEvent{Timestamp: at}, TransferView: newView(rec, runID)}
}

// TransferFinished is the last event of a run
type TransferFinished struct {
	BaseEvent
	TransferView
	Outcome domain.Outcome `json:"outcome"`
	// Notify is false when a terminal notification was already shown for
	// this transfer and should not be repeated.
	Notify   bool          `json:"notify"`
	Duration time.Duration `json:"duration"`
}

// EventName returns the event name
func (e TransferFinished) EventName() string {
	return NameTransferFinished
}

// NewTransferFinished creates a new TransferFinished event
func NewTransferFinished(at time.Time, rec domain.TransferRecord, runID string, outcome domain.Outcome, notify bool, duration time.Duration) TransferFinished {
	return TransferFinished{
		BaseEvent:    BaseEvent{Timestamp: at},
		TransferView: newView(rec, runID),
		Outcome:      outcome,
		Notify:       notify,
		Duration:     duration,
	}
}

// TransferRemoved is raised when retention drops a finished transfer
type TransferRemoved struct {
	BaseEvent
	ID int64 `json:"id"`
}

// EventName returns the event name
func (e TransferRemoved) EventName() string {
	return NameTransferRemoved
}

// NewTransferRemoved creates a new TransferRemoved event
func NewTransferRemoved(at time.Time, id int64) TransferRemoved {
	return TransferRemoved{BaseEvent: BaseEvent{Timestamp: at}, ID: id}
}
