package domain

import (
	"sync"
	"time"
)

// TransferRecord is a plain copy of a TransferState, safe to hand out to
// observers, queries and the persistence store.
type TransferRecord struct {
	ID                       int64        `json:"id"`
	Spec                     TransferSpec `json:"spec"`
	Status                   Status       `json:"status"`
	TotalBytes               int64        `json:"total_bytes"`
	DoneBytes                int64        `json:"done_bytes"`
	RedirectedURL            string       `json:"redirected_url,omitempty"`
	NumRedirects             int          `json:"num_redirects"`
	NumFailures              int          `json:"num_failures"`
	RetryAfterSeconds        int          `json:"retry_after_seconds"`
	RetryNotBefore           time.Time    `json:"retry_not_before,omitempty"`
	EntityTag                string       `json:"entity_tag,omitempty"`
	Resuming                 bool         `json:"resuming"`
	Pausing                  bool         `json:"-"`
	Outcome                  Outcome      `json:"outcome"`
	OneShotNotificationShown bool         `json:"-"`
	UpdatedAt                time.Time    `json:"updated_at"`
	FinishedAt               time.Time    `json:"finished_at,omitempty"`
}

// Snapshot is the durable image of a queue: every transfer in insertion
// order followed by the pending ids in admission order.
type Snapshot struct {
	Transfers []TransferRecord
	Pending   []int64
}

// TransferState is the mutable state of one download. The queue manager and
// at most one executor share it; every accessor is safe for concurrent use.
type TransferState struct {
	mu sync.RWMutex

	id   int64
	spec TransferSpec

	status     Status
	totalBytes int64
	doneBytes  int64

	redirectedURL  string
	numRedirects   int
	numFailures    int
	retryAfter     int
	retryNotBefore time.Time

	entityTag string
	resuming  bool
	pausing   bool
	outcome   Outcome

	oneShotShown bool

	updatedAt  time.Time
	finishedAt time.Time
}

// NewTransferState creates a queued transfer for spec.
func NewTransferState(spec TransferSpec) *TransferState {
	return &TransferState{
		id:         TransferID(spec),
		spec:       spec,
		status:     StatusQueued,
		retryAfter: -1,
		updatedAt:  time.Now(),
	}
}

// RestoreTransferState rebuilds a TransferState from a persisted record.
func RestoreTransferState(r TransferRecord) *TransferState {
	return &TransferState{
		id:             r.ID,
		spec:           r.Spec,
		status:         r.Status,
		totalBytes:     r.TotalBytes,
		doneBytes:      r.DoneBytes,
		redirectedURL:  r.RedirectedURL,
		numRedirects:   r.NumRedirects,
		numFailures:    r.NumFailures,
		retryAfter:     r.RetryAfterSeconds,
		retryNotBefore: r.RetryNotBefore,
		entityTag:      r.EntityTag,
		resuming:       r.Resuming,
		outcome:        r.Outcome,
		oneShotShown:   r.OneShotNotificationShown,
		updatedAt:      r.UpdatedAt,
		finishedAt:     r.FinishedAt,
	}
}

// Snapshot returns a consistent copy of the state.
func (t *TransferState) Snapshot() TransferRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TransferRecord{
		ID:                       t.id,
		Spec:                     t.spec,
		Status:                   t.status,
		TotalBytes:               t.totalBytes,
		DoneBytes:                t.doneBytes,
		RedirectedURL:            t.redirectedURL,
		NumRedirects:             t.numRedirects,
		NumFailures:              t.numFailures,
		RetryAfterSeconds:        t.retryAfter,
		RetryNotBefore:           t.retryNotBefore,
		EntityTag:                t.entityTag,
		Resuming:                 t.resuming,
		Pausing:                  t.pausing,
		Outcome:                  t.outcome,
		OneShotNotificationShown: t.oneShotShown,
		UpdatedAt:                t.updatedAt,
		FinishedAt:               t.finishedAt,
	}
}

func (t *TransferState) ID() int64 { return t.id }

func (t *TransferState) Spec() TransferSpec { return t.spec }

func (t *TransferState) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// SetStatus records a new status. Entering a terminal status stamps FinishedAt.
func (t *TransferState) SetStatus(s Status) {
	t.SetStatusAt(s, time.Now())
}

// SetStatusAt is SetStatus with an explicit timestamp.
func (t *TransferState) SetStatusAt(s Status, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
	t.updatedAt = now
	if s.IsTerminal() {
		t.finishedAt = now
	} else {
		t.finishedAt = time.Time{}
	}
}

// Finish records the status and outcome of a run together.
func (t *TransferState) Finish(s Status, o Outcome) {
	t.FinishAt(s, o, time.Now())
}

// FinishAt is Finish with an explicit timestamp.
func (t *TransferState) FinishAt(s Status, o Outcome, now time.Time) {
	t.SetStatusAt(s, now)
	t.mu.Lock()
	t.outcome = o
	t.mu.Unlock()
}

// MatchesFilter reports whether the current status belongs to any category in mask.
func (t *TransferState) MatchesFilter(mask Filter) bool {
	return t.Status().MatchesFilter(mask)
}

func (t *TransferState) TotalBytes() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalBytes
}

func (t *TransferState) SetTotalBytes(n int64) {
	t.mu.Lock()
	t.totalBytes = n
	t.mu.Unlock()
}

func (t *TransferState) DoneBytes() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.doneBytes
}

// AddDoneBytes advances progress by n bytes and returns the new total.
func (t *TransferState) AddDoneBytes(n int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > 0 {
		t.doneBytes += n
	}
	return t.doneBytes
}

// RestartProgress discards partial progress when the local file can no
// longer be trusted.
func (t *TransferState) RestartProgress() {
	t.mu.Lock()
	t.doneBytes = 0
	t.resuming = false
	t.mu.Unlock()
}

// URL returns the redirect target when one was followed, else the spec URL.
func (t *TransferState) URL() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.redirectedURL != "" {
		return t.redirectedURL
	}
	return t.spec.URL
}

func (t *TransferState) RedirectedURL() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.redirectedURL
}

// FollowRedirect stores the new location and counts the redirect.
func (t *TransferState) FollowRedirect(location string) {
	t.mu.Lock()
	t.redirectedURL = location
	t.numRedirects++
	t.mu.Unlock()
}

func (t *TransferState) NumRedirects() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.numRedirects
}

func (t *TransferState) NumFailures() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.numFailures
}

// ScheduleRetry counts a server-requested backoff and records when the
// transfer may be admitted again.
func (t *TransferState) ScheduleRetry(seconds int, now time.Time) {
	t.mu.Lock()
	t.numFailures++
	t.retryAfter = seconds
	t.retryNotBefore = now.Add(time.Duration(seconds) * time.Second)
	t.mu.Unlock()
}

func (t *TransferState) RetryAfterSeconds() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.retryAfter
}

func (t *TransferState) RetryNotBefore() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.retryNotBefore
}

// RetryDue reports whether a backoff recorded by ScheduleRetry has elapsed.
func (t *TransferState) RetryDue(now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !now.Before(t.retryNotBefore)
}

func (t *TransferState) EntityTag() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entityTag
}

func (t *TransferState) SetEntityTag(tag string) {
	t.mu.Lock()
	t.entityTag = tag
	t.mu.Unlock()
}

func (t *TransferState) Resuming() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resuming
}

func (t *TransferState) SetResuming(v bool) {
	t.mu.Lock()
	t.resuming = v
	t.mu.Unlock()
}

// Pausing is the intent attached to a cancellation: true means pause.
func (t *TransferState) Pausing() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pausing
}

func (t *TransferState) SetPausing(v bool) {
	t.mu.Lock()
	t.pausing = v
	t.mu.Unlock()
}

func (t *TransferState) Outcome() Outcome {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.outcome
}

func (t *TransferState) OneShotNotificationShown() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.oneShotShown
}

func (t *TransferState) SetOneShotNotificationShown(v bool) {
	t.mu.Lock()
	t.oneShotShown = v
	t.mu.Unlock()
}

func (t *TransferState) FinishedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.finishedAt
}

// Reset clears all per-attempt bookkeeping so the transfer can start over.
// The status is left to the caller.
func (t *TransferState) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalBytes = 0
	t.doneBytes = 0
	t.redirectedURL = ""
	t.numRedirects = 0
	t.numFailures = 0
	t.retryAfter = -1
	t.retryNotBefore = time.Time{}
	t.entityTag = ""
	t.resuming = false
	t.pausing = false
	t.outcome = OutcomeNone
	t.oneShotShown = false
	t.finishedAt = time.Time{}
}
