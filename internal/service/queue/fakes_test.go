package queue

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/domain/event"
	"github.com/otaupdater/ota-download-manager/internal/service/executor"
)

// memRepo is an in-memory TransferRepository.
type memRepo struct {
	mu    sync.Mutex
	snap  *domain.Snapshot
	saves int
}

func copySnapshot(s *domain.Snapshot) *domain.Snapshot {
	if s == nil {
		return &domain.Snapshot{}
	}
	return &domain.Snapshot{
		Transfers: append([]domain.TransferRecord(nil), s.Transfers...),
		Pending:   append([]int64(nil), s.Pending...),
	}
}

func (r *memRepo) SaveSnapshot(_ context.Context, s *domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap = copySnapshot(s)
	r.saves++
	return nil
}

func (r *memRepo) LoadSnapshot(context.Context) (*domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copySnapshot(r.snap), nil
}

func (r *memRepo) Saved() (*domain.Snapshot, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copySnapshot(r.snap), r.saves
}

func (r *memRepo) record(id int64) (domain.TransferRecord, bool) {
	snap, _ := r.Saved()
	for _, rec := range snap.Transfers {
		if rec.ID == id {
			return rec, true
		}
	}
	return domain.TransferRecord{}, false
}

// switchConn is a connectivity source tests can flip.
type switchConn struct {
	mu   sync.Mutex
	conn domain.Connectivity
}

func newSwitchConn(t domain.NetworkType) *switchConn {
	c := &switchConn{}
	c.Set(t)
	return c
}

func (c *switchConn) Current() domain.Connectivity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *switchConn) Set(t domain.NetworkType) {
	c.mu.Lock()
	c.conn = domain.Connectivity{Connected: t != domain.NetworkNone, Type: t}
	c.mu.Unlock()
}

type fakeWakeLock struct {
	mu       sync.Mutex
	held     bool
	acquired int
}

func (w *fakeWakeLock) Acquire(string) {
	w.mu.Lock()
	w.held = true
	w.acquired++
	w.mu.Unlock()
}

func (w *fakeWakeLock) Release() {
	w.mu.Lock()
	w.held = false
	w.mu.Unlock()
}

func (w *fakeWakeLock) Held() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.held
}

// fakeRunner stands in for an executor. Tests drive its callbacks directly.
type fakeRunner struct {
	st       *domain.TransferState
	listener executor.Listener
	runID    string
	done     chan struct{}

	started   atomic.Bool
	paused    atomic.Bool
	cancelled atomic.Bool
}

func (r *fakeRunner) Start(context.Context) { r.started.Store(true) }
func (r *fakeRunner) Pause()                { r.st.SetPausing(true); r.paused.Store(true) }
func (r *fakeRunner) Cancel()               { r.st.SetPausing(false); r.cancelled.Store(true) }
func (r *fakeRunner) Done() <-chan struct{} { return r.done }
func (r *fakeRunner) RunID() string         { return r.runID }

func (r *fakeRunner) begin() {
	r.listener.OnStart(r.st)
}

func (r *fakeRunner) progress(n int64) {
	r.st.AddDoneBytes(n)
	r.listener.OnProgress(r.st)
}

func (r *fakeRunner) finish(status domain.Status, outcome domain.Outcome) {
	r.st.Finish(status, outcome)
	if outcome == domain.OutcomePaused {
		r.listener.OnPaused(r.st)
	}
	r.listener.OnFinished(r.st, outcome)
	close(r.done)
}

type fakeRunners struct {
	mu      sync.Mutex
	runners []*fakeRunner
}

func (f *fakeRunners) NewRunner(st *domain.TransferState, l executor.Listener) Runner {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &fakeRunner{
		st:       st,
		listener: l,
		runID:    "run-" + strconv.Itoa(len(f.runners)+1),
		done:     make(chan struct{}),
	}
	f.runners = append(f.runners, r)
	return r
}

func (f *fakeRunners) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runners)
}

func (f *fakeRunners) Last() *fakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runners) == 0 {
		return nil
	}
	return f.runners[len(f.runners)-1]
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// eventRecorder subscribes to every event.
type eventRecorder struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (r *eventRecorder) Handle(e event.DomainEvent) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *eventRecorder) HandledEvents() []string { return []string{"*"} }

func (r *eventRecorder) Events() []event.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.DomainEvent(nil), r.events...)
}

func (r *eventRecorder) Named(name string) []event.DomainEvent {
	var out []event.DomainEvent
	for _, e := range r.Events() {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	m       *Manager
	repo    *memRepo
	runners *fakeRunners
	conn    *switchConn
	wake    *fakeWakeLock
	clock   *fakeClock
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		repo:    &memRepo{},
		runners: &fakeRunners{},
		conn:    newSwitchConn(domain.NetworkWifi),
		wake:    &fakeWakeLock{},
		clock:   &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h.m = New(cfg, h.repo, h.runners, h.conn, zap.NewNop(),
		WithClock(h.clock.Now), WithWakeLock(h.wake))
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.m.Start(context.Background()))
}

func (h *harness) enqueue(t *testing.T, name string) int64 {
	t.Helper()
	id, err := h.m.Enqueue(domain.TransferSpec{URL: "https://updates.example.com/" + name})
	require.NoError(t, err)
	return id
}

func (h *harness) status(t *testing.T, id int64) domain.Status {
	t.Helper()
	s, err := h.m.Status(id)
	require.NoError(t, err)
	return s
}
