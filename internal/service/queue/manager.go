package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/domain/event"
	"github.com/otaupdater/ota-download-manager/internal/domain/repository"
	"github.com/otaupdater/ota-download-manager/internal/domain/service"
	"github.com/otaupdater/ota-download-manager/internal/port"
	"github.com/otaupdater/ota-download-manager/internal/util/ratelimiter"
)

// Config contains queue manager configuration
type Config struct {
	Network service.NetworkSettings

	// ProgressNotifyInterval throttles progress events to observers.
	ProgressNotifyInterval time.Duration
	// PersistInterval throttles progress-driven snapshot writes.
	PersistInterval time.Duration
	// IdleTimeout is how long the manager waits with nothing to do before
	// signalling Idle.
	IdleTimeout time.Duration
	// SaveTimeout bounds one snapshot write.
	SaveTimeout time.Duration

	WakeLockTag string
}

// DefaultConfig returns default queue configuration
func DefaultConfig() Config {
	return Config{
		ProgressNotifyInterval: 500 * time.Millisecond,
		PersistInterval:        100 * time.Millisecond,
		IdleTimeout:            60 * time.Second,
		SaveTimeout:            5 * time.Second,
		WakeLockTag:            "otadl",
	}
}

type activeRun struct {
	id        int64
	runner    Runner
	startedAt time.Time

	// Commands that arrive while the run is winding down are applied once
	// it has finished.
	resumeRequested bool
	retryRequested  bool
}

// Manager owns the transfer map and the pending queue, admits at most one
// transfer at a time and keeps the durable snapshot current.
//
// Lock order: notifyMu or persistMu (never both), then mu, then a
// TransferState's own lock. Events and snapshot writes are produced under mu
// and delivered after it is released.
type Manager struct {
	config     Config
	repo       repository.TransferRepository
	runners    RunnerFactory
	conn       port.ConnectivitySource
	wake       port.WakeLock
	dispatcher event.EventDispatcher
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.Mutex
	transfers map[int64]*domain.TransferState
	order     []int64
	pending   []int64
	active    *activeRun
	settings  service.NetworkSettings
	connDirty bool

	running  bool
	stopping bool
	runCtx   context.Context
	cancel   context.CancelFunc

	subscribers int
	idleTimer   *time.Timer
	idleCh      chan struct{}
	idleFired   bool

	notifyLimiter  *ratelimiter.Limiter
	persistLimiter *ratelimiter.Limiter
	persistTimer   *time.Timer

	outbox      []event.DomainEvent
	pendingSnap *domain.Snapshot

	notifyMu  sync.Mutex
	persistMu sync.Mutex
}

// Option customizes a Manager
type Option func(*Manager)

// WithClock replaces the wall clock used for retry deadlines, throttling and retention.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithWakeLock sets the wake lock held while a transfer runs.
func WithWakeLock(w port.WakeLock) Option {
	return func(m *Manager) { m.wake = w }
}

// WithDispatcher sets the dispatcher observers subscribe through.
func WithDispatcher(d event.EventDispatcher) Option {
	return func(m *Manager) { m.dispatcher = d }
}

// New creates a new Manager
func New(cfg Config, repo repository.TransferRepository, runners RunnerFactory, conn port.ConnectivitySource, logger *zap.Logger, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.ProgressNotifyInterval <= 0 {
		cfg.ProgressNotifyInterval = def.ProgressNotifyInterval
	}
	if cfg.PersistInterval <= 0 {
		cfg.PersistInterval = def.PersistInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = def.SaveTimeout
	}
	if cfg.WakeLockTag == "" {
		cfg.WakeLockTag = def.WakeLockTag
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		config:    cfg,
		repo:      repo,
		runners:   runners,
		conn:      conn,
		logger:    logger,
		now:       time.Now,
		transfers: make(map[int64]*domain.TransferState),
		settings:  cfg.Network,
		idleCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.wake == nil {
		m.wake = nopWakeLock{}
	}
	if m.dispatcher == nil {
		m.dispatcher = event.NewInMemoryDispatcher(logger)
	}
	m.notifyLimiter = ratelimiter.NewWithClock(cfg.ProgressNotifyInterval, m.now)
	m.persistLimiter = ratelimiter.NewWithClock(cfg.PersistInterval, m.now)
	return m
}

// Start loads the persisted snapshot, recovers transfers interrupted by a
// previous shutdown and admits the first eligible one.
func (m *Manager) Start(ctx context.Context) error {
	snap, err := m.repo.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load transfer snapshot: %w", err)
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("queue manager already running")
	}
	m.restoreLocked(snap)
	m.running = true
	m.stopping = false
	m.runCtx, m.cancel = context.WithCancel(context.Background())
	m.connDirty = true

	m.logger.Info("queue manager started",
		zap.Int("transfers", len(m.order)),
		zap.Int("pending", len(m.pending)))

	m.persistLocked(true)
	m.tryAdmitNextLocked()
	m.checkIdleLocked()
	m.mu.Unlock()

	m.flush()
	return nil
}

// restoreLocked rebuilds the in-memory state from snap. Transfers that were
// starting, running or paused by a shutdown go back to Queued.
func (m *Manager) restoreLocked(snap *domain.Snapshot) {
	m.transfers = make(map[int64]*domain.TransferState, len(snap.Transfers))
	m.order = m.order[:0]
	m.pending = m.pending[:0]

	for _, rec := range snap.Transfers {
		if _, dup := m.transfers[rec.ID]; dup {
			continue
		}
		st := domain.RestoreTransferState(rec)
		switch st.Status() {
		case domain.StatusStarting, domain.StatusRunning, domain.StatusPausedSystem:
			st.SetStatusAt(domain.StatusQueued, m.now())
		}
		m.transfers[rec.ID] = st
		m.order = append(m.order, rec.ID)
	}

	for _, id := range snap.Pending {
		if st, ok := m.transfers[id]; ok && !st.Status().IsTerminal() {
			m.addPendingLocked(id)
		}
	}
	for _, id := range m.order {
		if !m.transfers[id].Status().IsTerminal() {
			m.addPendingLocked(id)
		}
	}
}

// Stop pauses the running transfer as a system pause, waits for it to wind
// down and flushes the snapshot.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running || m.stopping {
		m.mu.Unlock()
		return
	}
	m.stopping = true
	active := m.active
	if active != nil {
		st := m.transfers[active.id]
		if st.Status() == domain.StatusStarting || st.Status() == domain.StatusRunning {
			m.setStatusLocked(st, domain.StatusPausedSystem)
		}
		active.runner.Pause()
	}
	m.stopIdleLocked()
	m.mu.Unlock()
	m.flush()

	if active != nil {
		<-active.runner.Done()
	}

	m.mu.Lock()
	m.cancel()
	m.running = false
	if m.persistTimer != nil {
		m.persistTimer.Stop()
		m.persistTimer = nil
	}
	m.persistLocked(true)
	if m.wake.Held() {
		m.wake.Release()
	}
	m.mu.Unlock()
	m.flush()

	m.logger.Info("queue manager stopped")
}

// Idle is closed once the manager has had nothing to do for IdleTimeout:
// no running transfer, no subscriber and nothing pending that could be
// admitted without a user command.
func (m *Manager) Idle() <-chan struct{} {
	return m.idleCh
}

// Subscription is a registered observer. Close it to unsubscribe.
type Subscription struct {
	m       *Manager
	handler event.EventHandler
	once    sync.Once
}

// Close unsubscribes the handler
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.m.dispatcher.Unsubscribe(s.handler)
		s.m.mu.Lock()
		s.m.subscribers--
		s.m.checkIdleLocked()
		s.m.mu.Unlock()
	})
}

// Subscribe registers an observer for transfer events. Handlers run on the
// goroutine that caused the event, must not block and must not issue commands.
// An open subscription keeps the manager from going idle.
func (m *Manager) Subscribe(h event.EventHandler) *Subscription {
	m.dispatcher.Subscribe(h)
	m.mu.Lock()
	m.subscribers++
	m.stopIdleLocked()
	m.mu.Unlock()
	return &Subscription{m: m, handler: h}
}

// NetworkSettings returns the settings admission currently applies.
func (m *Manager) NetworkSettings() service.NetworkSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// SetNetworkSettings replaces the settings and re-evaluates every waiting transfer.
func (m *Manager) SetNetworkSettings(s service.NetworkSettings) {
	m.mu.Lock()
	m.settings = s
	m.requeueNetworkPausedLocked()
	m.mu.Unlock()
	m.flush()
}

func (m *Manager) idleLocked() bool {
	if !m.running || m.stopping || m.active != nil || m.subscribers > 0 {
		return false
	}
	for _, id := range m.pending {
		if m.transfers[id].Status() != domain.StatusPausedUser {
			return false
		}
	}
	return true
}

func (m *Manager) checkIdleLocked() {
	if !m.idleLocked() {
		m.stopIdleLocked()
		return
	}
	if m.idleTimer != nil || m.idleFired {
		return
	}
	m.idleTimer = time.AfterFunc(m.config.IdleTimeout, m.fireIdle)
}

func (m *Manager) stopIdleLocked() {
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
}

func (m *Manager) fireIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleTimer = nil
	if m.idleFired || !m.idleLocked() {
		return
	}
	m.idleFired = true
	close(m.idleCh)
	m.logger.Info("queue manager idle", zap.Duration("after", m.config.IdleTimeout))
}

type nopWakeLock struct{}

func (nopWakeLock) Acquire(string) {}
func (nopWakeLock) Release()       {}
func (nopWakeLock) Held() bool     { return false }
