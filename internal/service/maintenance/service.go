package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/port"
)

// Config contains maintenance service configuration
type Config struct {
	// RetryCheckInterval is the longest the service waits before looking for
	// transfers whose server-requested backoff has elapsed
	RetryCheckInterval time.Duration

	// PruneInterval is how often finished transfers are pruned
	PruneInterval time.Duration

	// Retention is how long finished transfers are kept. Zero keeps them forever.
	Retention time.Duration

	// OrphanInterval is how often unreferenced files are removed
	OrphanInterval time.Duration

	// OrphanAge is how old an unreferenced file must be before it is removed
	OrphanAge time.Duration

	// KeepPaths are never removed by the orphan sweep
	KeepPaths []string
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		RetryCheckInterval: 10 * time.Second,
		PruneInterval:      time.Hour,
		Retention:          7 * 24 * time.Hour,
		OrphanInterval:     6 * time.Hour,
		OrphanAge:          24 * time.Hour,
	}
}

// Queue is the part of the queue manager maintenance drives
type Queue interface {
	RetryDue() int
	NextRetry() (time.Time, bool)
	Prune(olderThan time.Duration) int
	List(filter domain.Filter) []domain.TransferRecord
}

// Service handles periodic maintenance tasks
type Service struct {
	config *Config
	queue  Queue
	fs     port.FileSystem
	files  port.CompletedFileRepository
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service
func New(cfg *Config, queue Queue, fs port.FileSystem, files port.CompletedFileRepository, logger *zap.Logger) *Service {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.RetryCheckInterval <= 0 {
		cfg.RetryCheckInterval = def.RetryCheckInterval
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = def.PruneInterval
	}
	if cfg.OrphanInterval <= 0 {
		cfg.OrphanInterval = def.OrphanInterval
	}
	if cfg.OrphanAge <= 0 {
		cfg.OrphanAge = def.OrphanAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config: cfg,
		queue:  queue,
		fs:     fs,
		files:  files,
		logger: logger,
	}
}

// Start starts the maintenance service and blocks until ctx is done or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("retry_check_interval", s.config.RetryCheckInterval),
		zap.Duration("prune_interval", s.config.PruneInterval),
		zap.Duration("retention", s.config.Retention),
		zap.Duration("orphan_interval", s.config.OrphanInterval))

	s.wg.Add(2)
	go s.retryLoop(ctx)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// retryLoop wakes up for the earliest pending backoff, or at the check
// interval when none is pending sooner.
func (s *Service) retryLoop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.retryWait(time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.requeueDueRetries()
			timer.Reset(s.retryWait(time.Now()))
		}
	}
}

func (s *Service) retryWait(now time.Time) time.Duration {
	wait := s.config.RetryCheckInterval
	if next, ok := s.queue.NextRetry(); ok {
		if d := next.Sub(now); d < wait {
			wait = max(d, 0)
		}
	}
	return wait
}

// maintenanceLoop handles the slower housekeeping tasks
func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	pruneTicker := time.NewTicker(s.config.PruneInterval)
	defer pruneTicker.Stop()

	orphanTicker := time.NewTicker(s.config.OrphanInterval)
	defer orphanTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pruneTicker.C:
			s.pruneFinished(ctx)
		case <-orphanTicker.C:
			s.cleanupOrphans(ctx)
		}
	}
}

func (s *Service) requeueDueRetries() {
	if n := s.queue.RetryDue(); n > 0 {
		s.logger.Info("requeued transfers after backoff", zap.Int("count", n))
	}
}

// pruneFinished removes finished transfers older than the retention period.
// Completed files are recorded first so the orphan sweep leaves them alone
// once their transfer is gone.
func (s *Service) pruneFinished(ctx context.Context) {
	if s.config.Retention <= 0 {
		return
	}

	var completed []string
	for _, rec := range s.queue.List(domain.FilterCompleted) {
		completed = append(completed, s.fs.DestinationPath(rec.Spec))
	}
	if err := s.files.KeepCompletedFiles(ctx, completed); err != nil {
		s.logger.Error("failed to record completed files, skipping prune", zap.Error(err))
		return
	}

	if n := s.queue.Prune(s.config.Retention); n > 0 {
		s.logger.Info("pruned finished transfers", zap.Int("count", n))
	}
}

// cleanupOrphans removes files under the download root that belong neither to
// a known transfer nor to a completed download whose transfer was pruned.
func (s *Service) cleanupOrphans(ctx context.Context) {
	completed, err := s.files.CompletedFiles(ctx)
	if err != nil {
		s.logger.Error("failed to load completed files, skipping orphan sweep", zap.Error(err))
		return
	}

	keep := make(map[string]bool)
	status := make(map[string]domain.Status)
	for _, rec := range s.queue.List(domain.FilterAll) {
		p := s.fs.DestinationPath(rec.Spec)
		keep[p] = true
		status[p] = rec.Status
	}
	for _, p := range s.config.KeepPaths {
		keep[p] = true
	}

	// A recorded path stops being protected once its file is gone or a live
	// transfer owns it again without having completed.
	var forget []string
	for _, p := range completed {
		st, known := status[p]
		if known && st != domain.StatusCompleted {
			forget = append(forget, p)
			continue
		}
		if _, exists, err := s.fs.Stat(p); err == nil && !exists {
			forget = append(forget, p)
			continue
		}
		keep[p] = true
	}
	if err := s.files.ForgetCompletedFiles(ctx, forget); err != nil {
		s.logger.Warn("failed to forget completed files", zap.Error(err))
	}

	count, err := s.fs.CleanOrphans(keep, s.config.OrphanAge)
	if err != nil {
		s.logger.Error("failed to clean orphaned files", zap.Error(err))
	} else if count > 0 {
		s.logger.Info("removed orphaned files", zap.Int("count", count))
	}
}
