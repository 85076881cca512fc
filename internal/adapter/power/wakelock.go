package power

import (
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/port"
)

// Config holds wake lock configuration
type Config struct {
	// LockPath and UnlockPath are the kernel's userspace wakelock files.
	// When LockPath does not exist the lock is tracked in process only.
	LockPath   string
	UnlockPath string
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		LockPath:   "/sys/power/wake_lock",
		UnlockPath: "/sys/power/wake_unlock",
	}
}

// WakeLock holds at most one named kernel wakelock at a time.
type WakeLock struct {
	config Config
	logger *zap.Logger

	mu   sync.Mutex
	tag  string
	held bool
}

// Ensure WakeLock implements port.WakeLock
var _ port.WakeLock = (*WakeLock)(nil)

// New creates a new WakeLock
func New(cfg Config, logger *zap.Logger) *WakeLock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WakeLock{config: cfg, logger: logger}
}

// Acquire takes the lock under tag. Acquiring while held is a no-op.
func (w *WakeLock) Acquire(tag string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.held {
		return
	}
	w.tag = tag
	w.held = true
	w.write(w.config.LockPath, tag)
	w.logger.Debug("wake lock acquired", zap.String("tag", tag))
}

// Release drops the lock if it is held.
func (w *WakeLock) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.held {
		return
	}
	w.write(w.config.UnlockPath, w.tag)
	w.logger.Debug("wake lock released", zap.String("tag", w.tag))
	w.held = false
	w.tag = ""
}

// Held reports whether the lock is currently held.
func (w *WakeLock) Held() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.held
}

func (w *WakeLock) write(path, tag string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := os.WriteFile(path, []byte(tag), 0); err != nil {
		w.logger.Warn("failed to write wakelock", zap.String("path", path), zap.Error(err))
	}
}
