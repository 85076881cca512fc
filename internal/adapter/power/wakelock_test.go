package power

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWakeLock_WritesKernelFiles(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "wake_lock")
	unlockPath := filepath.Join(dir, "wake_unlock")
	require.NoError(t, os.WriteFile(lockPath, nil, 0644))
	require.NoError(t, os.WriteFile(unlockPath, nil, 0644))

	w := New(Config{LockPath: lockPath, UnlockPath: unlockPath}, zap.NewNop())
	w.Acquire("otadl")
	w.Acquire("ignored")
	assert.True(t, w.Held())

	data, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	assert.Equal(t, "otadl", string(data))

	w.Release()
	w.Release()
	assert.False(t, w.Held())

	data, err = os.ReadFile(unlockPath)
	require.NoError(t, err)
	assert.Equal(t, "otadl", string(data))
}

func TestWakeLock_InProcessOnly(t *testing.T) {
	w := New(Config{LockPath: filepath.Join(t.TempDir(), "missing")}, nil)
	w.Acquire("otadl")
	assert.True(t, w.Held())
	w.Release()
	assert.False(t, w.Held())
}
