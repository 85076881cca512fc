package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInit_InvalidLevel(t *testing.T) {
	assert.Error(t, Init(Config{Level: "loud", Format: "json"}))
}

func TestInit_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "otadl.log")
	require.NoError(t, Init(Config{Level: "info", Format: "text", File: path}))

	GetZapLogger().Info("transfer finished", zap.Int64("transfer_id", 42))
	GetZapLogger().Debug("below the level")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"transfer finished"`)
	assert.Contains(t, string(data), `"transfer_id":42`)
	assert.NotContains(t, string(data), "below the level")

	rotator = nil
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error"} {
		_, err := parseLevel(name)
		assert.NoError(t, err, name)
	}
}
