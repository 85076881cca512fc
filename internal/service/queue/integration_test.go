package queue

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/adapter/filesystem"
	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/domain/service"
	"github.com/otaupdater/ota-download-manager/internal/service/executor"
)

type stack struct {
	m     *Manager
	repo  *memRepo
	fs    *filesystem.Manager
	conn  *switchConn
	clock *fakeClock
}

func newStack(t *testing.T, network service.NetworkSettings, repo *memRepo) *stack {
	t.Helper()
	fs, err := filesystem.NewManager(t.TempDir())
	require.NoError(t, err)
	if repo == nil {
		repo = &memRepo{}
	}

	s := &stack{
		repo:  repo,
		fs:    fs,
		conn:  newSwitchConn(domain.NetworkWifi),
		clock: &fakeClock{now: time.Now()},
	}

	ecfg := executor.DefaultConfig()
	ecfg.ReadRetryDelay = time.Millisecond
	factory := executor.NewFactory(ecfg, fs, s.conn, zap.NewNop())

	cfg := DefaultConfig()
	cfg.Network = network
	s.m = New(cfg, repo, NewExecutorRunners(factory), s.conn, zap.NewNop(), WithClock(s.clock.Now))
	t.Cleanup(s.m.Stop)
	return s
}

func (s *stack) waitFor(t *testing.T, id int64, want domain.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := s.m.Status(id)
		return err == nil && st == want && s.m.ActiveCount() == 0
	}, 10*time.Second, 5*time.Millisecond, "transfer never reached %s", want)
}

func serveContent(payload []byte, etag string, requests *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("ETag", etag)
		http.ServeContent(w, r, "update.zip", time.Time{}, bytes.NewReader(payload))
	}
}

func TestIntegration_WaitsForWifi(t *testing.T) {
	payload := bytes.Repeat([]byte{0x5a}, 10485760)
	var requests atomic.Int32
	srv := httptest.NewServer(serveContent(payload, `"v1"`, &requests))
	defer srv.Close()

	s := newStack(t, service.NetworkSettings{WifiOnly: true}, nil)
	s.conn.Set(domain.NetworkCellular)
	require.NoError(t, s.m.Start(context.Background()))

	spec := domain.TransferSpec{URL: srv.URL + "/update.zip"}
	id, err := s.m.Enqueue(spec)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPausedForWifi, mustStatus(t, s.m, id))
	_, statErr := os.Stat(s.fs.DestinationPath(spec))
	assert.True(t, os.IsNotExist(statErr))
	assert.Zero(t, requests.Load())

	s.conn.Set(domain.NetworkWifi)
	s.m.ConnectivityChanged()
	s.waitFor(t, id, domain.StatusCompleted)

	rec := s.m.Transfer(id)
	require.NotNil(t, rec)
	assert.Equal(t, domain.OutcomeFinished, rec.Outcome)
	assert.Equal(t, int64(10485760), rec.TotalBytes)
	assert.Equal(t, int64(10485760), rec.DoneBytes)

	info, err := os.Stat(s.fs.DestinationPath(spec))
	require.NoError(t, err)
	assert.Equal(t, int64(10485760), info.Size())
}

func TestIntegration_ResumesAfterRestart(t *testing.T) {
	payload := append(bytes.Repeat([]byte{'a'}, 500000), bytes.Repeat([]byte{'b'}, 500000)...)
	var requests atomic.Int32
	srv := httptest.NewServer(serveContent(payload, `"v1"`, &requests))
	defer srv.Close()

	spec := domain.TransferSpec{URL: srv.URL + "/update.zip"}
	id := domain.TransferID(spec)
	repo := &memRepo{snap: &domain.Snapshot{
		Transfers: []domain.TransferRecord{{
			ID:                id,
			Spec:              spec,
			Status:            domain.StatusPausedSystem,
			TotalBytes:        1000000,
			DoneBytes:         500000,
			EntityTag:         `"v1"`,
			RetryAfterSeconds: -1,
			Outcome:           domain.OutcomePaused,
		}},
		Pending: []int64{id},
	}}

	s := newStack(t, service.NetworkSettings{}, repo)
	dest := s.fs.DestinationPath(spec)
	require.NoError(t, s.fs.EnsureDir(filepath.Dir(dest)))
	require.NoError(t, os.WriteFile(dest, payload[:500000], 0644))

	require.NoError(t, s.m.Start(context.Background()))
	s.waitFor(t, id, domain.StatusCompleted)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, int32(1), requests.Load())

	rec, ok := repo.record(id)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCompleted, rec.Status)
	assert.Equal(t, int64(1000000), rec.DoneBytes)
}

func TestIntegration_ServiceUnavailableAcrossCycles(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := newStack(t, service.NetworkSettings{}, nil)
	require.NoError(t, s.m.Start(context.Background()))

	id, err := s.m.Enqueue(domain.TransferSpec{URL: srv.URL + "/update.zip"})
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		s.waitFor(t, id, domain.StatusPausedRetry)
		rec := s.m.Transfer(id)
		assert.Equal(t, domain.OutcomeRetryLater, rec.Outcome)
		assert.Equal(t, i, rec.NumFailures)

		if i == 1 {
			// The backoff has not elapsed yet.
			assert.Zero(t, s.m.RetryDue())
		}

		s.clock.Advance(2 * time.Hour)
		require.Equal(t, 1, s.m.RetryDue())
	}

	s.waitFor(t, id, domain.StatusFailed)
	rec := s.m.Transfer(id)
	assert.Equal(t, domain.OutcomeFailedTooManyRetries, rec.Outcome)
	assert.Equal(t, int32(6), requests.Load())
}

func mustStatus(t *testing.T, m *Manager, id int64) domain.Status {
	t.Helper()
	st, err := m.Status(id)
	require.NoError(t, err)
	return st
}
