package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/adapter/filesystem"
	"github.com/otaupdater/ota-download-manager/internal/adapter/network"
	"github.com/otaupdater/ota-download-manager/internal/adapter/power"
	"github.com/otaupdater/ota-download-manager/internal/adapter/sqlite"
	"github.com/otaupdater/ota-download-manager/internal/config"
	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/domain/event"
	"github.com/otaupdater/ota-download-manager/internal/domain/service"
	"github.com/otaupdater/ota-download-manager/internal/service/executor"
	"github.com/otaupdater/ota-download-manager/internal/service/maintenance"
	"github.com/otaupdater/ota-download-manager/internal/service/queue"
	"github.com/otaupdater/ota-download-manager/internal/telemetry"
)

// app is the wired download stack shared by the serve and fetch commands.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      *sqlite.Store
	fs         *filesystem.Manager
	monitor    *network.Monitor
	dispatcher *event.InMemoryDispatcher
	manager    *queue.Manager
	telemetry  *telemetry.Telemetry
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	fsManager, err := filesystem.NewManagerWithBufferSize(cfg.Download.RootDir, cfg.Download.GetBufferSize())
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem manager: %w", err)
	}

	store, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}

	monitor := network.New(network.Config{
		WifiInterfaces:     cfg.Network.WifiInterfaces,
		EthernetInterfaces: cfg.Network.EthernetInterfaces,
		CellularInterfaces: cfg.Network.CellularInterfaces,
		PollInterval:       cfg.Network.GetPollInterval(),
	}, logger.Named("network"))
	if _, _, err := monitor.Refresh(); err != nil {
		logger.Warn("initial network probe failed", zap.Error(err))
	}

	settings, err := queue.LoadNetworkSettings(ctx, store, service.NetworkSettings{
		WifiOnly:       cfg.Network.WifiOnly,
		MobileMaxBytes: cfg.Network.MobileMaxBytes,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load network preferences: %w", err)
	}

	factory := executor.NewFactory(executor.Config{
		MaxRetries:      cfg.Download.MaxRetries,
		MaxRedirects:    cfg.Download.MaxRedirects,
		RetryMinSeconds: cfg.Download.RetryMinSeconds,
		RetryMaxSeconds: cfg.Download.RetryMaxSeconds,
		BufferSize:      cfg.Download.GetBufferSize(),
		ReadRetryLimit:  cfg.Download.ReadRetryLimit,
		ReadRetryDelay:  cfg.Download.GetReadRetryDelay(),
		UserAgent:       cfg.Download.UserAgent,
		ConnectTimeout:  cfg.Download.GetConnectTimeout(),
		VerifyChecksum:  cfg.Download.VerifyChecksum,
		StrictSizeCheck: cfg.Download.StrictSizeCheck,
	}, fsManager, monitor, logger.Named("executor"))

	wake := power.New(power.Config{
		LockPath:   cfg.Download.WakeLockPath,
		UnlockPath: cfg.Download.WakeUnlockPath,
	}, logger.Named("power"))

	dispatcher := event.NewInMemoryDispatcher(logger)
	manager := queue.New(queue.Config{
		Network:                settings,
		ProgressNotifyInterval: cfg.Queue.GetProgressNotifyInterval(),
		PersistInterval:        cfg.Queue.GetPersistInterval(),
		IdleTimeout:            cfg.Queue.GetIdleTimeout(),
		SaveTimeout:            cfg.Queue.GetSaveTimeout(),
	}, store, queue.NewExecutorRunners(factory), monitor, logger.Named("queue"),
		queue.WithWakeLock(wake),
		queue.WithDispatcher(dispatcher),
	)

	tel, err := telemetry.New(telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	}, telemetry.Sources{
		ActiveTransfers: manager.ActiveCount,
		DiskUsage:       fsManager.GetDiskUsage,
	}, logger.Named("telemetry"))
	if err != nil {
		store.Close()
		return nil, err
	}

	// Observers on the dispatcher itself do not count as subscribers, so
	// they never keep the manager from going idle.
	dispatcher.Subscribe(event.NewLoggingHandler(logger.Named("events")))
	dispatcher.Subscribe(tel)

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		fs:         fsManager,
		monitor:    monitor,
		dispatcher: dispatcher,
		manager:    manager,
		telemetry:  tel,
	}, nil
}

// runMonitor polls connectivity until ctx is done and re-evaluates the queue
// on every change.
func (a *app) runMonitor(ctx context.Context) {
	a.monitor.Run(ctx, func(c domain.Connectivity) {
		a.logger.Info("connectivity changed", zap.Stringer("network", c))
		a.manager.ConnectivityChanged()
	})
}

func (a *app) newMaintenance() *maintenance.Service {
	var keep []string
	if a.cfg.DatabaseInsideRoot() {
		db := filepath.Clean(a.cfg.Database.Path)
		keep = append(keep, db, db+"-wal", db+"-shm")
	}
	return maintenance.New(&maintenance.Config{
		RetryCheckInterval: a.cfg.Maintenance.GetRetryCheckInterval(),
		PruneInterval:      a.cfg.Maintenance.GetPruneInterval(),
		Retention:          a.cfg.Maintenance.GetRetention(),
		OrphanInterval:     a.cfg.Maintenance.GetOrphanInterval(),
		OrphanAge:          a.cfg.Maintenance.GetOrphanAge(),
		KeepPaths:          keep,
	}, a.manager, a.fs, a.store, a.logger.Named("maintenance"))
}

func (a *app) close(ctx context.Context) {
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to shut down telemetry", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
}
