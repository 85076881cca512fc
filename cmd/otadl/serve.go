package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/otaupdater/ota-download-manager/internal/domain/event"
	"github.com/otaupdater/ota-download-manager/internal/service/server"
)

func newServeCmd() *cobra.Command {
	var exitWhenIdle bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the download queue with its HTTP and websocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(exitWhenIdle)
		},
	}
	cmd.Flags().BoolVar(&exitWhenIdle, "exit-when-idle", false, "stop once the queue has had nothing to do for queue.idle_timeout")
	return cmd
}

func runServe(exitWhenIdle bool) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	log.Info("starting otadl",
		zap.String("version", version),
		zap.String("config", configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.close(closeCtx)
	}()

	hub := server.NewHub(func(h event.EventHandler) func() {
		return a.manager.Subscribe(h).Close
	}, log.Named("hub"))

	var metrics http.Handler
	var middleware []func(http.Handler) http.Handler
	if a.telemetry.Enabled() {
		metrics = a.telemetry.Handler()
		middleware = append(middleware, a.telemetry.Middleware)
	}

	httpServer := server.New(&server.Config{
		BindAddr:     cfg.HTTP.BindAddr,
		Username:     cfg.HTTP.Username,
		Password:     cfg.HTTP.Password,
		ReadTimeout:  cfg.HTTP.GetReadTimeout(),
		WriteTimeout: cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:  cfg.HTTP.GetIdleTimeout(),
	}, server.Deps{
		Queue:        a.manager,
		Preferences:  a.store,
		Connectivity: a.monitor,
		Store:        a.store,
		Hub:          hub,
		Metrics:      metrics,
		Middleware:   middleware,
	}, log.Named("http"))

	if err := a.manager.Start(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.runMonitor(gctx)
		return nil
	})

	maintenanceService := a.newMaintenance()
	g.Go(func() error {
		return maintenanceService.Start(gctx)
	})

	g.Go(func() error {
		hub.Run()
		return nil
	})

	g.Go(func() error {
		return httpServer.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		hub.Close()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			log.Error("failed to stop HTTP server gracefully", zap.Error(err))
		}
		return nil
	})

	if exitWhenIdle {
		g.Go(func() error {
			select {
			case <-a.manager.Idle():
				log.Info("queue idle, shutting down")
				cancel()
			case <-gctx.Done():
			}
			return nil
		})
	}

	log.Info("otadl started",
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.String("download_dir", cfg.Download.RootDir),
	)

	err = g.Wait()
	a.manager.Stop()
	if err != nil {
		return err
	}
	log.Info("otadl stopped")
	return nil
}
