package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/cache"
	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	"ledger/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(slog.Default())
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	be := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := be.Close(); err != nil {
			logger.Error("Failed to close record store", "error", err)
		}
	}()

	// Change notifications are optional; without AMQP the worker relies on
	// its periodic refresh.
	var publisher services.ChangePublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
		logger.Info("AMQP change notifications enabled", "exchange", cfg.AMQPExchange)
	}

	guard := services.NewDuplicateGuard(be.Store, cfg.DuplicateWindow)
	records := services.NewRecordService(be.Store, guard, publisher)
	views := services.NewViewService(be.Store, services.ViewOptions{
		Location:    cfg.Location(),
		GracePeriod: cfg.ViewGracePeriod,
		Logger:      logger,
	})

	srv := apphttp.NewServer(":"+cfg.Port, records, views, apphttp.Options{Logger: logger})
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	manager := cache.NewManager()
	for _, c := range views.Cleaners() {
		manager.Register(c)
	}
	for _, c := range srv.Cleaners() {
		manager.Register(c)
	}
	manager.StartCleanup(cfg.CachePruneInterval)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		manager.Stop()
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting ledger server", "port", cfg.Port, "backend", cfg.DataBackend, "timezone", cfg.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if be.Refresher != nil {
		// Another process may write the same database; re-read it periodically.
		g.Go(func() error {
			ticker := time.NewTicker(cfg.RefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if err := be.Refresher.Refresh(gctx); err != nil && gctx.Err() == nil {
						logger.Warn("Periodic refresh failed", "error", err)
					}
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
