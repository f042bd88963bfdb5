package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/motorland/carmarket/internal/config"
	"github.com/motorland/carmarket/internal/observability"
)

// run starts the transports and blocks until a shutdown signal arrives.
func run(app *application, configPath string, logger observability.Logger) {
	go func() {
		if err := app.httpServer.Start(); err != nil {
			logger.Fatal("http server failed", observability.Error(err))
		}
	}()

	if app.grpcServer != nil {
		go func() {
			if err := app.grpcServer.Start(); err != nil {
				logger.Fatal("grpc server failed", observability.Error(err))
			}
		}()
	}

	watcher := startConfigWatcher(app, configPath, logger)

	waitForShutdown(app, watcher, logger)
}

// waitForShutdown waits for a shutdown signal and drains the servers.
func waitForShutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		app.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop http server gracefully", observability.Error(err))
	}

	if app.grpcServer != nil {
		if err := app.grpcServer.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop grpc server gracefully", observability.Error(err))
		}
	}

	// The cache owns the shared redis client: closing it also closes
	// the connection used by the rate limit counters.
	if err := app.cache.Close(); err != nil {
		logger.Error("failed to close cache", observability.Error(err))
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	app.auditLogger.Close()

	logger.Info("shutdown complete")
}
