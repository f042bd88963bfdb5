package main

import (
	"context"

	"github.com/motorland/carmarket/internal/audit"
	"github.com/motorland/carmarket/internal/config"
	"github.com/motorland/carmarket/internal/observability"
	"github.com/motorland/carmarket/internal/ratelimit"
)

// startConfigWatcher watches the configuration file and applies the
// reloadable subset on change. Only rate limit tiers are hot swapped;
// everything else requires a restart.
func startConfigWatcher(app *application, configPath string, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath,
		func(cfg *config.Config) { applyReload(app, cfg, logger) },
		config.WithWatcherLogger(logger),
		config.WithErrorCallback(func(err error) {
			logger.Error("config reload failed", observability.Error(err))
		}),
	)
	if err != nil {
		logger.Warn("config watcher unavailable, hot reload disabled",
			observability.Error(err))
		return nil
	}

	if err := watcher.Start(); err != nil {
		logger.Warn("failed to start config watcher, hot reload disabled",
			observability.Error(err))
		return nil
	}

	logger.Info("config watcher started",
		observability.String("path", configPath))
	return watcher
}

// applyReload applies the reloadable parts of a new configuration.
func applyReload(app *application, cfg *config.Config, logger observability.Logger) {
	if err := cfg.Validate(); err != nil {
		logger.Error("rejecting reloaded config", observability.Error(err))
		return
	}

	if fixed, ok := app.limiter.(*ratelimit.FixedWindowLimiter); ok {
		fixed.SetTiers(ratelimit.TiersFromConfig(&cfg.RateLimit))
	}

	event := audit.NewEvent(audit.EventTypeConfiguration, audit.ActionConfigReload, audit.OutcomeSuccess)
	app.auditLogger.LogEvent(context.Background(), event)

	logger.Info("configuration reloaded")
}
