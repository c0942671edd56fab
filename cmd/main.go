package main

import (
	"context"
	"log"
	"time"

	"github.com/lee-tech/analytics/config"
	"github.com/lee-tech/analytics/internal/constants"
	"github.com/lee-tech/analytics/internal/logging"
	"github.com/lee-tech/analytics/internal/server"
	"github.com/lee-tech/analytics/internal/service"
	"go.uber.org/zap"

	_ "github.com/lee-tech/analytics/api/handlers"
)

const warmupTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	app, err := server.InitializeHTTPApp(cfg, &server.HTTPAppOptions{
		InitialComponents: map[string]any{
			constants.ComponentKey.AnalyticsConfig: cfg,
		},
	})
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	cfg.RegisterOnConfigChange(func(newCfg *config.Config) {
		logging.Init(newCfg.LogLevel, newCfg.ServiceName, newCfg.ServiceVersion)
		app.Logger.Info("Configuration reloaded", zap.String("log_level", newCfg.LogLevel))
	})

	if watcher, err := config.NewWatcher(cfg.Config); err != nil {
		app.Logger.Warn("Failed to create config watcher", zap.Error(err))
	} else {
		watcher.Watch()
		defer func() { _ = watcher.Close() }()
	}

	app.RegisterMetricsEndpoint()

	if component, ok := app.GetComponent(constants.ComponentKey.AnalyticsService); ok {
		if analytics, ok := component.(*service.AnalyticsService); ok {
			go warmup(analytics, app.Logger)
		}
	}

	app.Logger.Info("Report analytics starting",
		zap.String("source_mode", cfg.SourceMode),
		zap.String("shift_mode", cfg.ShiftMode),
		zap.Bool("cache", app.Redis != nil),
		zap.Bool("database", app.DB != nil),
	)
	app.Run()
}

// warmup builds the first dashboard so early requests do not wait on it.
func warmup(analytics *service.AnalyticsService, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), warmupTimeout)
	defer cancel()
	if _, err := analytics.Dashboard(ctx, false); err != nil {
		logger.Warn("Initial dashboard refresh failed", zap.Error(err))
	}
}
