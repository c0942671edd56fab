package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/lee-tech/analytics/config"
	"github.com/lee-tech/analytics/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// HTTPAppOptions tunes InitializeHTTPApp.
type HTTPAppOptions struct {
	Migrations           []any
	InitialComponents    map[string]any
	AdditionalMiddleware []mux.MiddlewareFunc
	DisableHealthRoutes  bool
	// DisableHandlers resolves repositories and services only, for CLI tools.
	DisableHandlers bool
}

// HTTPApp holds the shared infrastructure and the resolved components.
type HTTPApp struct {
	Config  *config.AnalyticsConfig
	Router  *mux.Router
	Logger  *zap.Logger
	DB      *gorm.DB
	Redis   *redis.Client
	Metrics *prometheus.Registry

	mu         sync.RWMutex
	components map[string]any
	httpServer *http.Server
}

// InitializeHTTPApp connects the configured backends and resolves every registered component.
func InitializeHTTPApp(cfg *config.AnalyticsConfig, opts *HTTPAppOptions) (*HTTPApp, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts == nil {
		opts = &HTTPAppOptions{}
	}

	logger := logging.Init(cfg.LogLevel, cfg.ServiceName, cfg.ServiceVersion)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app := &HTTPApp{
		Config:     cfg,
		Router:     mux.NewRouter(),
		Logger:     logger,
		Metrics:    registry,
		components: make(map[string]any),
	}
	for key, component := range opts.InitialComponents {
		app.components[key] = component
	}
	for _, mw := range opts.AdditionalMiddleware {
		app.Router.Use(mw)
	}

	repoFactories, serviceFactories, handlerFactories, models := snapshotRegistry()

	if cfg.DatabaseDSN != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		models = append(models, opts.Migrations...)
		if len(models) > 0 {
			if err := db.AutoMigrate(models...); err != nil {
				return nil, fmt.Errorf("migrate database: %w", err)
			}
		}
		app.DB = db
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Warn("Redis unavailable, dashboard cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = client.Close()
		} else {
			app.Redis = client
		}
	}

	if err := app.resolve(repoFactories); err != nil {
		return nil, err
	}
	if err := app.resolve(serviceFactories); err != nil {
		return nil, err
	}

	if !opts.DisableHealthRoutes {
		Route(app.Router, "/healthz", app.health, WithMethods(http.MethodGet), WithName("health"))
	}

	if !opts.DisableHandlers {
		for _, factory := range handlerFactories {
			if err := factory(app); err != nil {
				return nil, fmt.Errorf("register handler: %w", err)
			}
		}
	}

	return app, nil
}

func (a *HTTPApp) resolve(factories []namedFactory) error {
	for _, nf := range factories {
		component, err := nf.factory(a)
		if err != nil {
			return fmt.Errorf("initialise %s: %w", nf.key, err)
		}
		if component == nil {
			a.Logger.Debug("Component skipped", zap.String("component", nf.key))
			continue
		}
		a.SetComponent(nf.key, component)
	}
	return nil
}

// GetComponent returns a resolved component by key.
func (a *HTTPApp) GetComponent(key string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	component, ok := a.components[key]
	return component, ok
}

// SetComponent stores a component under key, replacing any previous value.
func (a *HTTPApp) SetComponent(key string, component any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.components[key] = component
}

// RegisterMetricsEndpoint exposes the Prometheus registry at /metrics.
func (a *HTTPApp) RegisterMetricsEndpoint() {
	a.Router.Handle("/metrics", promhttp.HandlerFor(a.Metrics, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

func (a *HTTPApp) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := `{"status":"ok"}`
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err != nil || sqlDB.PingContext(r.Context()) != nil {
			status = http.StatusServiceUnavailable
			body = `{"status":"degraded","database":"unreachable"}`
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// Run serves HTTP until SIGINT or SIGTERM, then shuts down gracefully.
func (a *HTTPApp) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.httpServer = &http.Server{
		Addr:              a.Config.HTTPAddr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("HTTP server listening", zap.String("addr", a.Config.HTTPAddr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.Logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			a.Logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	timeout := a.Config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("Shutdown incomplete", zap.Error(err))
	}
}

// Shutdown stops the HTTP server and closes the backends.
func (a *HTTPApp) Shutdown(ctx context.Context) error {
	var err error
	if a.httpServer != nil {
		err = multierr.Append(err, a.httpServer.Shutdown(ctx))
	}
	if a.Redis != nil {
		err = multierr.Append(err, a.Redis.Close())
	}
	if a.DB != nil {
		if sqlDB, dbErr := a.DB.DB(); dbErr == nil {
			err = multierr.Append(err, sqlDB.Close())
		}
	}
	_ = a.Logger.Sync()
	return err
}
