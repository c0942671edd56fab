package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lee-tech/analytics/internal/aggregation"
	"github.com/lee-tech/analytics/internal/cache"
	"github.com/lee-tech/analytics/internal/constants"
	"github.com/lee-tech/analytics/internal/fetcher"
	"github.com/lee-tech/analytics/internal/hierarchy"
	"github.com/lee-tech/analytics/internal/metrics"
	"github.com/lee-tech/analytics/internal/projection"
	"github.com/lee-tech/analytics/internal/server"
	// The source component must resolve before the analytics service.
	_ "github.com/lee-tech/analytics/internal/source"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	tracerName       = "github.com/lee-tech/analytics/internal/service"
	cacheReadTimeout = 2 * time.Second
)

// ErrRefreshSuperseded is returned by a refresh that a newer refresh replaced
// before it finished. Its results are discarded.
var ErrRefreshSuperseded = errors.New("refresh superseded by a newer refresh")

// Where a dashboard was served from.
const (
	ServedFromMemory  = "memory"
	ServedFromCache   = "cache"
	ServedFromRefresh = "refresh"
)

// AnalyticsOptions tunes an AnalyticsService.
type AnalyticsOptions struct {
	Engine           *aggregation.Engine
	Cache            cache.DashboardCache
	Metrics          *metrics.PipelineMetrics
	Logger           *zap.Logger
	TracerProvider   trace.TracerProvider
	IncludePositions bool
	// StaleAfter is how long Dashboard serves the last result before refreshing.
	StaleAfter time.Duration
	Now        func() time.Time
}

// HierarchyView is the resolved hierarchy of one fetch together with the
// sources that failed.
type HierarchyView struct {
	hierarchy.Hierarchy
	SnapshotID    uuid.UUID            `json:"snapshotId"`
	Partial       bool                 `json:"partial"`
	FailedSources []fetcher.SourceName `json:"failedSources"`
}

// AnalyticsService runs refresh cycles: fetch, resolve, aggregate, project.
type AnalyticsService struct {
	fetcher          *fetcher.Fetcher
	engine           *aggregation.Engine
	cache            cache.DashboardCache
	metrics          *metrics.PipelineMetrics
	logger           *zap.Logger
	tracer           trace.Tracer
	includePositions bool
	staleAfter       time.Duration
	now              func() time.Time

	group singleflight.Group

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	latest     *projection.Dashboard
	latestAt   time.Time
}

// NewAnalyticsService wires a service over src.
func NewAnalyticsService(src fetcher.Source, opts AnalyticsOptions) *AnalyticsService {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := opts.Engine
	if engine == nil {
		engine = aggregation.NewEngine()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	provider := opts.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}

	fetchOpts := []fetcher.Option{
		fetcher.WithLogger(logger.Named("fetcher")),
		fetcher.WithTracerProvider(provider),
		fetcher.WithClock(now),
	}
	if opts.Metrics != nil {
		fetchOpts = append(fetchOpts, fetcher.WithRecorder(opts.Metrics))
	}

	return &AnalyticsService{
		fetcher:          fetcher.New(src, fetchOpts...),
		engine:           engine,
		cache:            opts.Cache,
		metrics:          opts.Metrics,
		logger:           logger,
		tracer:           provider.Tracer(tracerName),
		includePositions: opts.IncludePositions,
		staleAfter:       opts.StaleAfter,
		now:              now,
	}
}

func (s *AnalyticsService) sources() []fetcher.SourceName {
	names := append([]fetcher.SourceName(nil), fetcher.DefaultSources...)
	if s.includePositions {
		names = append(names, fetcher.SourcePositions)
	}
	return names
}

// Refresh runs one refresh cycle and stores its dashboard as the latest.
// Starting a refresh cancels the one in flight; the canceled cycle returns
// ErrRefreshSuperseded and never overwrites the newer result.
func (s *AnalyticsService) Refresh(ctx context.Context) (*projection.Dashboard, error) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	if s.cancel != nil {
		s.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.generation == gen {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel()
	}()

	start := s.now()
	runCtx, span := s.tracer.Start(runCtx, "analytics.refresh")
	defer span.End()

	dashboard, err := s.build(runCtx)
	if err != nil {
		outcome := metrics.OutcomeError
		if s.superseded(gen) {
			outcome, err = metrics.OutcomeSuperseded, ErrRefreshSuperseded
		} else if ctx.Err() != nil {
			outcome = metrics.OutcomeCanceled
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveRefresh(outcome, s.now().Sub(start))
		s.logger.Info("Refresh abandoned", zap.String("outcome", outcome), zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		s.metrics.ObserveRefresh(metrics.OutcomeSuperseded, s.now().Sub(start))
		return nil, ErrRefreshSuperseded
	}
	s.latest = dashboard
	s.latestAt = s.now()
	s.mu.Unlock()

	outcome := metrics.OutcomeComplete
	if dashboard.Partial {
		outcome = metrics.OutcomePartial
	}
	span.SetAttributes(
		attribute.String("snapshot_id", dashboard.SnapshotID.String()),
		attribute.Bool("partial", dashboard.Partial),
	)
	s.metrics.ObserveRefresh(outcome, s.now().Sub(start))
	s.metrics.ObserveDashboard(dashboard.Partial, len(dashboard.IntegrityFaults), dashboard.SkippedStatistics)

	fields := []zap.Field{
		zap.String("snapshot_id", dashboard.SnapshotID.String()),
		zap.Int("branches", dashboard.BranchCount),
		zap.Int("departments", dashboard.DepartmentCount),
		zap.Int("integrity_faults", len(dashboard.IntegrityFaults)),
		zap.Int("skipped_statistics", dashboard.SkippedStatistics),
	}
	if dashboard.Partial {
		s.logger.Warn("Dashboard refreshed with missing sources", append(fields, zap.Any("failed_sources", dashboard.FailedSources))...)
		return dashboard, nil
	}
	s.logger.Info("Dashboard refreshed", fields...)

	if s.cache != nil {
		if err := s.cache.Set(ctx, dashboard); err != nil {
			s.logger.Warn("Failed to cache dashboard", zap.Error(err))
		}
	}
	return dashboard, nil
}

func (s *AnalyticsService) superseded(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation != gen
}

func (s *AnalyticsService) build(ctx context.Context) (*projection.Dashboard, error) {
	snap, err := s.fetcher.Fetch(ctx, s.sources()...)
	if err != nil {
		return nil, err
	}
	h := resolveSnapshot(snap)
	if len(h.Faults) > 0 {
		s.logger.Debug("Departments with unresolved branches", zap.Int("count", len(h.Faults)))
	}
	res := s.engine.Aggregate(aggregation.Input{Statistics: snap.Statistics, Hierarchy: h})
	return projection.Build(snap, res, h.Faults), nil
}

// resolveSnapshot joins what the snapshot retrieved. A failed parent
// collection leaves its children unresolved rather than faulted.
func resolveSnapshot(snap *fetcher.Snapshot) hierarchy.Hierarchy {
	var opts []hierarchy.Option
	if !snap.Available(fetcher.SourceBranches) {
		opts = append(opts, hierarchy.BranchesUnavailable())
	}
	if !snap.Available(fetcher.SourceDepartments) {
		opts = append(opts, hierarchy.DepartmentsUnavailable())
	}
	return hierarchy.Resolve(snap.Branches, snap.Departments, snap.Positions, opts...)
}

// Dashboard returns the latest dashboard while it is younger than the
// staleness window and refreshes otherwise. force always refreshes.
// Concurrent refreshes triggered here share one cycle. When the refresh
// fails, the previous dashboard is returned, then the cached one.
func (s *AnalyticsService) Dashboard(ctx context.Context, force bool) (*projection.Dashboard, error) {
	s.mu.Lock()
	latest, at := s.latest, s.latestAt
	s.mu.Unlock()

	if !force && latest != nil && s.now().Sub(at) < s.staleAfter {
		s.metrics.ObserveServed(ServedFromMemory)
		return latest, nil
	}

	var dashboard *projection.Dashboard
	var err error
	if force {
		dashboard, err = s.Refresh(ctx)
	} else {
		dashboard, err = s.sharedRefresh(ctx)
	}
	if err == nil {
		s.metrics.ObserveServed(ServedFromRefresh)
		return dashboard, nil
	}

	if latest != nil {
		s.logger.Warn("Refresh failed, serving previous dashboard", zap.Error(err))
		s.metrics.ObserveServed(ServedFromMemory)
		return latest, nil
	}
	if s.cache != nil {
		cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheReadTimeout)
		cached, cacheErr := s.cache.Get(cacheCtx)
		cancel()
		if cacheErr == nil {
			s.logger.Warn("Refresh failed, serving cached dashboard", zap.Error(err))
			s.metrics.ObserveServed(ServedFromCache)
			return cached, nil
		}
		if !errors.Is(cacheErr, cache.ErrCacheMiss) {
			s.logger.Warn("Dashboard cache unavailable", zap.Error(cacheErr))
		}
	}
	return nil, err
}

// sharedRefresh joins an in-progress shared refresh or starts one. The
// caller can leave when ctx ends without canceling the shared cycle.
func (s *AnalyticsService) sharedRefresh(ctx context.Context) (*projection.Dashboard, error) {
	ch := s.group.DoChan("refresh", func() (interface{}, error) {
		return s.Refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*projection.Dashboard), nil
	}
}

// Latest returns the last stored dashboard, or nil before the first refresh.
func (s *AnalyticsService) Latest() *projection.Dashboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Hierarchy fetches the hierarchy collections and resolves them.
func (s *AnalyticsService) Hierarchy(ctx context.Context) (*HierarchyView, error) {
	ctx, span := s.tracer.Start(ctx, "analytics.hierarchy")
	defer span.End()

	names := []fetcher.SourceName{fetcher.SourceBranches, fetcher.SourceDepartments}
	if s.includePositions {
		names = append(names, fetcher.SourcePositions)
	}
	snap, err := s.fetcher.Fetch(ctx, names...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetch hierarchy: %w", err)
	}

	view := &HierarchyView{
		Hierarchy:     resolveSnapshot(snap),
		SnapshotID:    snap.ID,
		Partial:       snap.Partial(),
		FailedSources: snap.FailedSources(),
	}
	return view, nil
}

func init() {
	server.RegisterService(constants.ComponentKey.AnalyticsService, func(app *server.HTTPApp) (interface{}, error) {
		srcComponent, ok := app.GetComponent(constants.ComponentKey.Source)
		if !ok {
			return nil, fmt.Errorf("component %s not found", constants.ComponentKey.Source)
		}
		src, ok := srcComponent.(fetcher.Source)
		if !ok {
			return nil, fmt.Errorf("component %s has unexpected type %T", constants.ComponentKey.Source, srcComponent)
		}

		opts := AnalyticsOptions{
			Engine:           aggregation.NewEngine(aggregation.WithShiftMode(aggregation.ShiftMode(app.Config.ShiftMode))),
			Logger:           app.Logger.Named("analytics"),
			IncludePositions: app.Config.IncludePosition,
			StaleAfter:       app.Config.StaleAfter,
		}
		if c, ok := app.GetComponent(constants.ComponentKey.DashboardCache); ok {
			opts.Cache, _ = c.(cache.DashboardCache)
		}
		if m, ok := app.GetComponent(constants.ComponentKey.PipelineMetrics); ok {
			opts.Metrics, _ = m.(*metrics.PipelineMetrics)
		}
		return NewAnalyticsService(src, opts), nil
	})
}
