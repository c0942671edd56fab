package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lee-tech/analytics/internal/aggregation"
	"github.com/lee-tech/analytics/internal/cache"
	"github.com/lee-tech/analytics/internal/fetcher"
	"github.com/lee-tech/analytics/internal/metrics"
	"github.com/lee-tech/analytics/internal/models"
	"github.com/lee-tech/analytics/internal/projection"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	branches    []models.Branch
	departments []models.Department
	positions   []models.Position
	stats       *models.ReportStatisticsSnapshot
	statsErr    error
	branchesErr error
	deptsErr    error

	// blockFirst makes the first Branches call wait for its context to end.
	blockFirst bool
	// hold makes every Branches call wait until release is closed.
	hold    bool
	release chan struct{}
	started chan struct{}

	branchCalls atomic.Int32
	startOnce   sync.Once
}

func (s *scriptedSource) Branches(ctx context.Context) ([]models.Branch, error) {
	n := s.branchCalls.Add(1)
	if s.started != nil {
		s.startOnce.Do(func() { close(s.started) })
	}
	if s.blockFirst && n == 1 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.hold {
		<-s.release
	}
	if s.branchesErr != nil {
		return nil, s.branchesErr
	}
	return s.branches, nil
}

func (s *scriptedSource) Departments(context.Context) ([]models.Department, error) {
	if s.deptsErr != nil {
		return nil, s.deptsErr
	}
	return s.departments, nil
}

func (s *scriptedSource) Positions(context.Context) ([]models.Position, error) {
	return s.positions, nil
}

func (s *scriptedSource) ReportStatistics(context.Context) (*models.ReportStatisticsSnapshot, error) {
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	return s.stats, nil
}

type memoryCache struct {
	mu        sync.Mutex
	dashboard *projection.Dashboard
	sets      int
}

func (c *memoryCache) Get(context.Context) (*projection.Dashboard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dashboard == nil {
		return nil, cache.ErrCacheMiss
	}
	return c.dashboard, nil
}

func (c *memoryCache) Set(_ context.Context, d *projection.Dashboard) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dashboard = d
	c.sets++
	return nil
}

func healthySource() *scriptedSource {
	return &scriptedSource{
		branches:    []models.Branch{{ID: "1", Status: models.StatusActive}},
		departments: []models.Department{{ID: "10", BranchID: "1"}, {ID: "11", BranchID: "99"}},
		positions:   []models.Position{{ID: "100", DepartmentID: "10"}},
		stats: &models.ReportStatisticsSnapshot{
			MeasurementStats: []models.StatEntry{models.NewStatEntry("HIGH", 3), models.NewStatEntry("LOW", 2)},
			ShiftStats:       []models.StatEntry{models.NewStatEntry("08:00 - 16:00", 5)},
		},
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRefreshBuildsDashboard(t *testing.T) {
	c := &memoryCache{}
	svc := NewAnalyticsService(healthySource(), AnalyticsOptions{
		Engine: aggregation.NewEngine(aggregation.WithShiftMode(aggregation.ShiftModeCount)),
		Cache:  c,
	})

	d, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	assert.False(t, d.Partial)
	assert.Equal(t, 1, d.BranchCount)
	assert.Equal(t, 2, d.DepartmentCount)
	assert.Zero(t, d.PositionCount, "positions are not fetched unless enabled")
	assert.Len(t, d.IntegrityFaults, 1)
	assert.Equal(t, []string{"HIGH", "LOW"}, d.Measurement.Categories)
	assert.Equal(t, []int64{5}, d.Shift.Series[0].Values)
	assert.Same(t, d, svc.Latest())
	assert.Equal(t, 1, c.sets)
}

func TestRefreshPartialIsNotCached(t *testing.T) {
	src := healthySource()
	src.statsErr = errors.New("upstream 502")
	c := &memoryCache{}
	reg := prometheus.NewRegistry()
	m, err := metrics.NewPipelineMetrics(reg)
	require.NoError(t, err)

	svc := NewAnalyticsService(src, AnalyticsOptions{Cache: c, Metrics: m})
	d, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	assert.True(t, d.Partial)
	assert.Equal(t, []fetcher.SourceName{fetcher.SourceReportStatistics}, d.FailedSources)
	assert.Equal(t, 1, d.BranchCount)
	assert.Empty(t, d.Measurement.Series)
	assert.Zero(t, c.sets)

	count, err := testutil.GatherAndCount(reg, "report_analytics_source_fetch_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRefreshIncludesPositions(t *testing.T) {
	svc := NewAnalyticsService(healthySource(), AnalyticsOptions{IncludePositions: true})
	d, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, d.PositionCount)
}

func TestNewerRefreshSupersedesInFlight(t *testing.T) {
	src := healthySource()
	src.blockFirst = true
	src.started = make(chan struct{})
	svc := NewAnalyticsService(src, AnalyticsOptions{})

	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Refresh(context.Background())
		firstErr <- err
	}()
	<-src.started

	d, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrRefreshSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("superseded refresh did not return")
	}
	assert.Same(t, d, svc.Latest(), "superseded refresh must not overwrite the newer dashboard")
}

func TestRefreshCanceledByCaller(t *testing.T) {
	src := healthySource()
	src.blockFirst = true
	src.started = make(chan struct{})
	svc := NewAnalyticsService(src, AnalyticsOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-src.started
		cancel()
	}()

	_, err := svc.Refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, svc.Latest())
}

func TestDashboardServesFreshResultFromMemory(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	src := healthySource()
	svc := NewAnalyticsService(src, AnalyticsOptions{StaleAfter: time.Minute, Now: clock.Now})
	ctx := context.Background()

	first, err := svc.Dashboard(ctx, false)
	require.NoError(t, err)
	second, err := svc.Dashboard(ctx, false)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), src.branchCalls.Load())

	clock.Advance(2 * time.Minute)
	third, err := svc.Dashboard(ctx, false)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, int32(2), src.branchCalls.Load())

	_, err = svc.Dashboard(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int32(3), src.branchCalls.Load())
}

func TestDashboardConcurrentCallersShareRefresh(t *testing.T) {
	src := healthySource()
	src.hold = true
	src.release = make(chan struct{})
	src.started = make(chan struct{})
	svc := NewAnalyticsService(src, AnalyticsOptions{StaleAfter: time.Minute})

	results := make(chan *projection.Dashboard, 2)
	go func() {
		d, _ := svc.Dashboard(context.Background(), false)
		results <- d
	}()
	<-src.started
	go func() {
		d, _ := svc.Dashboard(context.Background(), false)
		results <- d
	}()

	time.Sleep(20 * time.Millisecond)
	close(src.release)

	a, b := <-results, <-results
	require.NotNil(t, a)
	assert.Same(t, a, b)
	assert.Equal(t, int32(1), src.branchCalls.Load())
}

func TestDashboardFallsBackToCacheOnColdStart(t *testing.T) {
	src := healthySource()
	src.hold = true
	src.release = make(chan struct{})
	t.Cleanup(func() { close(src.release) })

	cached := &projection.Dashboard{BranchCount: 7}
	svc := NewAnalyticsService(src, AnalyticsOptions{Cache: &memoryCache{dashboard: cached}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	d, err := svc.Dashboard(ctx, false)
	require.NoError(t, err)
	assert.Same(t, cached, d)
}

func TestDashboardWithoutFallback(t *testing.T) {
	src := healthySource()
	src.hold = true
	src.release = make(chan struct{})
	t.Cleanup(func() { close(src.release) })

	svc := NewAnalyticsService(src, AnalyticsOptions{Cache: &memoryCache{}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Dashboard(ctx, false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHierarchy(t *testing.T) {
	svc := NewAnalyticsService(healthySource(), AnalyticsOptions{IncludePositions: true})

	view, err := svc.Hierarchy(context.Background())
	require.NoError(t, err)

	assert.False(t, view.Partial)
	assert.Empty(t, view.FailedSources)
	assert.Equal(t, 1, view.BranchCount)
	assert.Equal(t, 2, view.DepartmentCount)
	require.Len(t, view.Departments, 1)
	assert.Equal(t, models.ID("10"), view.Departments[0].Department.ID)
	assert.Len(t, view.Faults, 1)
	assert.Len(t, view.Positions, 1)
}

func TestBranchOutageIsNotAnIntegrityFault(t *testing.T) {
	src := healthySource()
	src.branchesErr = errors.New("branches down")
	reg := prometheus.NewRegistry()
	m, err := metrics.NewPipelineMetrics(reg)
	require.NoError(t, err)
	svc := NewAnalyticsService(src, AnalyticsOptions{Metrics: m})

	dashboard, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, dashboard.Partial)
	assert.Equal(t, []fetcher.SourceName{fetcher.SourceBranches}, dashboard.FailedSources)
	assert.Equal(t, 2, dashboard.DepartmentCount)
	assert.Empty(t, dashboard.IntegrityFaults)
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP report_analytics_integrity_faults Departments with a dangling branch reference in the last dashboard.
# TYPE report_analytics_integrity_faults gauge
report_analytics_integrity_faults 0
`), "report_analytics_integrity_faults"))

	view, err := svc.Hierarchy(context.Background())
	require.NoError(t, err)
	assert.True(t, view.Partial)
	assert.Equal(t, 2, view.DepartmentCount)
	assert.Empty(t, view.Faults)
	assert.True(t, view.DepartmentsUnresolved)
}

func TestDepartmentOutageLeavesPositionsUnresolved(t *testing.T) {
	src := healthySource()
	src.deptsErr = errors.New("departments down")
	svc := NewAnalyticsService(src, AnalyticsOptions{IncludePositions: true})

	view, err := svc.Hierarchy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []fetcher.SourceName{fetcher.SourceDepartments}, view.FailedSources)
	assert.Empty(t, view.PositionFaults)
	assert.True(t, view.PositionsUnresolved)
	assert.Equal(t, 1, view.BranchCount)
}
