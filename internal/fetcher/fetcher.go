// Package fetcher retrieves the upstream collections of one refresh cycle
// concurrently and joins them into a Snapshot.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lee-tech/analytics/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/lee-tech/analytics/internal/fetcher"

// SourceName is the logical name of one upstream collection.
type SourceName string

const (
	SourceBranches         SourceName = "branches"
	SourceDepartments      SourceName = "departments"
	SourceReportStatistics SourceName = "reportStatistics"
	SourcePositions        SourceName = "positions"
)

// DefaultSources are the collections the dashboard needs.
var DefaultSources = []SourceName{SourceBranches, SourceDepartments, SourceReportStatistics}

// sourceOrder fixes the order faults are reported in.
var sourceOrder = []SourceName{SourceBranches, SourceDepartments, SourceReportStatistics, SourcePositions}

var (
	ErrUnknownSource        = errors.New("unknown source")
	ErrPositionsUnsupported = errors.New("source does not serve positions")
)

// Source retrieves the raw collections. Implementations must be safe for concurrent use.
type Source interface {
	Branches(ctx context.Context) ([]models.Branch, error)
	Departments(ctx context.Context) ([]models.Department, error)
	ReportStatistics(ctx context.Context) (*models.ReportStatisticsSnapshot, error)
}

// PositionSource is implemented by sources that also serve positions.
type PositionSource interface {
	Positions(ctx context.Context) ([]models.Position, error)
}

// SourceUnavailable records that one source failed to produce a usable payload.
type SourceUnavailable struct {
	Source SourceName
	Err    error
}

func (e *SourceUnavailable) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailable) Unwrap() error {
	return e.Err
}

// Recorder observes individual source fetches.
type Recorder interface {
	ObserveFetch(source SourceName, elapsed time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFetch(SourceName, time.Duration, error) {}

// Snapshot is the immutable result of one fetch cycle. Every requested source
// has either a payload or an entry in Faults, never both.
type Snapshot struct {
	ID        uuid.UUID
	FetchedAt time.Time
	Requested []SourceName

	Branches    []models.Branch
	Departments []models.Department
	Positions   []models.Position
	Statistics  *models.ReportStatisticsSnapshot

	Faults []*SourceUnavailable
}

// Partial reports whether any requested source failed.
func (s *Snapshot) Partial() bool {
	return len(s.Faults) > 0
}

// FailedSources lists the failed sources in canonical order.
func (s *Snapshot) FailedSources() []SourceName {
	names := make([]SourceName, 0, len(s.Faults))
	for _, fault := range s.Faults {
		names = append(names, fault.Source)
	}
	return names
}

// Available reports whether name was requested and succeeded.
func (s *Snapshot) Available(name SourceName) bool {
	requested := false
	for _, r := range s.Requested {
		if r == name {
			requested = true
			break
		}
	}
	if !requested {
		return false
	}
	for _, fault := range s.Faults {
		if fault.Source == name {
			return false
		}
	}
	return true
}

// Err combines every fault, or returns nil for a complete snapshot.
func (s *Snapshot) Err() error {
	var err error
	for _, fault := range s.Faults {
		err = multierr.Append(err, fault)
	}
	return err
}

// Fetcher issues one retrieval per requested source concurrently and joins
// them before returning.
type Fetcher struct {
	source   Source
	logger   *zap.Logger
	recorder Recorder
	tracer   trace.Tracer
	now      func() time.Time
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger for fetch failures and timings.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithRecorder observes every source fetch, typically for metrics.
func WithRecorder(recorder Recorder) Option {
	return func(f *Fetcher) {
		if recorder != nil {
			f.recorder = recorder
		}
	}
}

// WithTracerProvider sets where per-source spans are created.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(f *Fetcher) {
		if provider != nil {
			f.tracer = provider.Tracer(tracerName)
		}
	}
}

// WithClock replaces time.Now for Snapshot.FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

// New builds a Fetcher over source.
func New(source Source, opts ...Option) *Fetcher {
	f := &Fetcher{
		source:   source,
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

type slots struct {
	branches    []models.Branch
	departments []models.Department
	positions   []models.Position
	statistics  *models.ReportStatisticsSnapshot
	faults      [4]error
}

// clear drops whatever a failed source returned alongside its error.
func (s *slots) clear(name SourceName) {
	switch name {
	case SourceBranches:
		s.branches = nil
	case SourceDepartments:
		s.departments = nil
	case SourceReportStatistics:
		s.statistics = nil
	case SourcePositions:
		s.positions = nil
	}
}

// Fetch retrieves the named sources, DefaultSources when none are given.
// A failing source never aborts the others; it is reported in Snapshot.Faults.
// When ctx ends before every source has returned, the partial results are
// discarded and ctx.Err() is returned.
func (f *Fetcher) Fetch(ctx context.Context, names ...SourceName) (*Snapshot, error) {
	requested, err := normalise(names)
	if err != nil {
		return nil, err
	}

	var out slots
	var g errgroup.Group
	for _, name := range requested {
		g.Go(func() error {
			f.fetchOne(ctx, name, &out)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ID:          uuid.New(),
		FetchedAt:   f.now(),
		Requested:   requested,
		Branches:    out.branches,
		Departments: out.departments,
		Positions:   out.positions,
		Statistics:  out.statistics,
	}
	for i, name := range sourceOrder {
		if out.faults[i] != nil {
			snap.Faults = append(snap.Faults, &SourceUnavailable{Source: name, Err: out.faults[i]})
		}
	}
	return snap, nil
}

// fetchOne writes only the slot owned by name, so no locking is needed.
func (f *Fetcher) fetchOne(ctx context.Context, name SourceName, out *slots) {
	ctx, span := f.tracer.Start(ctx, "fetch "+string(name), trace.WithAttributes(attribute.String("source", string(name))))
	defer span.End()

	start := time.Now()
	var err error
	switch name {
	case SourceBranches:
		out.branches, err = f.source.Branches(ctx)
		if err == nil && out.branches == nil {
			out.branches = []models.Branch{}
		}
	case SourceDepartments:
		out.departments, err = f.source.Departments(ctx)
		if err == nil && out.departments == nil {
			out.departments = []models.Department{}
		}
	case SourceReportStatistics:
		out.statistics, err = f.source.ReportStatistics(ctx)
		if err == nil && out.statistics == nil {
			err = fmt.Errorf("%w: empty statistics", models.ErrMalformedPayload)
		}
	case SourcePositions:
		ps, ok := f.source.(PositionSource)
		if !ok {
			err = ErrPositionsUnsupported
			break
		}
		out.positions, err = ps.Positions(ctx)
		if err == nil && out.positions == nil {
			out.positions = []models.Position{}
		}
	}
	elapsed := time.Since(start)
	f.recorder.ObserveFetch(name, elapsed, err)

	if err != nil {
		out.clear(name)
		out.faults[indexOf(name)] = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() == nil {
			f.logger.Warn("Source fetch failed",
				zap.String("source", string(name)),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
		}
		return
	}
	f.logger.Debug("Source fetched", zap.String("source", string(name)), zap.Duration("elapsed", elapsed))
}

func normalise(names []SourceName) ([]SourceName, error) {
	if len(names) == 0 {
		names = DefaultSources
	}
	seen := make(map[SourceName]bool, len(names))
	requested := make([]SourceName, 0, len(names))
	for _, name := range names {
		if indexOf(name) < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		requested = append(requested, name)
	}
	return requested, nil
}

func indexOf(name SourceName) int {
	for i, n := range sourceOrder {
		if n == name {
			return i
		}
	}
	return -1
}
