// Package aggregation turns report statistics into chart-ready series.
//
// Every function here is pure: the input snapshot is never modified and two
// calls with the same input return deeply equal results.
package aggregation

import (
	"strconv"
	"strings"
	"time"

	"github.com/lee-tech/analytics/internal/hierarchy"
	"github.com/lee-tech/analytics/internal/models"
)

// ShiftMode selects how shift series values are produced.
type ShiftMode string

const (
	// ShiftModeLegacy plots the numeric prefix of the shift label, as the
	// original dashboard did. The series is flagged so consumers can tell.
	ShiftModeLegacy ShiftMode = "legacy"
	// ShiftModeCount plots the number of reports per shift.
	ShiftModeCount ShiftMode = "count"
)

const dateLayout = "2006-01-02"

// Skip reasons recorded on MalformedStatistic.
const (
	ReasonMissingLabel  = "missing label"
	ReasonMissingCount  = "missing count"
	ReasonNegativeCount = "negative count"
)

// Point is one (label, value) pair of a series.
type Point struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// MalformedStatistic identifies a stat entry that was skipped.
type MalformedStatistic struct {
	Group  models.StatGroup `json:"group"`
	Index  int              `json:"index"`
	Reason string           `json:"reason"`
}

// Series is the aggregate for one stat group.
type Series struct {
	Group             models.StatGroup     `json:"group"`
	Points            []Point              `json:"points"`
	Skipped           []MalformedStatistic `json:"skipped,omitempty"`
	LegacyShiftValues bool                 `json:"legacyShiftValues,omitempty"`
}

// Labels returns the point labels in order.
func (s Series) Labels() []string {
	labels := make([]string, len(s.Points))
	for i, p := range s.Points {
		labels[i] = p.Label
	}
	return labels
}

// Values returns the point values in order.
func (s Series) Values() []int64 {
	values := make([]int64, len(s.Points))
	for i, p := range s.Points {
		values[i] = p.Value
	}
	return values
}

// Total sums the series values.
func (s Series) Total() int64 {
	var total int64
	for _, p := range s.Points {
		total += p.Value
	}
	return total
}

// Engine aggregates statistics snapshots.
type Engine struct {
	shiftMode ShiftMode
}

// Option configures an Engine.
type Option func(*Engine)

// WithShiftMode sets the shift aggregation mode. Unknown modes fall back to legacy.
func WithShiftMode(mode ShiftMode) Option {
	return func(e *Engine) {
		switch mode {
		case ShiftModeCount:
			e.shiftMode = ShiftModeCount
		default:
			e.shiftMode = ShiftModeLegacy
		}
	}
}

// NewEngine returns an Engine in legacy shift mode unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{shiftMode: ShiftModeLegacy}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ShiftMode reports the configured shift mode.
func (e *Engine) ShiftMode() ShiftMode {
	return e.shiftMode
}

// AggregateByMeasurement keeps the source order and passes unknown levels through.
func (e *Engine) AggregateByMeasurement(stats *models.ReportStatisticsSnapshot) Series {
	return countSeries(models.GroupMeasurement, stats.Group(models.GroupMeasurement), nil)
}

// AggregateByLocation groups by the location text exactly as received.
func (e *Engine) AggregateByLocation(stats *models.ReportStatisticsSnapshot) Series {
	return countSeries(models.GroupLocation, stats.Group(models.GroupLocation), nil)
}

// AggregateByShift produces one point per shift label.
func (e *Engine) AggregateByShift(stats *models.ReportStatisticsSnapshot) Series {
	entries := stats.Group(models.GroupShift)
	if e.shiftMode == ShiftModeCount {
		return countSeries(models.GroupShift, entries, nil)
	}

	series := Series{Group: models.GroupShift, Points: make([]Point, 0, len(entries)), LegacyShiftValues: true}
	for i, entry := range entries {
		if entry.Label == nil {
			series.Skipped = append(series.Skipped, MalformedStatistic{Group: models.GroupShift, Index: i, Reason: ReasonMissingLabel})
			continue
		}
		series.Points = append(series.Points, Point{Label: *entry.Label, Value: legacyShiftValue(*entry.Label)})
	}
	return series
}

// AggregateByDate returns exactly one point per calendar date. Timestamps
// are truncated to their UTC date and counts for the same date are summed.
func (e *Engine) AggregateByDate(stats *models.ReportStatisticsSnapshot) Series {
	return countSeries(models.GroupDate, stats.Group(models.GroupDate), normaliseDate)
}

// Input is everything one aggregation pass consumes. Statistics is nil when
// the statistics source failed.
type Input struct {
	Statistics *models.ReportStatisticsSnapshot
	Hierarchy  hierarchy.Hierarchy
}

// Result carries the scalar counts and the four series.
type Result struct {
	BranchCount     int `json:"branchCount"`
	DepartmentCount int `json:"departmentCount"`
	PositionCount   int `json:"positionCount"`

	StatisticsAvailable bool `json:"statisticsAvailable"`

	Measurement Series `json:"measurement"`
	Location    Series `json:"location"`
	Shift       Series `json:"shift"`
	Date        Series `json:"date"`

	SkippedCount int `json:"skippedCount"`
}

// Skipped lists the skipped entries of every series in group order.
func (r Result) Skipped() []MalformedStatistic {
	skipped := make([]MalformedStatistic, 0, r.SkippedCount)
	for _, s := range []Series{r.Measurement, r.Location, r.Shift, r.Date} {
		skipped = append(skipped, s.Skipped...)
	}
	return skipped
}

// Aggregate runs all four aggregations.
func (e *Engine) Aggregate(in Input) Result {
	res := Result{
		BranchCount:         in.Hierarchy.BranchCount,
		DepartmentCount:     in.Hierarchy.DepartmentCount,
		PositionCount:       in.Hierarchy.PositionCount,
		StatisticsAvailable: in.Statistics != nil,
		Measurement:         e.AggregateByMeasurement(in.Statistics),
		Location:            e.AggregateByLocation(in.Statistics),
		Shift:               e.AggregateByShift(in.Statistics),
		Date:                e.AggregateByDate(in.Statistics),
	}
	for _, s := range []Series{res.Measurement, res.Location, res.Shift, res.Date} {
		res.SkippedCount += len(s.Skipped)
	}
	return res
}

// countSeries sums counts by label, keeping the first-seen order. normalise,
// when set, maps each label to its grouping key.
func countSeries(group models.StatGroup, entries []models.StatEntry, normalise func(string) string) Series {
	series := Series{Group: group, Points: make([]Point, 0, len(entries))}
	index := make(map[string]int, len(entries))

	for i, entry := range entries {
		reason := ""
		switch {
		case entry.Label == nil:
			reason = ReasonMissingLabel
		case entry.Count == nil:
			reason = ReasonMissingCount
		case *entry.Count < 0:
			reason = ReasonNegativeCount
		}
		if reason != "" {
			series.Skipped = append(series.Skipped, MalformedStatistic{Group: group, Index: i, Reason: reason})
			continue
		}

		label := *entry.Label
		if normalise != nil {
			label = normalise(label)
		}
		if at, ok := index[label]; ok {
			series.Points[at].Value += *entry.Count
			continue
		}
		index[label] = len(series.Points)
		series.Points = append(series.Points, Point{Label: label, Value: *entry.Count})
	}
	return series
}

func normaliseDate(label string) string {
	trimmed := strings.TrimSpace(label)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", dateLayout} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC().Format(dateLayout)
		}
	}
	return label
}

// legacyShiftValue reads the leading decimal number of a label such as
// "08:00 - 16:00", giving 0 when there is none.
func legacyShiftValue(label string) int64 {
	s := strings.TrimSpace(label)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[end] == '-' || s[end] == '+')) {
		end++
	}
	v, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
