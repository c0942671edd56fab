// Package projection shapes aggregation results into presentation-neutral charts.
package projection

import (
	"time"

	"github.com/google/uuid"
	"github.com/lee-tech/analytics/internal/aggregation"
	"github.com/lee-tech/analytics/internal/fetcher"
	"github.com/lee-tech/analytics/internal/hierarchy"
)

// Series names used in the charts.
const (
	SeriesReports = "Reports"
	SeriesShift   = "Shift"
)

// NamedSeries is one numeric sequence aligned by index with the chart categories.
type NamedSeries struct {
	Name   string  `json:"name"`
	Values []int64 `json:"values"`
}

// Chart is a set of categories and the series plotted against them.
type Chart struct {
	Title             string        `json:"title"`
	Categories        []string      `json:"categories"`
	Series            []NamedSeries `json:"series"`
	LegacyShiftValues bool          `json:"legacyShiftValues,omitempty"`
}

// Dashboard is the complete projection of one refresh cycle.
type Dashboard struct {
	SnapshotID  uuid.UUID `json:"snapshotId"`
	GeneratedAt time.Time `json:"generatedAt"`

	BranchCount     int `json:"branchCount"`
	DepartmentCount int `json:"departmentCount"`
	PositionCount   int `json:"positionCount"`

	Measurement Chart `json:"measurement"`
	Location    Chart `json:"location"`
	Shift       Chart `json:"shift"`
	Date        Chart `json:"date"`

	Partial       bool                 `json:"partial"`
	FailedSources []fetcher.SourceName `json:"failedSources"`

	IntegrityFaults     []hierarchy.IntegrityFault       `json:"integrityFaults"`
	SkippedStatistics   int                              `json:"skippedStatistics"`
	MalformedStatistics []aggregation.MalformedStatistic `json:"malformedStatistics,omitempty"`
}

// Charts returns the four charts in display order.
func (d *Dashboard) Charts() []Chart {
	return []Chart{d.Measurement, d.Location, d.Shift, d.Date}
}

// Build projects one snapshot's aggregation result. A chart whose series
// could not be produced has empty categories and no series.
func Build(snap *fetcher.Snapshot, res aggregation.Result, faults []hierarchy.IntegrityFault) *Dashboard {
	d := &Dashboard{
		BranchCount:       res.BranchCount,
		DepartmentCount:   res.DepartmentCount,
		PositionCount:     res.PositionCount,
		FailedSources:     []fetcher.SourceName{},
		IntegrityFaults:   []hierarchy.IntegrityFault{},
		SkippedStatistics: res.SkippedCount,
	}
	if snap != nil {
		d.SnapshotID = snap.ID
		d.GeneratedAt = snap.FetchedAt
		d.Partial = snap.Partial()
		d.FailedSources = snap.FailedSources()
	}
	if faults != nil {
		d.IntegrityFaults = faults
	}
	if res.SkippedCount > 0 {
		d.MalformedStatistics = res.Skipped()
	}

	available := res.StatisticsAvailable
	d.Measurement = chart("Reports by measurement", SeriesReports, res.Measurement, available)
	d.Location = chart("Reports by location", SeriesReports, res.Location, available)
	d.Shift = chart("Reports by shift", SeriesShift, res.Shift, available)
	d.Date = chart("Reports by date", SeriesReports, res.Date, available)
	return d
}

func chart(title, name string, s aggregation.Series, available bool) Chart {
	c := Chart{Title: title, Categories: []string{}, Series: []NamedSeries{}}
	if !available {
		return c
	}
	c.Categories = s.Labels()
	c.Series = append(c.Series, NamedSeries{Name: name, Values: s.Values()})
	c.LegacyShiftValues = s.LegacyShiftValues
	return c
}
