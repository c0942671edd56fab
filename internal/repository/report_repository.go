package repository

import (
	"context"
	"fmt"

	"github.com/lee-tech/analytics/internal/constants"
	"github.com/lee-tech/analytics/internal/models"
	"github.com/lee-tech/analytics/internal/server"
	"gorm.io/gorm"
)

// statRow is one GROUP BY result.
type statRow struct {
	Label *string
	Count int64
}

// groupExpressions maps each stat group to the SQL expression it groups by.
var groupExpressions = map[models.StatGroup]string{
	models.GroupMeasurement: "report_measurement",
	models.GroupLocation:    "location",
	models.GroupShift:       "shift_time",
	models.GroupDate:        "to_char(date, 'YYYY-MM-DD')",
}

// ReportRepository reads and writes field reports.
type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// CreateReport persists a new report.
func (r *ReportRepository) CreateReport(ctx context.Context, report *models.Report) error {
	return r.db.WithContext(ctx).Create(report).Error
}

// CountReports returns the number of stored reports.
func (r *ReportRepository) CountReports(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Report{}).Count(&total).Error
	return total, err
}

// Statistics computes the four group-by results inside one read-only
// transaction so every group sees the same set of reports.
func (r *ReportRepository) Statistics(ctx context.Context) (*models.ReportStatisticsSnapshot, error) {
	snap := &models.ReportStatisticsSnapshot{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, group := range models.StatGroups {
			expr := groupExpressions[group]
			var rows []statRow
			err := tx.Model(&models.Report{}).
				Select(expr + " AS label, COUNT(*) AS count").
				Group(expr).
				Order("MIN(created_at) ASC").
				Scan(&rows).Error
			if err != nil {
				return fmt.Errorf("group reports by %s: %w", group.LabelKey(), err)
			}
			setGroup(snap, group, statEntries(rows))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// statEntries converts GROUP BY rows to stat entries. A NULL label is kept
// as a nil label so the aggregation counts it as malformed.
func statEntries(rows []statRow) []models.StatEntry {
	entries := make([]models.StatEntry, 0, len(rows))
	for _, row := range rows {
		count := row.Count
		entries = append(entries, models.StatEntry{Label: row.Label, Count: &count})
	}
	return entries
}

func setGroup(snap *models.ReportStatisticsSnapshot, group models.StatGroup, entries []models.StatEntry) {
	switch group {
	case models.GroupMeasurement:
		snap.MeasurementStats = entries
	case models.GroupLocation:
		snap.LocationStats = entries
	case models.GroupShift:
		snap.ShiftStats = entries
	case models.GroupDate:
		snap.DateStats = entries
	}
}

func init() {
	server.RegisterRepository(constants.ComponentKey.ReportRepository, func(app *server.HTTPApp) (interface{}, error) {
		if app.DB == nil {
			return nil, nil
		}
		return NewReportRepository(app.DB), nil
	})
}
