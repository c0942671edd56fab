package source

import (
	"context"
	"errors"

	"github.com/lee-tech/analytics/internal/models"
)

// OrganizationStore lists the hierarchy collections.
type OrganizationStore interface {
	ListBranches(ctx context.Context) ([]models.Branch, error)
	ListDepartments(ctx context.Context) ([]models.Department, error)
	ListPositions(ctx context.Context) ([]models.Position, error)
}

// StatisticsStore computes report statistics.
type StatisticsStore interface {
	Statistics(ctx context.Context) (*models.ReportStatisticsSnapshot, error)
}

// StoreSource reads the collections straight from the database.
type StoreSource struct {
	org   OrganizationStore
	stats StatisticsStore
}

// NewStoreSource builds a source over the given stores.
func NewStoreSource(org OrganizationStore, stats StatisticsStore) (*StoreSource, error) {
	if org == nil || stats == nil {
		return nil, errors.New("organization and statistics stores are required")
	}
	return &StoreSource{org: org, stats: stats}, nil
}

func (s *StoreSource) Branches(ctx context.Context) ([]models.Branch, error) {
	return s.org.ListBranches(ctx)
}

func (s *StoreSource) Departments(ctx context.Context) ([]models.Department, error) {
	return s.org.ListDepartments(ctx)
}

func (s *StoreSource) Positions(ctx context.Context) ([]models.Position, error) {
	return s.org.ListPositions(ctx)
}

func (s *StoreSource) ReportStatistics(ctx context.Context) (*models.ReportStatisticsSnapshot, error) {
	return s.stats.Statistics(ctx)
}
