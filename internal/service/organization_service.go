package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lee-tech/analytics/internal/constants"
	"github.com/lee-tech/analytics/internal/models"
	"github.com/lee-tech/analytics/internal/repository"
	"github.com/lee-tech/analytics/internal/server"
	"go.uber.org/zap"
)

var (
	ErrBranchNotFound = errors.New("branch not found")
)

// HierarchyStore is the persistence the organization service needs.
type HierarchyStore interface {
	EnsureBranch(ctx context.Context, input models.EnsureBranchInput) (*models.Branch, error)
	EnsureDepartment(ctx context.Context, input models.EnsureDepartmentInput) (*models.Department, error)
	EnsurePosition(ctx context.Context, departmentID models.ID, name string) (*models.Position, error)
	GetBranchByID(ctx context.Context, id models.ID) (*models.Branch, error)
}

// ProvisionResult lists what ProvisionBranch ensured.
type ProvisionResult struct {
	Branch      *models.Branch
	Departments []*models.Department
	Positions   []*models.Position
}

// OrganizationService provisions the branch hierarchy.
type OrganizationService struct {
	store  HierarchyStore
	logger *zap.Logger
}

// NewOrganizationService constructs the service.
func NewOrganizationService(store HierarchyStore, logger *zap.Logger) *OrganizationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrganizationService{store: store, logger: logger}
}

// EnsureDepartment finds or creates a department under an existing branch.
func (s *OrganizationService) EnsureDepartment(ctx context.Context, input *models.EnsureDepartmentInput) (*models.Department, error) {
	if input == nil {
		return nil, fmt.Errorf("input required")
	}
	if input.BranchID == "" {
		return nil, fmt.Errorf("branchId is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("department name is required")
	}

	branch, err := s.store.GetBranchByID(ctx, input.BranchID)
	if err != nil {
		return nil, err
	}
	if branch == nil {
		return nil, ErrBranchNotFound
	}
	return s.store.EnsureDepartment(ctx, *input)
}

// ProvisionBranch ensures the branch and, under it, every department of
// structure together with its positions. It is safe to run repeatedly.
func (s *OrganizationService) ProvisionBranch(ctx context.Context, input *models.EnsureBranchInput, structure []models.DepartmentDefinition) (*ProvisionResult, error) {
	if input == nil {
		return nil, fmt.Errorf("input required")
	}

	branch, err := s.store.EnsureBranch(ctx, *input)
	if err != nil {
		return nil, fmt.Errorf("ensure branch %q: %w", input.Name, err)
	}
	result := &ProvisionResult{Branch: branch}

	for _, def := range structure {
		dept, err := s.store.EnsureDepartment(ctx, models.EnsureDepartmentInput{BranchID: branch.ID, Name: def.Name})
		if err != nil {
			return nil, fmt.Errorf("ensure department %q: %w", def.Name, err)
		}
		result.Departments = append(result.Departments, dept)

		for _, name := range def.Positions {
			pos, err := s.store.EnsurePosition(ctx, dept.ID, name)
			if err != nil {
				return nil, fmt.Errorf("ensure position %q in %q: %w", name, def.Name, err)
			}
			result.Positions = append(result.Positions, pos)
		}
	}

	s.logger.Info("Branch provisioned",
		zap.String("branch_id", branch.ID.String()),
		zap.String("branch", branch.Name),
		zap.Int("departments", len(result.Departments)),
		zap.Int("positions", len(result.Positions)),
	)
	return result, nil
}

func init() {
	server.RegisterService(constants.ComponentKey.OrganizationService, func(app *server.HTTPApp) (interface{}, error) {
		orgRepoComponent, ok := app.GetComponent(constants.ComponentKey.OrganizationRepository)
		if !ok {
			return nil, nil
		}
		orgRepo, ok := orgRepoComponent.(*repository.OrganizationRepository)
		if !ok {
			return nil, fmt.Errorf("component %s has unexpected type %T", constants.ComponentKey.OrganizationRepository, orgRepoComponent)
		}
		return NewOrganizationService(orgRepo, app.Logger.Named("organization")), nil
	})
}
