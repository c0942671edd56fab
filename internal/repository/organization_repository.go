package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lee-tech/analytics/internal/constants"
	"github.com/lee-tech/analytics/internal/models"
	"github.com/lee-tech/analytics/internal/server"
	"gorm.io/gorm"
)

// OrganizationRepository handles branch, department and position persistence.
type OrganizationRepository struct {
	db *gorm.DB
}

// NewOrganizationRepository constructs a new repository instance.
func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// CreateBranch persists a new branch.
func (r *OrganizationRepository) CreateBranch(ctx context.Context, branch *models.Branch) error {
	return r.db.WithContext(ctx).Create(branch).Error
}

// EnsureBranch finds a branch by name or creates it. An inactive match is
// reactivated and its address fields filled in when the input carries them.
func (r *OrganizationRepository) EnsureBranch(ctx context.Context, input models.EnsureBranchInput) (*models.Branch, error) {
	cleanName := strings.TrimSpace(input.Name)
	if cleanName == "" {
		return nil, fmt.Errorf("branch name is required")
	}

	db := r.db.WithContext(ctx)
	var branch models.Branch
	if err := db.Where("name = ?", cleanName).First(&branch).Error; err == nil {
		return r.updateBranchDefaults(ctx, &branch, input)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	branch = models.Branch{
		Name:    cleanName,
		City:    strings.TrimSpace(input.City),
		SubCity: strings.TrimSpace(input.SubCity),
		Wereda:  strings.TrimSpace(input.Wereda),
		Status:  models.StatusActive,
	}
	if err := db.Create(&branch).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

func (r *OrganizationRepository) updateBranchDefaults(ctx context.Context, branch *models.Branch, input models.EnsureBranchInput) (*models.Branch, error) {
	updates := branchUpdates(branch, input)
	if len(updates) == 0 {
		return branch, nil
	}
	db := r.db.WithContext(ctx)
	if err := db.Model(branch).Updates(updates).Error; err != nil {
		return nil, err
	}
	if err := db.First(branch, "id = ?", branch.ID).Error; err != nil {
		return nil, err
	}
	return branch, nil
}

// branchUpdates lists the columns EnsureBranch changes on an existing branch.
func branchUpdates(branch *models.Branch, input models.EnsureBranchInput) map[string]any {
	updates := map[string]any{}
	if branch.Status != models.StatusActive {
		updates["status"] = models.StatusActive
	}
	for column, pair := range map[string][2]string{
		"city":     {branch.City, input.City},
		"sub_city": {branch.SubCity, input.SubCity},
		"wereda":   {branch.Wereda, input.Wereda},
	} {
		if v := strings.TrimSpace(pair[1]); v != "" && v != pair[0] {
			updates[column] = v
		}
	}
	return updates
}

// UpdateBranch saves an existing branch.
func (r *OrganizationRepository) UpdateBranch(ctx context.Context, branch *models.Branch) error {
	return r.db.WithContext(ctx).Save(branch).Error
}

// GetBranchByID fetches a branch with its departments, or nil when absent.
func (r *OrganizationRepository) GetBranchByID(ctx context.Context, id models.ID) (*models.Branch, error) {
	var branch models.Branch
	err := r.db.WithContext(ctx).
		Preload("Departments").
		First(&branch, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &branch, nil
}

// ListBranches returns every branch ordered by name.
func (r *OrganizationRepository) ListBranches(ctx context.Context) ([]models.Branch, error) {
	var branches []models.Branch
	if err := r.db.WithContext(ctx).
		Model(&models.Branch{}).
		Order("name ASC").
		Find(&branches).Error; err != nil {
		return nil, err
	}
	return branches, nil
}

// EnsureDepartment finds a department by branch and name or creates it.
func (r *OrganizationRepository) EnsureDepartment(ctx context.Context, input models.EnsureDepartmentInput) (*models.Department, error) {
	cleanName := strings.TrimSpace(input.Name)
	if cleanName == "" {
		return nil, fmt.Errorf("department name is required")
	}
	if input.BranchID == "" {
		return nil, fmt.Errorf("department %q: branch id is required", cleanName)
	}

	db := r.db.WithContext(ctx)
	var dept models.Department
	err := db.Where("branch_id = ? AND name = ?", input.BranchID, cleanName).First(&dept).Error
	if err == nil {
		if dept.Status != models.StatusActive {
			if err := db.Model(&dept).Update("status", models.StatusActive).Error; err != nil {
				return nil, err
			}
		}
		return &dept, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	dept = models.Department{Name: cleanName, BranchID: input.BranchID, Status: models.StatusActive}
	if err := db.Create(&dept).Error; err != nil {
		return nil, err
	}
	return &dept, nil
}

// ListDepartments returns every department with its branch embedded.
func (r *OrganizationRepository) ListDepartments(ctx context.Context) ([]models.Department, error) {
	var departments []models.Department
	err := r.db.WithContext(ctx).
		Model(&models.Department{}).
		Preload("Branch").
		Order("name ASC").
		Find(&departments).Error
	return departments, err
}

// ListDepartmentsByBranch returns the departments of one branch.
func (r *OrganizationRepository) ListDepartmentsByBranch(ctx context.Context, branchID models.ID) ([]models.Department, error) {
	var departments []models.Department
	err := r.db.WithContext(ctx).
		Model(&models.Department{}).
		Where("branch_id = ?", branchID).
		Order("name ASC").
		Find(&departments).Error
	return departments, err
}

// EnsurePosition finds a position by department and name or creates it.
func (r *OrganizationRepository) EnsurePosition(ctx context.Context, departmentID models.ID, name string) (*models.Position, error) {
	cleanName := strings.TrimSpace(name)
	if cleanName == "" {
		return nil, fmt.Errorf("position name is required")
	}
	if departmentID == "" {
		return nil, fmt.Errorf("position %q: department id is required", cleanName)
	}

	pos := models.Position{Name: cleanName, DepartmentID: departmentID, Status: models.StatusActive}
	err := r.db.WithContext(ctx).
		Where(models.Position{Name: cleanName, DepartmentID: departmentID}).
		FirstOrCreate(&pos).Error
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// ListPositions returns every position with its department embedded.
func (r *OrganizationRepository) ListPositions(ctx context.Context) ([]models.Position, error) {
	var positions []models.Position
	err := r.db.WithContext(ctx).
		Model(&models.Position{}).
		Preload("Department").
		Order("name ASC").
		Find(&positions).Error
	return positions, err
}

func init() {
	server.RegisterRepository(constants.ComponentKey.OrganizationRepository, func(app *server.HTTPApp) (interface{}, error) {
		if app.DB == nil {
			return nil, nil
		}
		return NewOrganizationRepository(app.DB), nil
	})
}
