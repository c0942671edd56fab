package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lee-tech/analytics/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	branches    map[string]*models.Branch
	departments map[string]*models.Department
	positions   map[string]*models.Position
	failOn      string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		branches:    map[string]*models.Branch{},
		departments: map[string]*models.Department{},
		positions:   map[string]*models.Position{},
	}
}

func (m *memoryStore) EnsureBranch(_ context.Context, input models.EnsureBranchInput) (*models.Branch, error) {
	if b, ok := m.branches[input.Name]; ok {
		return b, nil
	}
	b := &models.Branch{ID: models.ID(fmt.Sprintf("b%d", len(m.branches)+1)), Name: input.Name, City: input.City, Status: models.StatusActive}
	m.branches[input.Name] = b
	return b, nil
}

func (m *memoryStore) EnsureDepartment(_ context.Context, input models.EnsureDepartmentInput) (*models.Department, error) {
	if input.Name == m.failOn {
		return nil, errors.New("constraint violation")
	}
	key := string(input.BranchID) + "/" + input.Name
	if d, ok := m.departments[key]; ok {
		return d, nil
	}
	d := &models.Department{ID: models.ID(fmt.Sprintf("d%d", len(m.departments)+1)), Name: input.Name, BranchID: input.BranchID}
	m.departments[key] = d
	return d, nil
}

func (m *memoryStore) EnsurePosition(_ context.Context, departmentID models.ID, name string) (*models.Position, error) {
	key := string(departmentID) + "/" + name
	if p, ok := m.positions[key]; ok {
		return p, nil
	}
	p := &models.Position{ID: models.ID(fmt.Sprintf("p%d", len(m.positions)+1)), Name: name, DepartmentID: departmentID}
	m.positions[key] = p
	return p, nil
}

func (m *memoryStore) GetBranchByID(_ context.Context, id models.ID) (*models.Branch, error) {
	for _, b := range m.branches {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, nil
}

func TestProvisionBranchIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	svc := NewOrganizationService(store, nil)
	ctx := context.Background()
	input := &models.EnsureBranchInput{Name: "Main", City: "Addis Ababa"}

	first, err := svc.ProvisionBranch(ctx, input, models.DefaultDepartmentStructure)
	require.NoError(t, err)
	assert.Equal(t, "Main", first.Branch.Name)
	assert.Len(t, first.Departments, len(models.DefaultDepartmentStructure))
	assert.Len(t, first.Positions, 6)
	for _, d := range first.Departments {
		assert.Equal(t, first.Branch.ID, d.BranchID)
	}

	second, err := svc.ProvisionBranch(ctx, input, models.DefaultDepartmentStructure)
	require.NoError(t, err)
	assert.Same(t, first.Branch, second.Branch)
	assert.Len(t, store.departments, 3)
	assert.Len(t, store.positions, 6)
}

func TestProvisionBranchStopsOnError(t *testing.T) {
	store := newMemoryStore()
	store.failOn = "Security"
	svc := NewOrganizationService(store, nil)

	_, err := svc.ProvisionBranch(context.Background(), &models.EnsureBranchInput{Name: "Main"}, models.DefaultDepartmentStructure)
	assert.ErrorContains(t, err, `ensure department "Security"`)
}

func TestEnsureDepartmentRequiresBranch(t *testing.T) {
	store := newMemoryStore()
	svc := NewOrganizationService(store, nil)
	ctx := context.Background()

	_, err := svc.EnsureDepartment(ctx, &models.EnsureDepartmentInput{BranchID: "missing", Name: "Operations"})
	assert.ErrorIs(t, err, ErrBranchNotFound)

	_, err = svc.EnsureDepartment(ctx, &models.EnsureDepartmentInput{Name: "Operations"})
	assert.EqualError(t, err, "branchId is required")

	branch, err := store.EnsureBranch(ctx, models.EnsureBranchInput{Name: "Main"})
	require.NoError(t, err)
	dept, err := svc.EnsureDepartment(ctx, &models.EnsureDepartmentInput{BranchID: branch.ID, Name: "Operations"})
	require.NoError(t, err)
	assert.Equal(t, branch.ID, dept.BranchID)
}
