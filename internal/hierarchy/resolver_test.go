package hierarchy

import (
	"testing"

	"github.com/lee-tech/analytics/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSingleBranch(t *testing.T) {
	branches := []models.Branch{{ID: "1", Name: "Main", Status: models.StatusActive}}
	departments := []models.Department{{ID: "10", Name: "Operations", BranchID: "1"}}

	h := Resolve(branches, departments, nil)

	assert.Equal(t, 1, h.BranchCount)
	assert.Equal(t, 1, h.DepartmentCount)
	assert.Empty(t, h.Faults)
	require.Len(t, h.Departments, 1)
	assert.Equal(t, models.ID("10"), h.Departments[0].Department.ID)
	assert.Equal(t, "Main", h.Departments[0].Branch.Name)
	assert.Nil(t, h.Positions)
}

func TestResolveDanglingBranchReference(t *testing.T) {
	departments := []models.Department{{ID: "10", BranchID: "99"}}

	h := Resolve(nil, departments, nil)

	assert.Equal(t, 0, h.BranchCount)
	assert.Equal(t, 1, h.DepartmentCount)
	assert.Empty(t, h.Departments)
	assert.Equal(t, []IntegrityFault{{DepartmentID: "10", MissingBranchID: "99"}}, h.Faults)
	assert.EqualError(t, h.Faults[0], `department 10 references missing branch "99"`)
}

func TestResolveDepartmentsIsPartial(t *testing.T) {
	branches := []models.Branch{{ID: "1", Name: "Main"}, {ID: "2", Name: "North"}, {ID: "1", Name: "Duplicate"}}
	departments := []models.Department{
		{ID: "10", BranchID: "2"},
		{ID: "11", BranchID: "7"},
		{ID: "12", BranchID: "1"},
		{ID: "13"},
	}

	resolved, faults := ResolveDepartments(branches, departments)

	require.Len(t, resolved, 2)
	assert.Equal(t, models.ID("10"), resolved[0].Department.ID)
	assert.Equal(t, "North", resolved[0].Branch.Name)
	assert.Equal(t, "Main", resolved[1].Branch.Name, "first branch with a repeated id wins")
	assert.Equal(t, []IntegrityFault{
		{DepartmentID: "11", MissingBranchID: "7"},
		{DepartmentID: "13", MissingBranchID: ""},
	}, faults)
}

func TestResolveUsesSnapshotBranchOverEmbeddedCopy(t *testing.T) {
	branches := []models.Branch{{ID: "1", Name: "Renamed"}}
	departments := []models.Department{{ID: "10", BranchID: "1", Branch: &models.Branch{ID: "1", Name: "Stale"}}}

	resolved, _ := ResolveDepartments(branches, departments)
	require.Len(t, resolved, 1)
	assert.Equal(t, "Renamed", resolved[0].Branch.Name)
	assert.Nil(t, resolved[0].Department.Branch)
	assert.Equal(t, "Stale", departments[0].Branch.Name, "input is not mutated")
}

func TestResolvePositions(t *testing.T) {
	branches := []models.Branch{{ID: "1"}}
	departments := []models.Department{{ID: "10", BranchID: "1"}, {ID: "11", BranchID: "99"}}
	positions := []models.Position{
		{ID: "100", DepartmentID: "10"},
		{ID: "101", DepartmentID: "11"},
		{ID: "102", DepartmentID: "12"},
	}

	h := Resolve(branches, departments, positions)

	assert.Equal(t, 3, h.PositionCount)
	require.Len(t, h.Positions, 2)
	assert.Equal(t, models.ID("11"), h.Positions[1].Department.ID, "dangling branch does not block positions")
	assert.Equal(t, []PositionIntegrityFault{{PositionID: "102", MissingDepartmentID: "12"}}, h.PositionFaults)
	assert.Len(t, h.Faults, 1)
}

func TestResolveEmpty(t *testing.T) {
	h := Resolve(nil, nil, nil)
	assert.NotNil(t, h.Departments)
	assert.NotNil(t, h.Faults)
	assert.Zero(t, h.BranchCount)
	assert.Zero(t, h.DepartmentCount)
}

func TestResolveWithoutBranchesReportsNoFaults(t *testing.T) {
	departments := []models.Department{{ID: "10", BranchID: "1"}, {ID: "11", BranchID: "99"}}
	positions := []models.Position{{ID: "100", DepartmentID: "10"}}

	h := Resolve(nil, departments, positions, BranchesUnavailable())

	assert.Equal(t, 2, h.DepartmentCount)
	assert.Zero(t, h.BranchCount)
	assert.Empty(t, h.Faults)
	assert.Empty(t, h.Departments)
	assert.True(t, h.DepartmentsUnresolved)
	require.Len(t, h.Positions, 1, "positions still resolve against the departments that arrived")
	assert.False(t, h.PositionsUnresolved)
}

func TestResolveWithoutDepartmentsSkipsPositions(t *testing.T) {
	branches := []models.Branch{{ID: "1"}}
	positions := []models.Position{{ID: "100", DepartmentID: "10"}}

	h := Resolve(branches, nil, positions, DepartmentsUnavailable())

	assert.Equal(t, 1, h.PositionCount)
	assert.Empty(t, h.PositionFaults)
	assert.Empty(t, h.Positions)
	assert.True(t, h.PositionsUnresolved)
	assert.False(t, h.DepartmentsUnresolved, "no departments to leave unresolved")
}
