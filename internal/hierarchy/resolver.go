// Package hierarchy joins departments to branches and positions to departments.
package hierarchy

import (
	"fmt"

	"github.com/lee-tech/analytics/internal/models"
)

// IntegrityFault records a department whose branch reference does not resolve.
type IntegrityFault struct {
	DepartmentID    models.ID `json:"departmentId"`
	MissingBranchID models.ID `json:"missingBranchId"`
}

func (f IntegrityFault) Error() string {
	return fmt.Sprintf("department %s references missing branch %q", f.DepartmentID, f.MissingBranchID)
}

// PositionIntegrityFault records a position whose department reference does not resolve.
type PositionIntegrityFault struct {
	PositionID          models.ID `json:"positionId"`
	MissingDepartmentID models.ID `json:"missingDepartmentId"`
}

func (f PositionIntegrityFault) Error() string {
	return fmt.Sprintf("position %s references missing department %q", f.PositionID, f.MissingDepartmentID)
}

// ResolvedDepartment pairs a department with the branch it resolved to.
type ResolvedDepartment struct {
	Department models.Department `json:"department"`
	Branch     models.Branch     `json:"branch"`
}

// ResolvedPosition pairs a position with the department it resolved to.
type ResolvedPosition struct {
	Position   models.Position   `json:"position"`
	Department models.Department `json:"department"`
}

// Hierarchy is the resolved view of one snapshot. Counts are taken from the
// raw collections, so unresolved records still count.
type Hierarchy struct {
	Departments    []ResolvedDepartment     `json:"departments"`
	Positions      []ResolvedPosition       `json:"positions,omitempty"`
	Faults         []IntegrityFault         `json:"faults"`
	PositionFaults []PositionIntegrityFault `json:"positionFaults,omitempty"`

	// DepartmentsUnresolved is set when the branches were not available to
	// resolve departments against. No department faults are reported then.
	DepartmentsUnresolved bool `json:"departmentsUnresolved,omitempty"`
	PositionsUnresolved   bool `json:"positionsUnresolved,omitempty"`

	BranchCount     int `json:"branchCount"`
	DepartmentCount int `json:"departmentCount"`
	PositionCount   int `json:"positionCount"`
}

type resolveOptions struct {
	branchesMissing    bool
	departmentsMissing bool
}

// Option adjusts Resolve.
type Option func(*resolveOptions)

// BranchesUnavailable marks the branch collection as not retrieved.
// Departments are then left unresolved instead of faulted.
func BranchesUnavailable() Option {
	return func(o *resolveOptions) { o.branchesMissing = true }
}

// DepartmentsUnavailable does the same for positions.
func DepartmentsUnavailable() Option {
	return func(o *resolveOptions) { o.departmentsMissing = true }
}

// Resolve joins the collections. positions may be nil.
func Resolve(branches []models.Branch, departments []models.Department, positions []models.Position, opts ...Option) Hierarchy {
	var o resolveOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	h := Hierarchy{
		Departments:     []ResolvedDepartment{},
		Faults:          []IntegrityFault{},
		BranchCount:     len(branches),
		DepartmentCount: len(departments),
		PositionCount:   len(positions),
	}
	if o.branchesMissing {
		h.DepartmentsUnresolved = len(departments) > 0
	} else {
		h.Departments, h.Faults = ResolveDepartments(branches, departments)
	}
	if positions != nil {
		if o.departmentsMissing {
			h.PositionsUnresolved = len(positions) > 0
		} else {
			h.Positions, h.PositionFaults = ResolvePositions(departments, positions)
		}
	}
	return h
}

// ResolveDepartments returns the departments whose branch exists, in input
// order, and a fault for every other department. When branch identifiers
// repeat, the first occurrence wins.
func ResolveDepartments(branches []models.Branch, departments []models.Department) ([]ResolvedDepartment, []IntegrityFault) {
	index := make(map[models.ID]int, len(branches))
	for i := range branches {
		if _, dup := index[branches[i].ID]; !dup {
			index[branches[i].ID] = i
		}
	}

	resolved := make([]ResolvedDepartment, 0, len(departments))
	faults := make([]IntegrityFault, 0)
	for _, dept := range departments {
		i, ok := index[dept.BranchID]
		if !ok || dept.BranchID == "" {
			faults = append(faults, IntegrityFault{DepartmentID: dept.ID, MissingBranchID: dept.BranchID})
			continue
		}
		branch := branches[i]
		branch.Departments = nil
		dept.Branch = nil
		resolved = append(resolved, ResolvedDepartment{Department: dept, Branch: branch})
	}
	return resolved, faults
}

// ResolvePositions joins positions to departments. A department with a
// dangling branch still exists, so its positions resolve.
func ResolvePositions(departments []models.Department, positions []models.Position) ([]ResolvedPosition, []PositionIntegrityFault) {
	index := make(map[models.ID]int, len(departments))
	for i := range departments {
		if _, dup := index[departments[i].ID]; !dup {
			index[departments[i].ID] = i
		}
	}

	resolved := make([]ResolvedPosition, 0, len(positions))
	faults := make([]PositionIntegrityFault, 0)
	for _, pos := range positions {
		i, ok := index[pos.DepartmentID]
		if !ok || pos.DepartmentID == "" {
			faults = append(faults, PositionIntegrityFault{PositionID: pos.ID, MissingDepartmentID: pos.DepartmentID})
			continue
		}
		dept := departments[i]
		dept.Branch = nil
		pos.Department = nil
		resolved = append(resolved, ResolvedPosition{Position: pos, Department: dept})
	}
	return resolved, faults
}
