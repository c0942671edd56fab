package models

import (
	"encoding/json"
	"fmt"
)

// BranchList is the body of `GET branches`. The collection key is `branchs`
// upstream and is kept as-is for compatibility.
type BranchList struct {
	Branches []Branch `json:"branchs"`
}

// UnmarshalJSON rejects bodies without the `branchs` key.
func (l *BranchList) UnmarshalJSON(data []byte) error {
	var raw struct {
		Branches *[]Branch `json:"branchs"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw.Branches == nil {
		return fmt.Errorf("%w: missing branchs", ErrMalformedPayload)
	}
	l.Branches = *raw.Branches
	return nil
}

// DepartmentList is the body of `GET departments`.
type DepartmentList struct {
	Departments []Department `json:"departments"`
}

// UnmarshalJSON rejects bodies without the `departments` key.
func (l *DepartmentList) UnmarshalJSON(data []byte) error {
	var raw struct {
		Departments *[]Department `json:"departments"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw.Departments == nil {
		return fmt.Errorf("%w: missing departments", ErrMalformedPayload)
	}
	l.Departments = *raw.Departments
	return nil
}

// PositionList is the body of `GET positions`.
type PositionList struct {
	Positions []Position `json:"positions"`
}

// UnmarshalJSON rejects bodies without the `positions` key.
func (l *PositionList) UnmarshalJSON(data []byte) error {
	var raw struct {
		Positions *[]Position `json:"positions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw.Positions == nil {
		return fmt.Errorf("%w: missing positions", ErrMalformedPayload)
	}
	l.Positions = *raw.Positions
	return nil
}

// EnsureBranchInput captures the data needed to find or create a branch.
type EnsureBranchInput struct {
	Name    string `json:"name"`
	City    string `json:"city"`
	SubCity string `json:"subCity"`
	Wereda  string `json:"wereda"`
}

// EnsureDepartmentInput captures the data needed to find or create a department under a branch.
type EnsureDepartmentInput struct {
	BranchID ID     `json:"branchId"`
	Name     string `json:"name"`
}
