package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lee-tech/analytics/internal/server"
	"gorm.io/gorm"
)

// ID identifies a hierarchy record. Upstream payloads carry identifiers either as
// JSON numbers or strings; both decode to the same textual form.
type ID string

func (id ID) String() string {
	return string(id)
}

// UnmarshalJSON accepts a JSON string, a JSON number, or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*id = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("identifier must be a string or number: %w", err)
		}
		*id = ID(n.String())
	}
	return nil
}

// Status toggles a hierarchy record on or off. Records are never hard-deleted.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInActive Status = "InActive"
)

// Branch is the top-level organizational unit.
type Branch struct {
	ID      ID     `json:"id" gorm:"primaryKey;size:64"`
	Name    string `json:"name" gorm:"size:255;not null"`
	City    string `json:"city" gorm:"size:255"`
	SubCity string `json:"subCity" gorm:"size:255"`
	Wereda  string `json:"wereda" gorm:"size:255"`
	Status  Status `json:"status" gorm:"size:16;default:'Active'"`

	Departments []Department `json:"departments,omitempty" gorm:"foreignKey:BranchID"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate assigns an identifier and default status on insert.
func (b *Branch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ID(uuid.NewString())
	}
	if b.Status == "" {
		b.Status = StatusActive
	}
	return nil
}

// Department is a sub-unit that references its owning Branch by identifier.
type Department struct {
	ID       ID      `json:"id" gorm:"primaryKey;size:64"`
	Name     string  `json:"name" gorm:"size:255;not null"`
	BranchID ID      `json:"branchId" gorm:"size:64;index"`
	Branch   *Branch `json:"branch,omitempty" gorm:"foreignKey:BranchID;references:ID"`
	Status   Status  `json:"status" gorm:"size:16;default:'Active'"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate assigns an identifier and default status on insert.
func (d *Department) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = ID(uuid.NewString())
	}
	if d.Status == "" {
		d.Status = StatusActive
	}
	return nil
}

// UnmarshalJSON accepts the branch either embedded as an object or as a bare identifier.
func (d *Department) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        ID              `json:"id"`
		Name      string          `json:"name"`
		BranchID  ID              `json:"branchId"`
		Branch    json.RawMessage `json:"branch"`
		Status    Status          `json:"status"`
		CreatedAt time.Time       `json:"createdAt"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*d = Department{
		ID:        raw.ID,
		Name:      raw.Name,
		BranchID:  raw.BranchID,
		Status:    raw.Status,
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
	}

	branch, ref, err := decodeReference[Branch](raw.Branch)
	if err != nil {
		return fmt.Errorf("department %s: branch: %w", raw.ID, err)
	}
	d.Branch = branch
	if d.BranchID == "" {
		d.BranchID = ref
	}
	return nil
}

// Position is a role that references its owning Department by identifier.
type Position struct {
	ID           ID          `json:"id" gorm:"primaryKey;size:64"`
	Name         string      `json:"name" gorm:"size:255;not null"`
	DepartmentID ID          `json:"departmentId" gorm:"size:64;index"`
	Department   *Department `json:"department,omitempty" gorm:"foreignKey:DepartmentID;references:ID"`
	Status       Status      `json:"status" gorm:"size:16;default:'Active'"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate assigns an identifier and default status on insert.
func (p *Position) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = ID(uuid.NewString())
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	return nil
}

// UnmarshalJSON accepts the department either embedded as an object or as a bare identifier.
func (p *Position) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID           ID              `json:"id"`
		Name         string          `json:"name"`
		DepartmentID ID              `json:"departmentId"`
		Department   json.RawMessage `json:"department"`
		Status       Status          `json:"status"`
		CreatedAt    time.Time       `json:"createdAt"`
		UpdatedAt    time.Time       `json:"updatedAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Position{
		ID:           raw.ID,
		Name:         raw.Name,
		DepartmentID: raw.DepartmentID,
		Status:       raw.Status,
		CreatedAt:    raw.CreatedAt,
		UpdatedAt:    raw.UpdatedAt,
	}

	dept, ref, err := decodeReference[Department](raw.Department)
	if err != nil {
		return fmt.Errorf("position %s: department: %w", raw.ID, err)
	}
	p.Department = dept
	if p.DepartmentID == "" {
		p.DepartmentID = ref
	}
	return nil
}

type identified interface {
	Branch | Department
}

// decodeReference reads a field that holds either an embedded record or its identifier.
func decodeReference[T identified](raw json.RawMessage) (*T, ID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, "", nil
	}
	if raw[0] == '{' {
		var record T
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, "", err
		}
		return &record, recordID(&record), nil
	}
	var id ID
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, "", err
	}
	return nil, id, nil
}

func recordID[T identified](record *T) ID {
	switch v := any(record).(type) {
	case *Branch:
		return v.ID
	case *Department:
		return v.ID
	}
	return ""
}

func init() {
	server.RegisterMigration(func() interface{} { return &Branch{} })
	server.RegisterMigration(func() interface{} { return &Department{} })
	server.RegisterMigration(func() interface{} { return &Position{} })
}
