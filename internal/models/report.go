package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lee-tech/analytics/internal/server"
	"gorm.io/gorm"
)

// ReportMeasurement grades the severity of a field report.
type ReportMeasurement string

const (
	MeasurementHigh ReportMeasurement = "HIGH"
	MeasurementMid  ReportMeasurement = "MID"
	MeasurementLow  ReportMeasurement = "LOW"
)

// ReportStatus tracks a report through review.
type ReportStatus string

const (
	ReportStatusPending ReportStatus = "PENDING"
)

// Report is a field submission. Reports are immutable once created.
type Report struct {
	ID                ID                `json:"id" gorm:"primaryKey;size:64"`
	UserID            string            `json:"userId" gorm:"size:64;index"`
	Date              time.Time         `json:"date" gorm:"index"`
	ShiftTime         string            `json:"shiftTime" gorm:"size:32"`
	Location          string            `json:"location" gorm:"size:255"`
	Report            string            `json:"report" gorm:"type:text"`
	Description       string            `json:"description" gorm:"type:text"`
	ReportMeasurement ReportMeasurement `json:"reportMeasurement" gorm:"size:16;index"`
	Status            ReportStatus      `json:"status" gorm:"size:32;default:'PENDING'"`
	Attachments       []string          `json:"attachments" gorm:"serializer:json"`

	CreatedAt time.Time `json:"createdAt"`
}

// BeforeCreate assigns an identifier and the pending status on insert.
func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = ID(uuid.NewString())
	}
	if r.Status == "" {
		r.Status = ReportStatusPending
	}
	return nil
}

func init() {
	server.RegisterMigration(func() interface{} { return &Report{} })
}
