package surveillance

import (
	"time"

	"github.com/google/uuid"
)

// Case statuses a reported disease case moves through.
const (
	StatusSuspected = "suspected"
	StatusConfirmed = "confirmed"
	StatusRecovered = "recovered"
	StatusDeceased  = "deceased"
)

// DiseaseCase maps to the disease_case table. Cases may reference a known
// patient or stand alone for community reports.
type DiseaseCase struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    *uuid.UUID `db:"patient_id" json:"patientId,omitempty"`
	Disease      string     `db:"disease" json:"disease" validate:"required"`
	Status       string     `db:"status" json:"status" validate:"required,oneof=suspected confirmed recovered deceased"`
	OnsetDate    *time.Time `db:"onset_date" json:"onsetDate,omitempty"`
	ReportedDate time.Time  `db:"reported_date" json:"reportedDate" validate:"required"`
	Location     *string    `db:"location" json:"location,omitempty"`
	Notes        *string    `db:"notes" json:"notes,omitempty"`
	CreatedBy    string     `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}
