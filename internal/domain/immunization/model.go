package immunization

import (
	"time"

	"github.com/google/uuid"
)

// Immunization maps to the immunization table. One row per dose given.
type Immunization struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patientId" validate:"required"`
	Vaccine        string     `db:"vaccine" json:"vaccine" validate:"required"`
	DoseNumber     int        `db:"dose_number" json:"doseNumber" validate:"required,min=1"`
	DateGiven      time.Time  `db:"date_given" json:"dateGiven" validate:"required"`
	BatchNumber    *string    `db:"batch_number" json:"batchNumber,omitempty"`
	AdministeredBy *string    `db:"administered_by" json:"administeredBy,omitempty"`
	CreatedBy      string     `db:"created_by" json:"createdBy"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt      *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}
