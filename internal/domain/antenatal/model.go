package antenatal

import (
	"time"

	"github.com/google/uuid"
)

// Visit maps to the antenatal_visit table. VisitNumber counts visits within
// one pregnancy, starting at 1.
type Visit struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	PatientID           uuid.UUID  `db:"patient_id" json:"patientId" validate:"required"`
	VisitNumber         int        `db:"visit_number" json:"visitNumber" validate:"required,min=1"`
	VisitDate           time.Time  `db:"visit_date" json:"visitDate" validate:"required"`
	GestationalAgeWeeks *int       `db:"gestational_age_weeks" json:"gestationalAgeWeeks,omitempty"`
	BloodPressure       *string    `db:"blood_pressure" json:"bloodPressure,omitempty"`
	WeightKg            *float64   `db:"weight_kg" json:"weightKg,omitempty"`
	Notes               *string    `db:"notes" json:"notes,omitempty"`
	NextVisitDate       *time.Time `db:"next_visit_date" json:"nextVisitDate,omitempty"`
	CreatedBy           string     `db:"created_by" json:"createdBy"`
	CreatedAt           time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt           *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}
