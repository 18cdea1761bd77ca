package death

import (
	"time"

	"github.com/google/uuid"
)

// DeathRecord maps to the death_record table. PatientID links to a known
// patient when one exists; community deaths may be recorded without it.
type DeathRecord struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    *uuid.UUID `db:"patient_id" json:"patientId,omitempty"`
	FirstName    string     `db:"first_name" json:"firstName" validate:"required"`
	LastName     string     `db:"last_name" json:"lastName" validate:"required"`
	DateOfDeath  time.Time  `db:"date_of_death" json:"dateOfDeath" validate:"required"`
	CauseOfDeath string     `db:"cause_of_death" json:"causeOfDeath" validate:"required"`
	PlaceOfDeath *string    `db:"place_of_death" json:"placeOfDeath,omitempty"`
	CreatedBy    string     `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}
