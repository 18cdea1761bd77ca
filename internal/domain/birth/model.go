package birth

import (
	"time"

	"github.com/google/uuid"
)

// BirthRecord maps to the birth_record table.
type BirthRecord struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	MotherID         *uuid.UUID `db:"mother_id" json:"motherId,omitempty"`
	ChildFirstName   string     `db:"child_first_name" json:"childFirstName" validate:"required"`
	ChildLastName    string     `db:"child_last_name" json:"childLastName" validate:"required"`
	Gender           string     `db:"gender" json:"gender" validate:"required,oneof=male female other"`
	DateOfBirth      time.Time  `db:"date_of_birth" json:"dateOfBirth" validate:"required"`
	BirthWeightGrams *int       `db:"birth_weight_grams" json:"birthWeightGrams,omitempty"`
	PlaceOfBirth     *string    `db:"place_of_birth" json:"placeOfBirth,omitempty"`
	AttendedBy       *string    `db:"attended_by" json:"attendedBy,omitempty"`
	CreatedBy        string     `db:"created_by" json:"createdBy"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt        *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}
