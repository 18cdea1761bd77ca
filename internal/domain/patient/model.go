package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table. Soft-deleted rows keep their data so
// deletions can propagate to offline devices.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	FirstName   string     `db:"first_name" json:"firstName" validate:"required"`
	LastName    string     `db:"last_name" json:"lastName" validate:"required"`
	Gender      string     `db:"gender" json:"gender" validate:"required,oneof=male female other"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"dateOfBirth,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	Village     *string    `db:"village" json:"village,omitempty"`
	NationalID  *string    `db:"national_id" json:"nationalId,omitempty"`
	CreatedBy   string     `db:"created_by" json:"createdBy"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}
