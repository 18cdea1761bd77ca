package immunization

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ChangedImmunization struct {
	Immunization *Immunization
	Deleted      bool
}

type ImmunizationRepository interface {
	Create(ctx context.Context, im *Immunization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Immunization, error)
	Update(ctx context.Context, im *Immunization) error
	SoftDelete(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*Immunization, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Immunization, int, error)
	UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error)
	ChangedSince(ctx context.Context, since time.Time) ([]ChangedImmunization, error)
}
