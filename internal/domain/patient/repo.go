package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChangedPatient is one row in a sync delta, soft-deleted rows included.
type ChangedPatient struct {
	Patient *Patient
	Deleted bool
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	SoftDelete(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	Search(ctx context.Context, name, village string, limit, offset int) ([]*Patient, int, error)
	UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error)
	ChangedSince(ctx context.Context, since time.Time) ([]ChangedPatient, error)
}
