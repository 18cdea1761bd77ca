package antenatal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ChangedVisit struct {
	Visit   *Visit
	Deleted bool
}

type VisitRepository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	Update(ctx context.Context, v *Visit) error
	SoftDelete(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*Visit, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error)
	UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error)
	ChangedSince(ctx context.Context, since time.Time) ([]ChangedVisit, error)
}
