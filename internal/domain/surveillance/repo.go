package surveillance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ChangedCase struct {
	Case    *DiseaseCase
	Deleted bool
}

type CaseRepository interface {
	Create(ctx context.Context, dc *DiseaseCase) error
	GetByID(ctx context.Context, id uuid.UUID) (*DiseaseCase, error)
	Update(ctx context.Context, dc *DiseaseCase) error
	SoftDelete(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, disease, status string, limit, offset int) ([]*DiseaseCase, int, error)
	UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error)
	ChangedSince(ctx context.Context, since time.Time) ([]ChangedCase, error)
}
