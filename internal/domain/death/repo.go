package death

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ChangedRecord struct {
	Record  *DeathRecord
	Deleted bool
}

type DeathRepository interface {
	Create(ctx context.Context, d *DeathRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*DeathRecord, error)
	Update(ctx context.Context, d *DeathRecord) error
	SoftDelete(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*DeathRecord, int, error)
	UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error)
	ChangedSince(ctx context.Context, since time.Time) ([]ChangedRecord, error)
}
