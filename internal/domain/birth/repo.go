package birth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ChangedRecord struct {
	Record  *BirthRecord
	Deleted bool
}

type BirthRepository interface {
	Create(ctx context.Context, b *BirthRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*BirthRecord, error)
	Update(ctx context.Context, b *BirthRecord) error
	SoftDelete(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*BirthRecord, int, error)
	ListByMother(ctx context.Context, motherID uuid.UUID, limit, offset int) ([]*BirthRecord, int, error)
	UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error)
	ChangedSince(ctx context.Context, since time.Time) ([]ChangedRecord, error)
}
