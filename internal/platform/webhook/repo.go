package webhook

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("webhook not found")

type EndpointRepository interface {
	Create(ctx context.Context, ep *Endpoint) error
	GetByID(ctx context.Context, id uuid.UUID) (*Endpoint, error)
	List(ctx context.Context, limit, offset int) ([]*Endpoint, int, error)
	// ListActive returns every endpoint eligible for delivery.
	ListActive(ctx context.Context) ([]*Endpoint, error)
	Update(ctx context.Context, ep *Endpoint) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type DeliveryRepository interface {
	Record(ctx context.Context, d *Delivery) error
	GetByID(ctx context.Context, id uuid.UUID) (*Delivery, error)
	ListByEndpoint(ctx context.Context, endpointID uuid.UUID, limit, offset int) ([]*Delivery, int, error)
}
