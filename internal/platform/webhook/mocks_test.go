package webhook

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type mockEndpointRepo struct {
	endpoints map[uuid.UUID]*Endpoint
}

func newMockEndpointRepo() *mockEndpointRepo {
	return &mockEndpointRepo{endpoints: make(map[uuid.UUID]*Endpoint)}
}

func (m *mockEndpointRepo) Create(ctx context.Context, ep *Endpoint) error {
	now := time.Now()
	ep.CreatedAt, ep.UpdatedAt = now, now
	cp := *ep
	m.endpoints[ep.ID] = &cp
	return nil
}

func (m *mockEndpointRepo) GetByID(ctx context.Context, id uuid.UUID) (*Endpoint, error) {
	ep, ok := m.endpoints[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *ep
	return &cp, nil
}

func (m *mockEndpointRepo) all() []*Endpoint {
	var out []*Endpoint
	for _, ep := range m.endpoints {
		cp := *ep
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *mockEndpointRepo) List(ctx context.Context, limit, offset int) ([]*Endpoint, int, error) {
	all := m.all()
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockEndpointRepo) ListActive(ctx context.Context) ([]*Endpoint, error) {
	var out []*Endpoint
	for _, ep := range m.all() {
		if ep.IsActive {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (m *mockEndpointRepo) Update(ctx context.Context, ep *Endpoint) error {
	if _, ok := m.endpoints[ep.ID]; !ok {
		return pgx.ErrNoRows
	}
	ep.UpdatedAt = time.Now()
	cp := *ep
	m.endpoints[ep.ID] = &cp
	return nil
}

func (m *mockEndpointRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.endpoints[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.endpoints, id)
	return nil
}

type mockDeliveryRepo struct {
	deliveries map[uuid.UUID]*Delivery
}

func newMockDeliveryRepo() *mockDeliveryRepo {
	return &mockDeliveryRepo{deliveries: make(map[uuid.UUID]*Delivery)}
}

func (m *mockDeliveryRepo) Record(ctx context.Context, d *Delivery) error {
	cp := *d
	m.deliveries[d.ID] = &cp
	return nil
}

func (m *mockDeliveryRepo) GetByID(ctx context.Context, id uuid.UUID) (*Delivery, error) {
	d, ok := m.deliveries[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *mockDeliveryRepo) ListByEndpoint(ctx context.Context, endpointID uuid.UUID, limit, offset int) ([]*Delivery, int, error) {
	var all []*Delivery
	for _, d := range m.deliveries {
		if d.EndpointID == endpointID {
			cp := *d
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}
