package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hmis/hmis/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// --- endpoints ---

type endpointRepoPG struct{ pool *pgxpool.Pool }

func NewEndpointRepoPG(pool *pgxpool.Pool) EndpointRepository {
	return &endpointRepoPG{pool: pool}
}

const endpointCols = `id, url, events, secret, is_active, created_at, updated_at`

func scanEndpoint(row pgx.Row) (*Endpoint, error) {
	var ep Endpoint
	err := row.Scan(&ep.ID, &ep.URL, &ep.Events, &ep.Secret, &ep.IsActive, &ep.CreatedAt, &ep.UpdatedAt)
	return &ep, err
}

func (r *endpointRepoPG) Create(ctx context.Context, ep *Endpoint) error {
	now := time.Now()
	ep.CreatedAt = now
	ep.UpdatedAt = now
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO webhook_endpoint (id, url, events, secret, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ep.ID, ep.URL, ep.Events, ep.Secret, ep.IsActive, ep.CreatedAt, ep.UpdatedAt)
	return err
}

func (r *endpointRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Endpoint, error) {
	return scanEndpoint(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+endpointCols+` FROM webhook_endpoint WHERE id = $1`, id))
}

func (r *endpointRepoPG) List(ctx context.Context, limit, offset int) ([]*Endpoint, int, error) {
	var total int
	if err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM webhook_endpoint`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+endpointCols+` FROM webhook_endpoint ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectEndpoints(rows)
	return items, total, err
}

func (r *endpointRepoPG) ListActive(ctx context.Context) ([]*Endpoint, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+endpointCols+` FROM webhook_endpoint WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEndpoints(rows)
}

func (r *endpointRepoPG) Update(ctx context.Context, ep *Endpoint) error {
	ep.UpdatedAt = time.Now()
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE webhook_endpoint SET url = $2, events = $3, is_active = $4, updated_at = $5
		WHERE id = $1`,
		ep.ID, ep.URL, ep.Events, ep.IsActive, ep.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *endpointRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx,
		`DELETE FROM webhook_endpoint WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func collectEndpoints(rows pgx.Rows) ([]*Endpoint, error) {
	var items []*Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, ep)
	}
	return items, nil
}

// --- deliveries ---

type deliveryRepoPG struct{ pool *pgxpool.Pool }

func NewDeliveryRepoPG(pool *pgxpool.Pool) DeliveryRepository {
	return &deliveryRepoPG{pool: pool}
}

const deliveryCols = `id, endpoint_id, event_id, event_type, payload, signature, status_code, attempt, succeeded, error_message, created_at`

func scanDelivery(row pgx.Row) (*Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.EndpointID, &d.EventID, &d.EventType, &d.Payload, &d.Signature,
		&d.StatusCode, &d.Attempt, &d.Succeeded, &d.Error, &d.CreatedAt)
	return &d, err
}

func (r *deliveryRepoPG) Record(ctx context.Context, d *Delivery) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO webhook_delivery (id, endpoint_id, event_id, event_type, payload, signature, status_code, attempt, succeeded, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.EndpointID, d.EventID, d.EventType, d.Payload, d.Signature,
		d.StatusCode, d.Attempt, d.Succeeded, d.Error, d.CreatedAt)
	return err
}

func (r *deliveryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Delivery, error) {
	return scanDelivery(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+deliveryCols+` FROM webhook_delivery WHERE id = $1`, id))
}

func (r *deliveryRepoPG) ListByEndpoint(ctx context.Context, endpointID uuid.UUID, limit, offset int) ([]*Delivery, int, error) {
	var total int
	if err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM webhook_delivery WHERE endpoint_id = $1`, endpointID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+deliveryCols+` FROM webhook_delivery WHERE endpoint_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		endpointID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}
