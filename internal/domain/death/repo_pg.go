package death

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

type deathRepoPG struct{ pool *pgxpool.Pool }

func NewDeathRepoPG(pool *pgxpool.Pool) DeathRepository {
	return &deathRepoPG{pool: pool}
}

func (r *deathRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const deathCols = `id, patient_id, first_name, last_name, date_of_death, cause_of_death, place_of_death, created_by, created_at, updated_at, deleted_at`

func scanDeath(row pgx.Row) (*DeathRecord, error) {
	var d DeathRecord
	err := row.Scan(&d.ID, &d.PatientID, &d.FirstName, &d.LastName, &d.DateOfDeath,
		&d.CauseOfDeath, &d.PlaceOfDeath, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt, &d.DeletedAt)
	return &d, err
}

func (r *deathRepoPG) Create(ctx context.Context, d *DeathRecord) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	// Sync uploads may reuse the id of a soft-deleted row; the conflict
	// clause resurrects it with the incoming data.
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO death_record (id, patient_id, first_name, last_name, date_of_death, cause_of_death, place_of_death, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			patient_id = EXCLUDED.patient_id, first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name, date_of_death = EXCLUDED.date_of_death,
			cause_of_death = EXCLUDED.cause_of_death, place_of_death = EXCLUDED.place_of_death,
			updated_at = EXCLUDED.updated_at, deleted_at = NULL`,
		d.ID, d.PatientID, d.FirstName, d.LastName, d.DateOfDeath, d.CauseOfDeath,
		d.PlaceOfDeath, d.CreatedBy, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *deathRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DeathRecord, error) {
	return scanDeath(r.conn(ctx).QueryRow(ctx,
		`SELECT `+deathCols+` FROM death_record WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *deathRepoPG) Update(ctx context.Context, d *DeathRecord) error {
	d.UpdatedAt = time.Now()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE death_record SET patient_id = $2, first_name = $3, last_name = $4,
			date_of_death = $5, cause_of_death = $6, place_of_death = $7, updated_at = $8
		WHERE id = $1 AND deleted_at IS NULL`,
		d.ID, d.PatientID, d.FirstName, d.LastName, d.DateOfDeath, d.CauseOfDeath,
		d.PlaceOfDeath, d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *deathRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE death_record SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *deathRepoPG) List(ctx context.Context, limit, offset int) ([]*DeathRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM death_record WHERE deleted_at IS NULL`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+deathCols+` FROM death_record WHERE deleted_at IS NULL ORDER BY date_of_death DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*DeathRecord
	for rows.Next() {
		d, err := scanDeath(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}

func (r *deathRepoPG) UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	var t time.Time
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT updated_at FROM death_record WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&t)
	return t, err
}

func (r *deathRepoPG) ChangedSince(ctx context.Context, since time.Time) ([]ChangedRecord, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+deathCols+` FROM death_record WHERE updated_at > $1 ORDER BY updated_at`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChangedRecord
	for rows.Next() {
		d, err := scanDeath(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ChangedRecord{Record: d, Deleted: d.DeletedAt != nil})
	}
	return out, nil
}
