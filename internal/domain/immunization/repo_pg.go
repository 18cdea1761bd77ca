package immunization

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

type immunizationRepoPG struct{ pool *pgxpool.Pool }

func NewImmunizationRepoPG(pool *pgxpool.Pool) ImmunizationRepository {
	return &immunizationRepoPG{pool: pool}
}

func (r *immunizationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const immunizationCols = `id, patient_id, vaccine, dose_number, date_given, batch_number, administered_by, created_by, created_at, updated_at, deleted_at`

func scanImmunization(row pgx.Row) (*Immunization, error) {
	var im Immunization
	err := row.Scan(&im.ID, &im.PatientID, &im.Vaccine, &im.DoseNumber, &im.DateGiven,
		&im.BatchNumber, &im.AdministeredBy, &im.CreatedBy, &im.CreatedAt, &im.UpdatedAt, &im.DeletedAt)
	return &im, err
}

func (r *immunizationRepoPG) Create(ctx context.Context, im *Immunization) error {
	if im.ID == uuid.Nil {
		im.ID = uuid.New()
	}
	now := time.Now()
	im.CreatedAt = now
	im.UpdatedAt = now
	// Sync uploads may reuse the id of a soft-deleted row; the conflict
	// clause resurrects it with the incoming data.
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO immunization (id, patient_id, vaccine, dose_number, date_given, batch_number, administered_by, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			patient_id = EXCLUDED.patient_id, vaccine = EXCLUDED.vaccine,
			dose_number = EXCLUDED.dose_number, date_given = EXCLUDED.date_given,
			batch_number = EXCLUDED.batch_number, administered_by = EXCLUDED.administered_by,
			updated_at = EXCLUDED.updated_at, deleted_at = NULL`,
		im.ID, im.PatientID, im.Vaccine, im.DoseNumber, im.DateGiven, im.BatchNumber,
		im.AdministeredBy, im.CreatedBy, im.CreatedAt, im.UpdatedAt)
	return err
}

func (r *immunizationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Immunization, error) {
	return scanImmunization(r.conn(ctx).QueryRow(ctx,
		`SELECT `+immunizationCols+` FROM immunization WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *immunizationRepoPG) Update(ctx context.Context, im *Immunization) error {
	im.UpdatedAt = time.Now()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE immunization SET patient_id = $2, vaccine = $3, dose_number = $4, date_given = $5,
			batch_number = $6, administered_by = $7, updated_at = $8
		WHERE id = $1 AND deleted_at IS NULL`,
		im.ID, im.PatientID, im.Vaccine, im.DoseNumber, im.DateGiven, im.BatchNumber,
		im.AdministeredBy, im.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *immunizationRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE immunization SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *immunizationRepoPG) List(ctx context.Context, limit, offset int) ([]*Immunization, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM immunization WHERE deleted_at IS NULL`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+immunizationCols+` FROM immunization WHERE deleted_at IS NULL ORDER BY date_given DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectImmunizations(rows)
	return items, total, err
}

func (r *immunizationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Immunization, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM immunization WHERE patient_id = $1 AND deleted_at IS NULL`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+immunizationCols+` FROM immunization WHERE patient_id = $1 AND deleted_at IS NULL ORDER BY date_given LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectImmunizations(rows)
	return items, total, err
}

func (r *immunizationRepoPG) UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	var t time.Time
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT updated_at FROM immunization WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&t)
	return t, err
}

func (r *immunizationRepoPG) ChangedSince(ctx context.Context, since time.Time) ([]ChangedImmunization, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+immunizationCols+` FROM immunization WHERE updated_at > $1 ORDER BY updated_at`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChangedImmunization
	for rows.Next() {
		im, err := scanImmunization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ChangedImmunization{Immunization: im, Deleted: im.DeletedAt != nil})
	}
	return out, nil
}

func collectImmunizations(rows pgx.Rows) ([]*Immunization, error) {
	var items []*Immunization
	for rows.Next() {
		im, err := scanImmunization(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, im)
	}
	return items, nil
}
