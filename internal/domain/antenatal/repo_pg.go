package antenatal

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

type visitRepoPG struct{ pool *pgxpool.Pool }

func NewVisitRepoPG(pool *pgxpool.Pool) VisitRepository {
	return &visitRepoPG{pool: pool}
}

func (r *visitRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const visitCols = `id, patient_id, visit_number, visit_date, gestational_age_weeks, blood_pressure, weight_kg, notes, next_visit_date, created_by, created_at, updated_at, deleted_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.PatientID, &v.VisitNumber, &v.VisitDate, &v.GestationalAgeWeeks,
		&v.BloodPressure, &v.WeightKg, &v.Notes, &v.NextVisitDate,
		&v.CreatedBy, &v.CreatedAt, &v.UpdatedAt, &v.DeletedAt)
	return &v, err
}

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	now := time.Now()
	v.CreatedAt = now
	v.UpdatedAt = now
	// Sync uploads may reuse the id of a soft-deleted row; the conflict
	// clause resurrects it with the incoming data.
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO antenatal_visit (id, patient_id, visit_number, visit_date, gestational_age_weeks, blood_pressure, weight_kg, notes, next_visit_date, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			patient_id = EXCLUDED.patient_id, visit_number = EXCLUDED.visit_number,
			visit_date = EXCLUDED.visit_date, gestational_age_weeks = EXCLUDED.gestational_age_weeks,
			blood_pressure = EXCLUDED.blood_pressure, weight_kg = EXCLUDED.weight_kg,
			notes = EXCLUDED.notes, next_visit_date = EXCLUDED.next_visit_date,
			updated_at = EXCLUDED.updated_at, deleted_at = NULL`,
		v.ID, v.PatientID, v.VisitNumber, v.VisitDate, v.GestationalAgeWeeks, v.BloodPressure,
		v.WeightKg, v.Notes, v.NextVisitDate, v.CreatedBy, v.CreatedAt, v.UpdatedAt)
	return err
}

func (r *visitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx,
		`SELECT `+visitCols+` FROM antenatal_visit WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *visitRepoPG) Update(ctx context.Context, v *Visit) error {
	v.UpdatedAt = time.Now()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE antenatal_visit SET patient_id = $2, visit_number = $3, visit_date = $4,
			gestational_age_weeks = $5, blood_pressure = $6, weight_kg = $7, notes = $8,
			next_visit_date = $9, updated_at = $10
		WHERE id = $1 AND deleted_at IS NULL`,
		v.ID, v.PatientID, v.VisitNumber, v.VisitDate, v.GestationalAgeWeeks, v.BloodPressure,
		v.WeightKg, v.Notes, v.NextVisitDate, v.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *visitRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE antenatal_visit SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *visitRepoPG) List(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM antenatal_visit WHERE deleted_at IS NULL`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM antenatal_visit WHERE deleted_at IS NULL ORDER BY visit_date DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectVisits(rows)
	return items, total, err
}

func (r *visitRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM antenatal_visit WHERE patient_id = $1 AND deleted_at IS NULL`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM antenatal_visit WHERE patient_id = $1 AND deleted_at IS NULL ORDER BY visit_number LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectVisits(rows)
	return items, total, err
}

func (r *visitRepoPG) UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	var t time.Time
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT updated_at FROM antenatal_visit WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&t)
	return t, err
}

func (r *visitRepoPG) ChangedSince(ctx context.Context, since time.Time) ([]ChangedVisit, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM antenatal_visit WHERE updated_at > $1 ORDER BY updated_at`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChangedVisit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ChangedVisit{Visit: v, Deleted: v.DeletedAt != nil})
	}
	return out, nil
}

func collectVisits(rows pgx.Rows) ([]*Visit, error) {
	var items []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}
