package surveillance

import (
	"context"
	"fmt"
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

type caseRepoPG struct{ pool *pgxpool.Pool }

func NewCaseRepoPG(pool *pgxpool.Pool) CaseRepository {
	return &caseRepoPG{pool: pool}
}

func (r *caseRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const caseCols = `id, patient_id, disease, status, onset_date, reported_date, location, notes, created_by, created_at, updated_at, deleted_at`

func scanCase(row pgx.Row) (*DiseaseCase, error) {
	var dc DiseaseCase
	err := row.Scan(&dc.ID, &dc.PatientID, &dc.Disease, &dc.Status, &dc.OnsetDate,
		&dc.ReportedDate, &dc.Location, &dc.Notes, &dc.CreatedBy, &dc.CreatedAt, &dc.UpdatedAt, &dc.DeletedAt)
	return &dc, err
}

func (r *caseRepoPG) Create(ctx context.Context, dc *DiseaseCase) error {
	if dc.ID == uuid.Nil {
		dc.ID = uuid.New()
	}
	now := time.Now()
	dc.CreatedAt = now
	dc.UpdatedAt = now
	// Sync uploads may reuse the id of a soft-deleted row; the conflict
	// clause resurrects it with the incoming data.
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO disease_case (id, patient_id, disease, status, onset_date, reported_date, location, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			patient_id = EXCLUDED.patient_id, disease = EXCLUDED.disease,
			status = EXCLUDED.status, onset_date = EXCLUDED.onset_date,
			reported_date = EXCLUDED.reported_date, location = EXCLUDED.location,
			notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at,
			deleted_at = NULL`,
		dc.ID, dc.PatientID, dc.Disease, dc.Status, dc.OnsetDate, dc.ReportedDate,
		dc.Location, dc.Notes, dc.CreatedBy, dc.CreatedAt, dc.UpdatedAt)
	return err
}

func (r *caseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DiseaseCase, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx,
		`SELECT `+caseCols+` FROM disease_case WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *caseRepoPG) Update(ctx context.Context, dc *DiseaseCase) error {
	dc.UpdatedAt = time.Now()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE disease_case SET patient_id = $2, disease = $3, status = $4, onset_date = $5,
			reported_date = $6, location = $7, notes = $8, updated_at = $9
		WHERE id = $1 AND deleted_at IS NULL`,
		dc.ID, dc.PatientID, dc.Disease, dc.Status, dc.OnsetDate, dc.ReportedDate,
		dc.Location, dc.Notes, dc.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *caseRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE disease_case SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *caseRepoPG) List(ctx context.Context, disease, status string, limit, offset int) ([]*DiseaseCase, int, error) {
	where := `deleted_at IS NULL`
	args := []interface{}{}
	idx := 1
	if disease != "" {
		where += fmt.Sprintf(` AND disease = $%d`, idx)
		args = append(args, disease)
		idx++
	}
	if status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM disease_case WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM disease_case WHERE %s ORDER BY reported_date DESC LIMIT $%d OFFSET $%d`,
		caseCols, where, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectCases(rows)
	return items, total, err
}

func (r *caseRepoPG) UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	var t time.Time
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT updated_at FROM disease_case WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&t)
	return t, err
}

func (r *caseRepoPG) ChangedSince(ctx context.Context, since time.Time) ([]ChangedCase, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+caseCols+` FROM disease_case WHERE updated_at > $1 ORDER BY updated_at`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChangedCase
	for rows.Next() {
		dc, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ChangedCase{Case: dc, Deleted: dc.DeletedAt != nil})
	}
	return out, nil
}

func collectCases(rows pgx.Rows) ([]*DiseaseCase, error) {
	var items []*DiseaseCase
	for rows.Next() {
		dc, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, dc)
	}
	return items, nil
}
