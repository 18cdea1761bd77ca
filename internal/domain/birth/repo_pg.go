package birth

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

type birthRepoPG struct{ pool *pgxpool.Pool }

func NewBirthRepoPG(pool *pgxpool.Pool) BirthRepository {
	return &birthRepoPG{pool: pool}
}

func (r *birthRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const birthCols = `id, mother_id, child_first_name, child_last_name, gender, date_of_birth, birth_weight_grams, place_of_birth, attended_by, created_by, created_at, updated_at, deleted_at`

func scanBirth(row pgx.Row) (*BirthRecord, error) {
	var b BirthRecord
	err := row.Scan(&b.ID, &b.MotherID, &b.ChildFirstName, &b.ChildLastName, &b.Gender,
		&b.DateOfBirth, &b.BirthWeightGrams, &b.PlaceOfBirth, &b.AttendedBy,
		&b.CreatedBy, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt)
	return &b, err
}

func (r *birthRepoPG) Create(ctx context.Context, b *BirthRecord) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	// Sync uploads may reuse the id of a soft-deleted row; the conflict
	// clause resurrects it with the incoming data.
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO birth_record (id, mother_id, child_first_name, child_last_name, gender, date_of_birth, birth_weight_grams, place_of_birth, attended_by, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			mother_id = EXCLUDED.mother_id, child_first_name = EXCLUDED.child_first_name,
			child_last_name = EXCLUDED.child_last_name, gender = EXCLUDED.gender,
			date_of_birth = EXCLUDED.date_of_birth, birth_weight_grams = EXCLUDED.birth_weight_grams,
			place_of_birth = EXCLUDED.place_of_birth, attended_by = EXCLUDED.attended_by,
			updated_at = EXCLUDED.updated_at, deleted_at = NULL`,
		b.ID, b.MotherID, b.ChildFirstName, b.ChildLastName, b.Gender, b.DateOfBirth,
		b.BirthWeightGrams, b.PlaceOfBirth, b.AttendedBy, b.CreatedBy, b.CreatedAt, b.UpdatedAt)
	return err
}

func (r *birthRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*BirthRecord, error) {
	return scanBirth(r.conn(ctx).QueryRow(ctx,
		`SELECT `+birthCols+` FROM birth_record WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *birthRepoPG) Update(ctx context.Context, b *BirthRecord) error {
	b.UpdatedAt = time.Now()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE birth_record SET mother_id = $2, child_first_name = $3, child_last_name = $4,
			gender = $5, date_of_birth = $6, birth_weight_grams = $7, place_of_birth = $8,
			attended_by = $9, updated_at = $10
		WHERE id = $1 AND deleted_at IS NULL`,
		b.ID, b.MotherID, b.ChildFirstName, b.ChildLastName, b.Gender, b.DateOfBirth,
		b.BirthWeightGrams, b.PlaceOfBirth, b.AttendedBy, b.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *birthRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE birth_record SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *birthRepoPG) List(ctx context.Context, limit, offset int) ([]*BirthRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM birth_record WHERE deleted_at IS NULL`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+birthCols+` FROM birth_record WHERE deleted_at IS NULL ORDER BY date_of_birth DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectBirths(rows)
	return items, total, err
}

func (r *birthRepoPG) ListByMother(ctx context.Context, motherID uuid.UUID, limit, offset int) ([]*BirthRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM birth_record WHERE mother_id = $1 AND deleted_at IS NULL`, motherID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+birthCols+` FROM birth_record WHERE mother_id = $1 AND deleted_at IS NULL ORDER BY date_of_birth DESC LIMIT $2 OFFSET $3`,
		motherID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectBirths(rows)
	return items, total, err
}

func (r *birthRepoPG) UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	var t time.Time
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT updated_at FROM birth_record WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&t)
	return t, err
}

func (r *birthRepoPG) ChangedSince(ctx context.Context, since time.Time) ([]ChangedRecord, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+birthCols+` FROM birth_record WHERE updated_at > $1 ORDER BY updated_at`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChangedRecord
	for rows.Next() {
		b, err := scanBirth(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ChangedRecord{Record: b, Deleted: b.DeletedAt != nil})
	}
	return out, nil
}

func collectBirths(rows pgx.Rows) ([]*BirthRecord, error) {
	var items []*BirthRecord
	for rows.Next() {
		b, err := scanBirth(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, nil
}
