package sync

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

// --- devices ---

type deviceRepoPG struct{ pool *pgxpool.Pool }

func NewDeviceRepoPG(pool *pgxpool.Pool) DeviceRepository {
	return &deviceRepoPG{pool: pool}
}

const deviceCols = `id, device_id, user_id, device_type, device_name, os_version, secret_hash, is_active, last_sync, created_at, updated_at`

func scanDevice(row pgx.Row) (*Device, error) {
	var d Device
	err := row.Scan(&d.ID, &d.DeviceID, &d.UserID, &d.DeviceType, &d.DeviceName, &d.OSVersion,
		&d.SecretHash, &d.IsActive, &d.LastSync, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *deviceRepoPG) Create(ctx context.Context, d *Device) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO device (id, device_id, user_id, device_type, device_name, os_version, secret_hash, is_active, last_sync, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.DeviceID, d.UserID, d.DeviceType, d.DeviceName, d.OSVersion,
		d.SecretHash, d.IsActive, d.LastSync, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *deviceRepoPG) GetByDeviceID(ctx context.Context, deviceID string) (*Device, error) {
	return scanDevice(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+deviceCols+` FROM device WHERE device_id = $1`, deviceID))
}

func (r *deviceRepoPG) GetByDeviceAndUser(ctx context.Context, deviceID string, userID uuid.UUID) (*Device, error) {
	return scanDevice(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+deviceCols+` FROM device WHERE device_id = $1 AND user_id = $2`, deviceID, userID))
}

func (r *deviceRepoPG) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Device, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+deviceCols+` FROM device WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, nil
}

func (r *deviceRepoPG) Update(ctx context.Context, d *Device) error {
	d.UpdatedAt = time.Now()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE device SET device_type = $2, device_name = $3, os_version = $4, secret_hash = $5,
			is_active = $6, last_sync = $7, updated_at = $8
		WHERE device_id = $1`,
		d.DeviceID, d.DeviceType, d.DeviceName, d.OSVersion, d.SecretHash, d.IsActive, d.LastSync, d.UpdatedAt)
	return err
}

func (r *deviceRepoPG) Delete(ctx context.Context, deviceID string) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `DELETE FROM device WHERE device_id = $1`, deviceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *deviceRepoPG) SetActive(ctx context.Context, deviceID string, active bool) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE device SET is_active = $2, updated_at = NOW() WHERE device_id = $1`, deviceID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *deviceRepoPG) TouchLastSync(ctx context.Context, deviceID string, at time.Time) error {
	_, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE device SET last_sync = $2, updated_at = NOW() WHERE device_id = $1`, deviceID, at)
	return err
}

func (r *deviceRepoPG) Statistics(ctx context.Context) (*DeviceStatistics, error) {
	stats := &DeviceStatistics{ByType: make(map[string]int), ByOS: make(map[string]int)}
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_active),
			COUNT(*) FILTER (WHERE NOT is_active),
			COUNT(*) FILTER (WHERE last_sync > NOW() - INTERVAL '7 days')
		FROM device`).
		Scan(&stats.TotalDevices, &stats.ActiveDevices, &stats.InactiveDevices, &stats.SyncedLast7d)
	if err != nil {
		return nil, err
	}
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT device_type, COUNT(*) FROM device GROUP BY device_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		stats.ByType[typ] = n
	}
	osRows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT COALESCE(os_version, 'unknown'), COUNT(*) FROM device GROUP BY 1`)
	if err != nil {
		return nil, err
	}
	defer osRows.Close()
	for osRows.Next() {
		var os string
		var n int
		if err := osRows.Scan(&os, &n); err != nil {
			return nil, err
		}
		stats.ByOS[os] = n
	}
	return stats, nil
}

// --- offline sync records ---

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

const recordCols = `id, device_id, user_id, entity_type, entity_id, server_entity_id, operation, data, sync_status, error_message, conflict_resolution, sync_date, created_at, updated_at`

func scanRecord(row pgx.Row) (*OfflineSyncRecord, error) {
	var rec OfflineSyncRecord
	err := row.Scan(&rec.ID, &rec.DeviceID, &rec.UserID, &rec.EntityType, &rec.EntityID,
		&rec.ServerEntityID, &rec.Operation, &rec.Data, &rec.SyncStatus, &rec.ErrorMessage,
		&rec.ConflictResolution, &rec.SyncDate, &rec.CreatedAt, &rec.UpdatedAt)
	return &rec, err
}

func (r *recordRepoPG) Create(ctx context.Context, rec *OfflineSyncRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO offline_sync (id, device_id, user_id, entity_type, entity_id, server_entity_id, operation, data, sync_status, error_message, conflict_resolution, sync_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID, rec.DeviceID, rec.UserID, rec.EntityType, rec.EntityID, rec.ServerEntityID,
		rec.Operation, rec.Data, rec.SyncStatus, rec.ErrorMessage, rec.ConflictResolution,
		rec.SyncDate, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*OfflineSyncRecord, error) {
	return scanRecord(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+recordCols+` FROM offline_sync WHERE id = $1`, id))
}

func (r *recordRepoPG) Update(ctx context.Context, rec *OfflineSyncRecord) error {
	rec.UpdatedAt = time.Now()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE offline_sync SET server_entity_id = $2, sync_status = $3, error_message = $4,
			conflict_resolution = $5, sync_date = $6, updated_at = $7
		WHERE id = $1`,
		rec.ID, rec.ServerEntityID, rec.SyncStatus, rec.ErrorMessage,
		rec.ConflictResolution, rec.SyncDate, rec.UpdatedAt)
	return err
}

func (r *recordRepoPG) ListByDevice(ctx context.Context, deviceID string, limit, offset int) ([]*OfflineSyncRecord, int, error) {
	var total int
	if err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM offline_sync WHERE device_id = $1`, deviceID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+recordCols+` FROM offline_sync WHERE device_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		deviceID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*OfflineSyncRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, nil
}

func (r *recordRepoPG) ListConflicts(ctx context.Context, deviceID string) ([]*OfflineSyncRecord, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+recordCols+` FROM offline_sync WHERE device_id = $1 AND sync_status = $2 ORDER BY created_at`,
		deviceID, StatusConflict)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*OfflineSyncRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, nil
}

func (r *recordRepoPG) StatusSummary(ctx context.Context, deviceID string) ([]StatusCount, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT sync_status, COUNT(*), MAX(sync_date)
		FROM offline_sync WHERE device_id = $1
		GROUP BY sync_status ORDER BY sync_status`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.SyncStatus, &sc.Count, &sc.LastSyncDate); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func (r *recordRepoPG) DeleteByDevice(ctx context.Context, deviceID string) (int, error) {
	tag, err := connFor(ctx, r.pool).Exec(ctx,
		`DELETE FROM offline_sync WHERE device_id = $1`, deviceID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// --- sessions ---

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewSessionRepoPG(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepoPG{pool: pool}
}

const sessionCols = `id, device_id, sync_token, status, records_uploaded, records_downloaded, started_at, completed_at`

func scanSession(row pgx.Row) (*SyncSession, error) {
	var s SyncSession
	err := row.Scan(&s.ID, &s.DeviceID, &s.SyncToken, &s.Status,
		&s.RecordsUploaded, &s.RecordsDownloaded, &s.StartedAt, &s.CompletedAt)
	return &s, err
}

func (r *sessionRepoPG) Create(ctx context.Context, s *SyncSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO sync_session (id, device_id, sync_token, status, records_uploaded, records_downloaded, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.DeviceID, s.SyncToken, s.Status, s.RecordsUploaded, s.RecordsDownloaded,
		s.StartedAt, s.CompletedAt)
	return err
}

func (r *sessionRepoPG) GetByToken(ctx context.Context, deviceID, token string) (*SyncSession, error) {
	return scanSession(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM sync_session WHERE device_id = $1 AND sync_token = $2`,
		deviceID, token))
}

func (r *sessionRepoPG) Update(ctx context.Context, s *SyncSession) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE sync_session SET status = $2, records_uploaded = $3, records_downloaded = $4, completed_at = $5
		WHERE id = $1`,
		s.ID, s.Status, s.RecordsUploaded, s.RecordsDownloaded, s.CompletedAt)
	return err
}

func (r *sessionRepoPG) SupersedeOpen(ctx context.Context, deviceID string, at time.Time) (int, error) {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE sync_session SET status = $2, completed_at = $3
		WHERE device_id = $1 AND status IN ($4, $5)`,
		deviceID, SessionCompleted, at, SessionInitiated, SessionInProgress)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *sessionRepoPG) DeleteByDevice(ctx context.Context, deviceID string) (int, error) {
	tag, err := connFor(ctx, r.pool).Exec(ctx,
		`DELETE FROM sync_session WHERE device_id = $1`, deviceID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
