package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hmis/hmis/internal/platform/db"
)

// ConflictResolution is one entry in a resolve-conflicts request.
type ConflictResolution struct {
	RecordID   uuid.UUID              `json:"recordId" validate:"required"`
	Resolution string                 `json:"resolution" validate:"required"`
	MergedData map[string]interface{} `json:"mergedData,omitempty"`
}

// ResolutionResult reports the outcome of one resolution attempt.
type ResolutionResult struct {
	RecordID   uuid.UUID `json:"recordId"`
	Resolution string    `json:"resolution"`
	Status     string    `json:"status"`
	Error      *string   `json:"error,omitempty"`
}

// Resolver settles conflicted sync records. "local" replays the device's
// change over the server copy, "server" keeps the server copy untouched,
// "merged" writes caller-supplied merged data.
type Resolver struct {
	devices DeviceRepository
	records RecordRepository
	engine  *Engine
	pool    *pgxpool.Pool
	logger  zerolog.Logger
}

func NewResolver(devices DeviceRepository, records RecordRepository, engine *Engine, pool *pgxpool.Pool, logger zerolog.Logger) *Resolver {
	return &Resolver{
		devices: devices,
		records: records,
		engine:  engine,
		pool:    pool,
		logger:  logger.With().Str("component", "conflict_resolver").Logger(),
	}
}

// Resolve applies a batch of resolutions for one device. Each resolution
// is independent; a failed one never blocks the others.
func (r *Resolver) Resolve(ctx context.Context, deviceID string, callerID uuid.UUID, isAdmin bool, resolutions []ConflictResolution) ([]ResolutionResult, error) {
	d, err := r.devices.GetByDeviceID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device %s: %w", deviceID, err)
	}
	if !isAdmin && d.UserID != callerID {
		return nil, ErrForbidden
	}

	results := make([]ResolutionResult, 0, len(resolutions))
	for _, res := range resolutions {
		out := ResolutionResult{RecordID: res.RecordID, Resolution: res.Resolution}
		if err := r.resolveOne(ctx, deviceID, res); err != nil {
			msg := err.Error()
			out.Status, out.Error = StatusFailed, &msg
			r.logger.Warn().Err(err).Str("record_id", res.RecordID.String()).Msg("conflict resolution failed")
		} else {
			out.Status = StatusCompleted
		}
		results = append(results, out)
	}
	return results, nil
}

func (r *Resolver) resolveOne(ctx context.Context, deviceID string, res ConflictResolution) error {
	rec, err := r.records.GetByID(ctx, res.RecordID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get sync record: %w", err)
	}
	if rec.DeviceID != deviceID {
		return ErrNotFound
	}
	if rec.SyncStatus != StatusConflict {
		return fmt.Errorf("record %s is %s, not in conflict", rec.ID, rec.SyncStatus)
	}

	switch res.Resolution {
	case ResolutionLocal:
		var data map[string]interface{}
		if len(rec.Data) > 0 {
			if err := json.Unmarshal(rec.Data, &data); err != nil {
				return fmt.Errorf("decode recorded change: %w", err)
			}
		}
		if err := r.writeEntity(ctx, rec, data); err != nil {
			return err
		}
	case ResolutionServer:
		// Server copy wins; nothing to write.
	case ResolutionMerged:
		if res.MergedData == nil {
			return fmt.Errorf("merged resolution requires mergedData")
		}
		if err := r.writeEntity(ctx, rec, res.MergedData); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedResolution, res.Resolution)
	}

	now := time.Now()
	resolution := res.Resolution
	rec.SyncStatus = StatusCompleted
	rec.ConflictResolution = &resolution
	rec.SyncDate = &now
	if err := r.records.Update(ctx, rec); err != nil {
		return fmt.Errorf("mark record resolved: %w", err)
	}
	return nil
}

// writeEntity forces the given data onto the entity, creating it when the
// server copy is gone.
func (r *Resolver) writeEntity(ctx context.Context, rec *OfflineSyncRecord, data map[string]interface{}) error {
	store, err := r.engine.Store(rec.EntityType)
	if err != nil {
		return err
	}
	txCtx, tx, err := db.WithNestedTx(ctx, r.pool)
	if err != nil {
		return fmt.Errorf("begin resolution tx: %w", err)
	}
	entityID := rec.EntityID
	if rec.ServerEntityID != nil {
		entityID = *rec.ServerEntityID
	}
	if err := store.Update(txCtx, entityID, data); err != nil {
		if errors.Is(err, ErrNotFound) {
			if _, cerr := store.CreateWithID(txCtx, entityID, data, rec.UserID.String()); cerr != nil {
				_ = tx.Rollback(ctx)
				return cerr
			}
		} else {
			_ = tx.Rollback(ctx)
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit resolution: %w", err)
	}
	return nil
}
