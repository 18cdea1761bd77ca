package sync

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hmis/hmis/internal/platform/db"
)

// EventPublisher receives sync lifecycle events. The webhook manager is
// the production implementation.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload map[string]interface{}) error
}

// Orchestrator drives the initiate / upload / download / complete cycle.
type Orchestrator struct {
	devices  DeviceRepository
	records  RecordRepository
	sessions SessionRepository
	engine   *Engine
	pool     *pgxpool.Pool
	events   EventPublisher
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewOrchestrator(devices DeviceRepository, records RecordRepository, sessions SessionRepository,
	engine *Engine, pool *pgxpool.Pool, events EventPublisher, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		devices:  devices,
		records:  records,
		sessions: sessions,
		engine:   engine,
		pool:     pool,
		events:   events,
		validate: validator.New(),
		logger:   logger.With().Str("component", "sync_orchestrator").Logger(),
	}
}

func newSyncToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate sync token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (o *Orchestrator) ownedDevice(ctx context.Context, deviceID string, callerID uuid.UUID, isAdmin bool) (*Device, error) {
	d, err := o.devices.GetByDeviceID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device %s: %w", deviceID, err)
	}
	if !isAdmin && d.UserID != callerID {
		return nil, ErrForbidden
	}
	return d, nil
}

func (o *Orchestrator) openSession(ctx context.Context, deviceID, token string) (*SyncSession, error) {
	s, err := o.sessions.GetByToken(ctx, deviceID, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidSyncToken
		}
		return nil, fmt.Errorf("get session for %s: %w", deviceID, err)
	}
	if s.Status == SessionCompleted {
		return nil, ErrInvalidSyncToken
	}
	return s, nil
}

// Initiate opens a new sync session for the device. Any still-open session
// is superseded first, so a crashed client can always start over.
func (o *Orchestrator) Initiate(ctx context.Context, deviceID string, callerID uuid.UUID) (*SyncSession, error) {
	d, err := o.ownedDevice(ctx, deviceID, callerID, false)
	if err != nil {
		return nil, err
	}
	if !d.IsActive {
		return nil, ErrInactiveAccount
	}

	now := time.Now()
	superseded, err := o.sessions.SupersedeOpen(ctx, deviceID, now)
	if err != nil {
		return nil, fmt.Errorf("supersede sessions for %s: %w", deviceID, err)
	}
	if superseded > 0 {
		o.logger.Warn().Str("device_id", deviceID).Int("count", superseded).Msg("superseded open sync sessions")
	}

	token, err := newSyncToken()
	if err != nil {
		return nil, err
	}
	s := &SyncSession{
		DeviceID:  deviceID,
		SyncToken: token,
		Status:    SessionInitiated,
		StartedAt: now,
	}
	if err := o.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session for %s: %w", deviceID, err)
	}
	o.logger.Info().Str("device_id", deviceID).Msg("sync session initiated")
	return s, nil
}

// Upload applies a batch of device changes. Each change runs in its own
// savepoint, so one failure never takes down the rest of the batch; every
// change gets a result row regardless of outcome.
func (o *Orchestrator) Upload(ctx context.Context, deviceID string, callerID uuid.UUID, syncToken string, changes []Change) ([]ChangeResult, error) {
	d, err := o.ownedDevice(ctx, deviceID, callerID, false)
	if err != nil {
		return nil, err
	}
	session, err := o.openSession(ctx, deviceID, syncToken)
	if err != nil {
		return nil, err
	}
	if session.Status == SessionInitiated {
		session.Status = SessionInProgress
	}

	results := make([]ChangeResult, 0, len(changes))
	uploaded := 0
	for _, change := range changes {
		res := o.applyOne(ctx, d, change)
		if res.Status == StatusCompleted {
			uploaded++
		}
		results = append(results, res)
	}

	session.RecordsUploaded += uploaded
	if err := o.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("update session for %s: %w", deviceID, err)
	}
	if err := o.devices.TouchLastSync(ctx, deviceID, time.Now()); err != nil {
		return nil, fmt.Errorf("touch last sync for %s: %w", deviceID, err)
	}
	return results, nil
}

func (o *Orchestrator) applyOne(ctx context.Context, d *Device, change Change) ChangeResult {
	res := ChangeResult{EntityType: change.EntityType, EntityID: change.EntityID}

	rec := &OfflineSyncRecord{
		DeviceID:   d.DeviceID,
		UserID:     d.UserID,
		EntityType: change.EntityType,
		EntityID:   change.EntityID,
		Operation:  change.Operation,
		SyncStatus: StatusPending,
	}
	if change.Data != nil {
		raw, err := json.Marshal(change.Data)
		if err != nil {
			msg := fmt.Sprintf("encode change data: %v", err)
			res.Status, res.Error = StatusFailed, &msg
			return res
		}
		rec.Data = raw
	}
	if err := o.records.Create(ctx, rec); err != nil {
		msg := fmt.Sprintf("record change: %v", err)
		res.Status, res.Error = StatusFailed, &msg
		return res
	}

	status, serverID, applyErr := o.applyInTx(ctx, d, change)

	now := time.Now()
	rec.SyncStatus = status
	rec.SyncDate = &now
	res.Status = status
	if serverID != "" {
		rec.ServerEntityID = &serverID
		res.ServerEntityID = &serverID
	}
	if applyErr != nil {
		msg := applyErr.Error()
		rec.ErrorMessage = &msg
		res.Error = &msg
		o.logger.Warn().Str("device_id", d.DeviceID).Str("entity_type", change.EntityType).
			Str("entity_id", change.EntityID).Str("status", status).Err(applyErr).Msg("change not applied")
	}
	if err := o.records.Update(ctx, rec); err != nil {
		o.logger.Error().Err(err).Str("record_id", rec.ID.String()).Msg("failed to update sync record")
	}
	return res
}

// applyInTx runs the change inside its own transaction or savepoint and
// maps the outcome to a sync record status.
func (o *Orchestrator) applyInTx(ctx context.Context, d *Device, change Change) (string, string, error) {
	if err := o.validate.Struct(change); err != nil {
		return StatusFailed, "", fmt.Errorf("invalid change: %w", err)
	}

	txCtx, tx, err := db.WithNestedTx(ctx, o.pool)
	if err != nil {
		return StatusFailed, "", fmt.Errorf("begin change tx: %w", err)
	}
	serverID, applyErr := o.engine.Apply(txCtx, change, d.LastSync, d.UserID.String())
	if applyErr != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(applyErr, ErrConflict) {
			return StatusConflict, "", applyErr
		}
		return StatusFailed, "", applyErr
	}
	if err := tx.Commit(ctx); err != nil {
		return StatusFailed, "", fmt.Errorf("commit change: %w", err)
	}
	return StatusCompleted, serverID, nil
}

// Download returns server-side changes since the given time, defaulting to
// the device's last sync. An entityTypes filter narrows the delta to those
// types; empty means all registered types. Deletions come back as delete
// entries with no data.
func (o *Orchestrator) Download(ctx context.Context, deviceID string, callerID uuid.UUID, syncToken string, since *time.Time, entityTypes []string) ([]DeltaEntry, error) {
	d, err := o.ownedDevice(ctx, deviceID, callerID, false)
	if err != nil {
		return nil, err
	}
	session, err := o.openSession(ctx, deviceID, syncToken)
	if err != nil {
		return nil, err
	}

	from := time.Time{}
	switch {
	case since != nil:
		from = *since
	case d.LastSync != nil:
		from = *d.LastSync
	}
	delta, err := o.engine.Delta(ctx, from, entityTypes...)
	if err != nil {
		return nil, err
	}

	if session.Status == SessionInitiated {
		session.Status = SessionInProgress
	}
	session.RecordsDownloaded += len(delta)
	if err := o.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("update session for %s: %w", deviceID, err)
	}
	if err := o.devices.TouchLastSync(ctx, deviceID, time.Now()); err != nil {
		return nil, fmt.Errorf("touch last sync for %s: %w", deviceID, err)
	}
	return delta, nil
}

// Complete closes the session and advances the device sync timestamp.
// Completing an already-completed session is a no-op returning the session
// unchanged.
func (o *Orchestrator) Complete(ctx context.Context, deviceID string, callerID uuid.UUID, syncToken string) (*SyncSession, error) {
	if _, err := o.ownedDevice(ctx, deviceID, callerID, false); err != nil {
		return nil, err
	}
	session, err := o.sessions.GetByToken(ctx, deviceID, syncToken)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidSyncToken
		}
		return nil, fmt.Errorf("get session for %s: %w", deviceID, err)
	}
	if session.Status == SessionCompleted {
		return session, nil
	}

	now := time.Now()
	session.Status = SessionCompleted
	session.CompletedAt = &now
	if err := o.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("complete session for %s: %w", deviceID, err)
	}
	if err := o.devices.TouchLastSync(ctx, deviceID, now); err != nil {
		return nil, fmt.Errorf("touch last sync for %s: %w", deviceID, err)
	}

	if o.events != nil {
		payload := map[string]interface{}{
			"deviceId":          deviceID,
			"sessionId":         session.ID.String(),
			"recordsUploaded":   session.RecordsUploaded,
			"recordsDownloaded": session.RecordsDownloaded,
			"completedAt":       now,
		}
		if err := o.events.Publish(ctx, "sync.completed", payload); err != nil {
			o.logger.Warn().Err(err).Str("device_id", deviceID).Msg("failed to publish sync.completed")
		}
	}
	o.logger.Info().Str("device_id", deviceID).
		Int("uploaded", session.RecordsUploaded).Int("downloaded", session.RecordsDownloaded).
		Msg("sync session completed")
	return session, nil
}

// SyncStatus is the per-device summary: counts grouped by record status
// plus the unresolved conflict rows.
type SyncStatus struct {
	DeviceID  string               `json:"deviceId"`
	LastSync  *time.Time           `json:"lastSync,omitempty"`
	ByStatus  []StatusCount        `json:"byStatus"`
	Conflicts []*OfflineSyncRecord `json:"conflicts"`
}

func (o *Orchestrator) Status(ctx context.Context, deviceID string, callerID uuid.UUID, isAdmin bool) (*SyncStatus, error) {
	d, err := o.ownedDevice(ctx, deviceID, callerID, isAdmin)
	if err != nil {
		return nil, err
	}
	summary, err := o.records.StatusSummary(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("status summary for %s: %w", deviceID, err)
	}
	conflicts, err := o.records.ListConflicts(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list conflicts for %s: %w", deviceID, err)
	}
	if conflicts == nil {
		conflicts = []*OfflineSyncRecord{}
	}
	return &SyncStatus{DeviceID: deviceID, LastSync: d.LastSync, ByStatus: summary, Conflicts: conflicts}, nil
}

func (o *Orchestrator) History(ctx context.Context, deviceID string, callerID uuid.UUID, isAdmin bool, limit, offset int) ([]*OfflineSyncRecord, int, error) {
	if _, err := o.ownedDevice(ctx, deviceID, callerID, isAdmin); err != nil {
		return nil, 0, err
	}
	return o.records.ListByDevice(ctx, deviceID, limit, offset)
}

// Reset wipes the device's sync records, sessions and last-sync marker so
// the next cycle runs from scratch. Owner or admin only.
func (o *Orchestrator) Reset(ctx context.Context, deviceID string, callerID uuid.UUID, isAdmin bool) (recordsDeleted, sessionsDeleted int, err error) {
	d, err := o.ownedDevice(ctx, deviceID, callerID, isAdmin)
	if err != nil {
		return 0, 0, err
	}
	recordsDeleted, err = o.records.DeleteByDevice(ctx, deviceID)
	if err != nil {
		return 0, 0, fmt.Errorf("delete records for %s: %w", deviceID, err)
	}
	sessionsDeleted, err = o.sessions.DeleteByDevice(ctx, deviceID)
	if err != nil {
		return 0, 0, fmt.Errorf("delete sessions for %s: %w", deviceID, err)
	}
	d.LastSync = nil
	if err := o.devices.Update(ctx, d); err != nil {
		return 0, 0, fmt.Errorf("clear last sync for %s: %w", deviceID, err)
	}
	o.logger.Info().Str("device_id", deviceID).
		Int("records", recordsDeleted).Int("sessions", sessionsDeleted).Msg("device sync state reset")
	return recordsDeleted, sessionsDeleted, nil
}
