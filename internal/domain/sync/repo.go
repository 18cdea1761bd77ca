package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type DeviceRepository interface {
	Create(ctx context.Context, d *Device) error
	GetByDeviceID(ctx context.Context, deviceID string) (*Device, error)
	GetByDeviceAndUser(ctx context.Context, deviceID string, userID uuid.UUID) (*Device, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Device, error)
	Update(ctx context.Context, d *Device) error
	Delete(ctx context.Context, deviceID string) error
	SetActive(ctx context.Context, deviceID string, active bool) error
	TouchLastSync(ctx context.Context, deviceID string, at time.Time) error
	Statistics(ctx context.Context) (*DeviceStatistics, error)
}

type RecordRepository interface {
	Create(ctx context.Context, rec *OfflineSyncRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*OfflineSyncRecord, error)
	Update(ctx context.Context, rec *OfflineSyncRecord) error
	ListByDevice(ctx context.Context, deviceID string, limit, offset int) ([]*OfflineSyncRecord, int, error)
	ListConflicts(ctx context.Context, deviceID string) ([]*OfflineSyncRecord, error)
	StatusSummary(ctx context.Context, deviceID string) ([]StatusCount, error)
	DeleteByDevice(ctx context.Context, deviceID string) (int, error)
}

type SessionRepository interface {
	Create(ctx context.Context, s *SyncSession) error
	GetByToken(ctx context.Context, deviceID, token string) (*SyncSession, error)
	Update(ctx context.Context, s *SyncSession) error
	SupersedeOpen(ctx context.Context, deviceID string, at time.Time) (int, error)
	DeleteByDevice(ctx context.Context, deviceID string) (int, error)
}
