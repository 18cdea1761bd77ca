package sync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Change operations accepted in an upload batch.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Sync record statuses. A record starts pending and moves forward only.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusConflict  = "conflict"
)

// Conflict resolutions.
const (
	ResolutionLocal  = "local"
	ResolutionServer = "server"
	ResolutionMerged = "merged"
)

// Session statuses.
const (
	SessionInitiated  = "initiated"
	SessionInProgress = "in_progress"
	SessionCompleted  = "completed"
)

// Device maps to the device table. DeviceID is the client-facing handle
// ("tablet-<uuid>"); ID is the row key.
type Device struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	DeviceID   string     `db:"device_id" json:"device_id"`
	UserID     uuid.UUID  `db:"user_id" json:"user_id"`
	DeviceType string     `db:"device_type" json:"device_type"`
	DeviceName string     `db:"device_name" json:"device_name"`
	OSVersion  *string    `db:"os_version" json:"os_version,omitempty"`
	SecretHash string     `db:"secret_hash" json:"-"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	LastSync   *time.Time `db:"last_sync" json:"last_sync,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// OfflineSyncRecord maps to the offline_sync table. One row per change
// uploaded by a device, carrying its terminal status and any conflict
// resolution applied later.
type OfflineSyncRecord struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	DeviceID           string          `db:"device_id" json:"device_id"`
	UserID             uuid.UUID       `db:"user_id" json:"user_id"`
	EntityType         string          `db:"entity_type" json:"entity_type"`
	EntityID           string          `db:"entity_id" json:"entity_id"`
	ServerEntityID     *string         `db:"server_entity_id" json:"server_entity_id,omitempty"`
	Operation          string          `db:"operation" json:"operation"`
	Data               json.RawMessage `db:"data" json:"data,omitempty"`
	SyncStatus         string          `db:"sync_status" json:"sync_status"`
	ErrorMessage       *string         `db:"error_message" json:"error_message,omitempty"`
	ConflictResolution *string         `db:"conflict_resolution" json:"conflict_resolution,omitempty"`
	SyncDate           *time.Time      `db:"sync_date" json:"sync_date,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// SyncSession maps to the sync_session table. One session per
// initiate/complete cycle; the token scopes uploads and downloads to it.
type SyncSession struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	DeviceID          string     `db:"device_id" json:"device_id"`
	SyncToken         string     `db:"sync_token" json:"sync_token"`
	Status            string     `db:"status" json:"status"`
	RecordsUploaded   int        `db:"records_uploaded" json:"records_uploaded"`
	RecordsDownloaded int        `db:"records_downloaded" json:"records_downloaded"`
	StartedAt         time.Time  `db:"started_at" json:"started_at"`
	CompletedAt       *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Change is one entry in an upload batch.
type Change struct {
	EntityType    string                 `json:"entityType" validate:"required"`
	EntityID      string                 `json:"entityId" validate:"required"`
	Operation     string                 `json:"operation" validate:"required,oneof=create update delete"`
	Data          map[string]interface{} `json:"data,omitempty"`
	BaseUpdatedAt *time.Time             `json:"baseUpdatedAt,omitempty"`
}

// ChangeResult reports the outcome of one uploaded change.
type ChangeResult struct {
	EntityType     string  `json:"entityType"`
	EntityID       string  `json:"entityId"`
	ServerEntityID *string `json:"serverEntityId,omitempty"`
	Status         string  `json:"status"`
	Error          *string `json:"error,omitempty"`
}

// ChangedRow is one server-side change returned in a download delta.
// Deleted rows carry a nil Data.
type ChangedRow struct {
	ID        string                 `json:"id"`
	Deleted   bool                   `json:"-"`
	Data      map[string]interface{} `json:"data"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// DeltaEntry is the wire form of a server-side change in a download.
type DeltaEntry struct {
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Operation  string                 `json:"operation"`
	Data       map[string]interface{} `json:"data"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// StatusCount groups sync records by status for a device summary.
type StatusCount struct {
	SyncStatus   string     `json:"syncStatus"`
	Count        int        `json:"count"`
	LastSyncDate *time.Time `json:"lastSyncDate,omitempty"`
}

// DeviceStatistics summarises the registry for the admin endpoint.
type DeviceStatistics struct {
	TotalDevices    int            `json:"totalDevices"`
	ActiveDevices   int            `json:"activeDevices"`
	InactiveDevices int            `json:"inactiveDevices"`
	ByType          map[string]int `json:"byType"`
	ByOS            map[string]int `json:"byOS"`
	SyncedLast7d    int            `json:"syncedLast7d"`
}
