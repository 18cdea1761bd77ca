package sync

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// UserInfo is the slice of the user directory the sync subsystem needs.
type UserInfo struct {
	ID     uuid.UUID
	Active bool
	Role   string
}

// UserDirectory resolves device owners. The user package provides the
// production adapter.
type UserDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*UserInfo, error)
}

var validDeviceTypes = map[string]bool{
	"tablet": true,
	"phone":  true,
	"laptop": true,
}

// RegisterDeviceInput is the payload for device registration. DeviceID is
// optional; supplying a known one re-registers the same device.
type RegisterDeviceInput struct {
	DeviceID   string  `json:"deviceId"`
	DeviceType string  `json:"deviceType" validate:"required"`
	DeviceName string  `json:"deviceName" validate:"required"`
	OSVersion  *string `json:"osVersion,omitempty"`
}

// RegisteredDevice carries the one-time plaintext secret back to the caller.
type RegisteredDevice struct {
	Device *Device `json:"device"`
	Secret string  `json:"secret"`
}

// Registry manages the device lifecycle.
type Registry struct {
	devices  DeviceRepository
	users    UserDirectory
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewRegistry(devices DeviceRepository, users UserDirectory, logger zerolog.Logger) *Registry {
	return &Registry{
		devices:  devices,
		users:    users,
		validate: validator.New(),
		logger:   logger.With().Str("component", "device_registry").Logger(),
	}
}

func newDeviceSecret() (plaintext, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate device secret: %w", err)
	}
	plaintext = hex.EncodeToString(buf)
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash device secret: %w", err)
	}
	return plaintext, string(h), nil
}

// Register creates a device for the user, or rotates the secret of an
// existing one when the same (deviceId, userId) pair registers again.
// The plaintext secret is returned exactly once and never stored.
func (r *Registry) Register(ctx context.Context, userID uuid.UUID, in RegisterDeviceInput) (*RegisteredDevice, error) {
	if err := r.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid registration: %w", err)
	}
	if !validDeviceTypes[in.DeviceType] {
		return nil, fmt.Errorf("invalid device type %q", in.DeviceType)
	}

	owner, err := r.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("resolve device owner: %w", err)
	}
	if !owner.Active {
		return nil, ErrInactiveAccount
	}

	// A device-generated id is adopted as-is so repeated registrations from
	// the same device stay idempotent. An id already claimed by another
	// user is never adopted; that caller gets a fresh identity instead.
	deviceID := in.DeviceID
	if deviceID != "" {
		existing, err := r.devices.GetByDeviceAndUser(ctx, deviceID, userID)
		if err == nil {
			return r.reRegister(ctx, existing, in)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lookup device %s: %w", deviceID, err)
		}
		if _, err := r.devices.GetByDeviceID(ctx, deviceID); err == nil {
			deviceID = ""
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lookup device %s: %w", deviceID, err)
		}
	}
	if deviceID == "" {
		deviceID = fmt.Sprintf("%s-%s", in.DeviceType, uuid.New())
	}

	secret, hash, err := newDeviceSecret()
	if err != nil {
		return nil, err
	}
	d := &Device{
		DeviceID:   deviceID,
		UserID:     userID,
		DeviceType: in.DeviceType,
		DeviceName: in.DeviceName,
		OSVersion:  in.OSVersion,
		SecretHash: hash,
		IsActive:   true,
	}
	if err := r.devices.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}
	r.logger.Info().Str("device_id", d.DeviceID).Str("user_id", userID.String()).Msg("device registered")
	return &RegisteredDevice{Device: d, Secret: secret}, nil
}

// reRegister keeps the device identity and rotates its secret. The device
// is reactivated so a wiped client can resume syncing.
func (r *Registry) reRegister(ctx context.Context, d *Device, in RegisterDeviceInput) (*RegisteredDevice, error) {
	secret, hash, err := newDeviceSecret()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	d.DeviceType = in.DeviceType
	d.DeviceName = in.DeviceName
	d.OSVersion = in.OSVersion
	d.SecretHash = hash
	d.IsActive = true
	d.LastSync = &now
	if err := r.devices.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("update device %s: %w", d.DeviceID, err)
	}
	r.logger.Info().Str("device_id", d.DeviceID).Msg("device re-registered, secret rotated")
	return &RegisteredDevice{Device: d, Secret: secret}, nil
}

// Get returns the device, enforcing ownership unless the caller is an admin.
func (r *Registry) Get(ctx context.Context, deviceID string, callerID uuid.UUID, isAdmin bool) (*Device, error) {
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
	return d, nil
}

func (r *Registry) SetActive(ctx context.Context, deviceID string, callerID uuid.UUID, isAdmin, active bool) (*Device, error) {
	d, err := r.Get(ctx, deviceID, callerID, isAdmin)
	if err != nil {
		return nil, err
	}
	if err := r.devices.SetActive(ctx, deviceID, active); err != nil {
		return nil, fmt.Errorf("set device %s active=%t: %w", deviceID, active, err)
	}
	d.IsActive = active
	r.logger.Info().Str("device_id", deviceID).Bool("active", active).Msg("device activation changed")
	return d, nil
}

func (r *Registry) Delete(ctx context.Context, deviceID string, callerID uuid.UUID, isAdmin bool) error {
	if _, err := r.Get(ctx, deviceID, callerID, isAdmin); err != nil {
		return err
	}
	if err := r.devices.Delete(ctx, deviceID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("delete device %s: %w", deviceID, err)
	}
	r.logger.Info().Str("device_id", deviceID).Msg("device deleted")
	return nil
}

func (r *Registry) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Device, error) {
	return r.devices.ListByUser(ctx, userID)
}

func (r *Registry) Statistics(ctx context.Context) (*DeviceStatistics, error) {
	return r.devices.Statistics(ctx)
}
