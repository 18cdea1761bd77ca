package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

const deviceTokenType = "device"

// DeviceClaims is the JWT payload for device tokens. Subject is the owning
// user ID; DeviceID scopes the token to one registered device.
type DeviceClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"type"`
	DeviceID  string `json:"deviceId"`
}

// TokenService issues and validates long-lived device tokens for offline
// clients.
type TokenService struct {
	devices    DeviceRepository
	users      UserDirectory
	signingKey []byte
	ttl        time.Duration
}

func NewTokenService(devices DeviceRepository, users UserDirectory, signingKey []byte, ttl time.Duration) *TokenService {
	return &TokenService{devices: devices, users: users, signingKey: signingKey, ttl: ttl}
}

// Generate authenticates the device secret and returns a signed token.
// Inactive devices and inactive owners are rejected.
func (t *TokenService) Generate(ctx context.Context, deviceID, secret string) (string, *Device, error) {
	d, err := t.devices.GetByDeviceID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("get device %s: %w", deviceID, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(d.SecretHash), []byte(secret)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if !d.IsActive {
		return "", nil, ErrInactiveAccount
	}
	owner, err := t.users.FindByID(ctx, d.UserID)
	if err != nil {
		return "", nil, fmt.Errorf("resolve device owner: %w", err)
	}
	if !owner.Active {
		return "", nil, ErrInactiveAccount
	}

	now := time.Now()
	claims := DeviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   d.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.NewString(),
		},
		TokenType: deviceTokenType,
		DeviceID:  d.DeviceID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.signingKey)
	if err != nil {
		return "", nil, fmt.Errorf("sign device token: %w", err)
	}
	if err := t.devices.TouchLastSync(ctx, d.DeviceID, now); err != nil {
		return "", nil, fmt.Errorf("touch last sync for %s: %w", d.DeviceID, err)
	}
	return signed, d, nil
}

// Validate parses the token and re-checks that both the device and its
// owner are still active, so deactivation takes effect immediately.
func (t *TokenService) Validate(ctx context.Context, tokenString string) (*DeviceClaims, *Device, error) {
	var claims DeviceClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(tok *jwt.Token) (interface{}, error) {
		return t.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, nil, ErrTokenExpired
		}
		return nil, nil, fmt.Errorf("parse device token: %w", err)
	}
	if !token.Valid {
		return nil, nil, ErrInvalidCredentials
	}
	if claims.TokenType != deviceTokenType {
		return nil, nil, ErrInvalidTokenType
	}

	d, err := t.devices.GetByDeviceID(ctx, claims.DeviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("get device %s: %w", claims.DeviceID, err)
	}
	if !d.IsActive {
		return nil, nil, ErrInactiveAccount
	}
	owner, err := t.users.FindByID(ctx, d.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve device owner: %w", err)
	}
	if !owner.Active {
		return nil, nil, ErrInactiveAccount
	}
	return &claims, d, nil
}
