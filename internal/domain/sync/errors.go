package sync

import "errors"

var (
	// ErrNotFound covers devices, sessions, records and entities that do
	// not exist or are not visible to the caller.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when a caller touches a device it does not own.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCredentials is returned when the device secret does not match.
	ErrInvalidCredentials = errors.New("invalid device credentials")

	// ErrInactiveAccount is returned when the device or its owning user
	// account has been deactivated.
	ErrInactiveAccount = errors.New("device or user account is inactive")

	// ErrInvalidSyncToken is returned when a sync token does not match the
	// device's current session.
	ErrInvalidSyncToken = errors.New("invalid sync token")

	// ErrUnsupportedEntityType is returned for entity types with no
	// registered store.
	ErrUnsupportedEntityType = errors.New("unsupported entity type")

	// ErrUnsupportedOperation is returned for change operations other than
	// create, update and delete.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrUnsupportedResolution is returned for conflict resolutions other
	// than local, server and merged.
	ErrUnsupportedResolution = errors.New("unsupported conflict resolution")

	// ErrConflict marks an update whose server copy changed after the
	// device last saw it.
	ErrConflict = errors.New("sync conflict")

	// ErrTokenExpired is returned when a device token is past its expiry.
	ErrTokenExpired = errors.New("device token expired")

	// ErrInvalidTokenType is returned when a JWT without the device type
	// claim is presented on a sync endpoint.
	ErrInvalidTokenType = errors.New("invalid token type")
)
