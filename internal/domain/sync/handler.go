package sync

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hmis/hmis/internal/platform/auth"
	"github.com/hmis/hmis/pkg/pagination"
)

type Handler struct {
	registry     *Registry
	tokens       *TokenService
	orchestrator *Orchestrator
	resolver     *Resolver
}

func NewHandler(registry *Registry, tokens *TokenService, orchestrator *Orchestrator, resolver *Resolver) *Handler {
	return &Handler{registry: registry, tokens: tokens, orchestrator: orchestrator, resolver: resolver}
}

// RegisterRoutes mounts the device and sync endpoints. userAuth guards the
// device management routes; the sync routes accept either a user JWT or a
// device token via DeviceAuth. The token exchange endpoint is
// unauthenticated since the device secret is the credential.
func (h *Handler) RegisterRoutes(api *echo.Group, userAuth echo.MiddlewareFunc) {
	api.POST("/devices/token", h.IssueToken)

	devices := api.Group("/devices", userAuth)
	devices.POST("/register", h.RegisterDevice)
	devices.GET("", h.ListDevices)
	devices.GET("/statistics", h.DeviceStatistics, auth.RequireRole("admin", "supervisor"))
	devices.POST("/:deviceId/activate", h.ActivateDevice)
	devices.POST("/:deviceId/deactivate", h.DeactivateDevice)
	devices.DELETE("/:deviceId", h.DeleteDevice)

	sync := api.Group("/sync", h.DeviceAuth(userAuth))
	sync.GET("/:deviceId/status", h.SyncStatus)
	sync.GET("/:deviceId/history", h.SyncHistory)
	sync.POST("/:deviceId/initiate", h.InitiateSync)
	sync.POST("/:deviceId/upload", h.UploadChanges)
	sync.POST("/:deviceId/download", h.DownloadChanges)
	sync.POST("/:deviceId/complete", h.CompleteSync)
	sync.POST("/:deviceId/resolve-conflicts", h.ResolveConflicts)
	sync.POST("/:deviceId/reset", h.ResetSyncState)
}

// DeviceAuth validates a device token from the Authorization header and
// falls back to the user JWT middleware when the bearer token is not a
// device token. On success it stores the device id for the rate limiter.
func (h *Handler) DeviceAuth(userAuth echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return userAuth(next)(c)
			}
			tokenString := strings.TrimPrefix(header, "Bearer ")

			claims, d, err := h.tokens.Validate(c.Request().Context(), tokenString)
			if err != nil {
				if errors.Is(err, ErrInvalidTokenType) {
					// Not a device token; let the user JWT middleware decide.
					return userAuth(next)(c)
				}
				if errors.Is(err, ErrTokenExpired) {
					return echo.NewHTTPError(http.StatusUnauthorized, "device token expired")
				}
				if errors.Is(err, ErrInactiveAccount) {
					return echo.NewHTTPError(http.StatusUnauthorized, "device or account deactivated")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid device token")
			}

			// A device token only drives its own device's endpoints, even
			// when the caller owns several devices.
			if pathID := c.Param("deviceId"); pathID != "" && pathID != d.DeviceID {
				return echo.NewHTTPError(http.StatusForbidden, "token not issued for this device")
			}

			c.Set("device_id", d.DeviceID)
			ctx := context.WithValue(c.Request().Context(), auth.UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, auth.UserRolesKey, []string{})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func callerFromContext(c echo.Context) (uuid.UUID, bool, error) {
	ctx := c.Request().Context()
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, false, echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	isAdmin := false
	for _, role := range auth.RolesFromContext(ctx) {
		if role == "admin" {
			isAdmin = true
		}
	}
	return id, isAdmin, nil
}

func mapSyncError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "device not found")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "device belongs to another user")
	case errors.Is(err, ErrInvalidSyncToken):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"syncToken": "Invalid sync token"})
	case errors.Is(err, ErrUnsupportedEntityType):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInactiveAccount):
		return echo.NewHTTPError(http.StatusForbidden, "device or account deactivated")
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid device credentials")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// -- device management --

func (h *Handler) RegisterDevice(c echo.Context) error {
	callerID, _, err := callerFromContext(c)
	if err != nil {
		return err
	}
	var in RegisterDeviceInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	reg, err := h.registry.Register(c.Request().Context(), callerID, in)
	if err != nil {
		if errors.Is(err, ErrInactiveAccount) {
			return echo.NewHTTPError(http.StatusForbidden, "account deactivated")
		}
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"device": reg.Device,
		"secret": reg.Secret,
	})
}

func (h *Handler) IssueToken(c echo.Context) error {
	var in struct {
		DeviceID string `json:"deviceId"`
		Secret   string `json:"secret"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if in.DeviceID == "" || in.Secret == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "deviceId and secret are required")
	}
	token, d, err := h.tokens.Generate(c.Request().Context(), in.DeviceID, in.Secret)
	if err != nil {
		if errors.Is(err, ErrInactiveAccount) {
			return echo.NewHTTPError(http.StatusForbidden, "device or account deactivated")
		}
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid device credentials")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"token":    token,
		"deviceId": d.DeviceID,
	})
}

func (h *Handler) ListDevices(c echo.Context) error {
	callerID, _, err := callerFromContext(c)
	if err != nil {
		return err
	}
	items, err := h.registry.ListByUser(c.Request().Context(), callerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Device{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) DeviceStatistics(c echo.Context) error {
	stats, err := h.registry.Statistics(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) ActivateDevice(c echo.Context) error {
	return h.setActive(c, true)
}

func (h *Handler) DeactivateDevice(c echo.Context) error {
	return h.setActive(c, false)
}

func (h *Handler) setActive(c echo.Context, active bool) error {
	callerID, isAdmin, err := callerFromContext(c)
	if err != nil {
		return err
	}
	d, err := h.registry.SetActive(c.Request().Context(), c.Param("deviceId"), callerID, isAdmin, active)
	if err != nil {
		return mapSyncError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDevice(c echo.Context) error {
	callerID, isAdmin, err := callerFromContext(c)
	if err != nil {
		return err
	}
	if err := h.registry.Delete(c.Request().Context(), c.Param("deviceId"), callerID, isAdmin); err != nil {
		return mapSyncError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- sync cycle --

func (h *Handler) InitiateSync(c echo.Context) error {
	callerID, _, err := callerFromContext(c)
	if err != nil {
		return err
	}
	s, err := h.orchestrator.Initiate(c.Request().Context(), c.Param("deviceId"), callerID)
	if err != nil {
		return mapSyncError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessionId": s.ID,
		"syncToken": s.SyncToken,
		"startedAt": s.StartedAt,
	})
}

func (h *Handler) UploadChanges(c echo.Context) error {
	callerID, _, err := callerFromContext(c)
	if err != nil {
		return err
	}
	var in struct {
		SyncToken string   `json:"syncToken"`
		Changes   []Change `json:"changes"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	results, err := h.orchestrator.Upload(c.Request().Context(), c.Param("deviceId"), callerID, in.SyncToken, in.Changes)
	if err != nil {
		return mapSyncError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"results": results})
}

func (h *Handler) DownloadChanges(c echo.Context) error {
	callerID, _, err := callerFromContext(c)
	if err != nil {
		return err
	}
	var in struct {
		SyncToken         string     `json:"syncToken"`
		LastSyncTimestamp *time.Time `json:"lastSyncTimestamp,omitempty"`
		EntityTypes       []string   `json:"entityTypes,omitempty"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	delta, err := h.orchestrator.Download(c.Request().Context(), c.Param("deviceId"), callerID, in.SyncToken, in.LastSyncTimestamp, in.EntityTypes)
	if err != nil {
		return mapSyncError(err)
	}
	if delta == nil {
		delta = []DeltaEntry{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"changes": delta})
}

func (h *Handler) CompleteSync(c echo.Context) error {
	callerID, _, err := callerFromContext(c)
	if err != nil {
		return err
	}
	var in struct {
		SyncToken string `json:"syncToken"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.orchestrator.Complete(c.Request().Context(), c.Param("deviceId"), callerID, in.SyncToken)
	if err != nil {
		return mapSyncError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) SyncStatus(c echo.Context) error {
	callerID, isAdmin, err := callerFromContext(c)
	if err != nil {
		return err
	}
	status, err := h.orchestrator.Status(c.Request().Context(), c.Param("deviceId"), callerID, isAdmin)
	if err != nil {
		return mapSyncError(err)
	}
	return c.JSON(http.StatusOK, status)
}

func (h *Handler) SyncHistory(c echo.Context) error {
	callerID, isAdmin, err := callerFromContext(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.orchestrator.History(c.Request().Context(), c.Param("deviceId"), callerID, isAdmin, pg.Limit, pg.Offset)
	if err != nil {
		return mapSyncError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ResolveConflicts(c echo.Context) error {
	callerID, isAdmin, err := callerFromContext(c)
	if err != nil {
		return err
	}
	var in struct {
		Resolutions []ConflictResolution `json:"resolutions"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	results, err := h.resolver.Resolve(c.Request().Context(), c.Param("deviceId"), callerID, isAdmin, in.Resolutions)
	if err != nil {
		return mapSyncError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"results": results})
}

func (h *Handler) ResetSyncState(c echo.Context) error {
	callerID, isAdmin, err := callerFromContext(c)
	if err != nil {
		return err
	}
	records, sessions, err := h.orchestrator.Reset(c.Request().Context(), c.Param("deviceId"), callerID, isAdmin)
	if err != nil {
		return mapSyncError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"recordsDeleted":  records,
		"sessionsDeleted": sessions,
	})
}
