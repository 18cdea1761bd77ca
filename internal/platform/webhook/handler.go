package webhook

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hmis/hmis/pkg/pagination"
)

// Handler exposes webhook endpoint management.
type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.RegisterEndpoint)
	g.GET("", h.ListEndpoints)
	g.GET("/:id", h.GetEndpoint)
	g.PUT("/:id", h.UpdateEndpoint)
	g.DELETE("/:id", h.DeleteEndpoint)
	g.POST("/:id/activate", h.ActivateEndpoint)
	g.POST("/:id/deactivate", h.DeactivateEndpoint)
	g.POST("/:id/test", h.TestEndpoint)
	g.GET("/:id/deliveries", h.ListDeliveries)
	g.POST("/deliveries/:id/retry", h.RetryDelivery)
}

func endpointID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid endpoint id")
	}
	return id, nil
}

func mapWebhookError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "webhook not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) RegisterEndpoint(c echo.Context) error {
	var in RegisterEndpointInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	reg, err := h.manager.Register(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, reg)
}

func (h *Handler) ListEndpoints(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.manager.List(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Endpoint{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) GetEndpoint(c echo.Context) error {
	id, err := endpointID(c)
	if err != nil {
		return err
	}
	ep, err := h.manager.Get(c.Request().Context(), id)
	if err != nil {
		return mapWebhookError(err)
	}
	return c.JSON(http.StatusOK, ep)
}

func (h *Handler) UpdateEndpoint(c echo.Context) error {
	id, err := endpointID(c)
	if err != nil {
		return err
	}
	var in UpdateEndpointInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ep, err := h.manager.Update(c.Request().Context(), id, in)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return mapWebhookError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, ep)
}

func (h *Handler) DeleteEndpoint(c echo.Context) error {
	id, err := endpointID(c)
	if err != nil {
		return err
	}
	if err := h.manager.Delete(c.Request().Context(), id); err != nil {
		return mapWebhookError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ActivateEndpoint(c echo.Context) error {
	return h.setActive(c, true)
}

func (h *Handler) DeactivateEndpoint(c echo.Context) error {
	return h.setActive(c, false)
}

func (h *Handler) setActive(c echo.Context, active bool) error {
	id, err := endpointID(c)
	if err != nil {
		return err
	}
	ep, err := h.manager.SetActive(c.Request().Context(), id, active)
	if err != nil {
		return mapWebhookError(err)
	}
	return c.JSON(http.StatusOK, ep)
}

func (h *Handler) TestEndpoint(c echo.Context) error {
	id, err := endpointID(c)
	if err != nil {
		return err
	}
	d, err := h.manager.Test(c.Request().Context(), id)
	if err != nil {
		return mapWebhookError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDeliveries(c echo.Context) error {
	id, err := endpointID(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	items, total, err := h.manager.DeliveryLog(c.Request().Context(), id, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Delivery{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) RetryDelivery(c echo.Context) error {
	id, err := endpointID(c)
	if err != nil {
		return err
	}
	d, err := h.manager.Retry(c.Request().Context(), id)
	if err != nil {
		return mapWebhookError(err)
	}
	return c.JSON(http.StatusOK, d)
}
