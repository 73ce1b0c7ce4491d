package automations

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/adpilot/internal/apperror"
)

// Handler serves the automation registry API. Credentials go in on register
// and never come back out.
type Handler struct {
	registry Registry
}

// NewHandler creates a new automation handler.
func NewHandler(registry Registry) *Handler {
	return &Handler{registry: registry}
}

// Register upserts a tenant (POST /automations).
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	a, err := h.registry.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a.Redacted())
}

// List returns automations, optionally filtered by status (GET /automations).
func (h *Handler) List(c echo.Context) error {
	list, err := h.registry.List(c.Request().Context(), c.QueryParam("status"))
	if err != nil {
		return err
	}

	views := make([]View, 0, len(list))
	for i := range list {
		views = append(views, list[i].Redacted())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"automations": views,
		"total":       len(views),
	})
}

// Get returns one automation without secrets (GET /automations/:id).
func (h *Handler) Get(c echo.Context) error {
	a, err := h.registry.Require(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a.Redacted())
}

// Delete removes an automation (DELETE /automations/:id).
func (h *Handler) Delete(c echo.Context) error {
	if err := h.registry.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Logs returns the audit log oldest first (GET /automations/:id/logs).
func (h *Handler) Logs(c echo.Context) error {
	id := c.Param("id")
	entries, err := h.registry.AuditLog(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"automation_id": id,
		"logs":          entries,
		"total":         len(entries),
	})
}
