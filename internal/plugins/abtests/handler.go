package abtests

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/adpilot/internal/apperror"
)

// Handler serves the A/B test endpoints.
type Handler struct {
	service ABTestService
}

// NewHandler creates a new A/B test handler.
func NewHandler(service ABTestService) *Handler {
	return &Handler{service: service}
}

func bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	return c.Validate(req)
}

// Create creates a test from manual variants (POST /abtests).
func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	res, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// Generate creates a test from generated variants (POST /abtests/generate).
func (h *Handler) Generate(c echo.Context) error {
	var req GenerateRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	res, err := h.service.CreateWithAI(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// List returns an automation's tests (GET /abtests?automation_id=).
func (h *Handler) List(c echo.Context) error {
	tests, err := h.service.List(c.Request().Context(), c.QueryParam("automation_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"tests": tests,
		"total": len(tests),
	})
}

// Get returns one test (GET /abtests/:id).
func (h *Handler) Get(c echo.Context) error {
	t, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// Evaluate ranks a test's variants (POST /abtests/:id/evaluate?auto_apply=).
func (h *Handler) Evaluate(c echo.Context) error {
	var autoApply *bool
	if raw := c.QueryParam("auto_apply"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return apperror.NewValidation("auto_apply must be true or false")
		}
		autoApply = &v
	}
	ev, err := h.service.Evaluate(c.Request().Context(), c.Param("id"), autoApply)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ev)
}
