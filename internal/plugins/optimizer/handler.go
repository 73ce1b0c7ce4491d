package optimizer

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/adpilot/internal/apperror"
)

// Handler serves the optimizer endpoints.
type Handler struct {
	service OptimizerService
}

// NewHandler creates a new optimizer handler.
func NewHandler(service OptimizerService) *Handler {
	return &Handler{service: service}
}

// Optimize runs a rule set (POST /optimize?use_ai=). use_ai defaults to true.
func (h *Handler) Optimize(c echo.Context) error {
	var req OptimizeRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	useAI := true
	if raw := c.QueryParam("use_ai"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return apperror.NewValidation("use_ai must be true or false")
		}
		useAI = v
	}

	res, err := h.service.Optimize(c.Request().Context(), req, useAI)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// ListPresets returns every built-in rule set (GET /optimize/presets).
func (h *Handler) ListPresets(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"default": DefaultPreset,
		"presets": Presets(),
	})
}

// GetPreset returns one rule set (GET /optimize/presets/:name). Unknown
// names resolve to the default set.
func (h *Handler) GetPreset(c echo.Context) error {
	name, rules := Preset(c.Param("name"))
	return c.JSON(http.StatusOK, map[string]any{
		"name":  name,
		"rules": rules,
	})
}
