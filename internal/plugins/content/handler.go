package content

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/adpilot/internal/apperror"
)

// Handler serves the content generation endpoints.
type Handler struct {
	service ContentService
}

// NewHandler creates a new content handler.
func NewHandler(service ContentService) *Handler {
	return &Handler{service: service}
}

func bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	return c.Validate(req)
}

// Copy generates ad copy (POST /content/copy).
func (h *Handler) Copy(c echo.Context) error {
	var req GenerateRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	res, err := h.service.GenerateCopy(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Audience generates a targeting spec (POST /content/audience).
func (h *Handler) Audience(c echo.Context) error {
	var req GenerateRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	res, err := h.service.GenerateAudience(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Image generates an image (POST /content/image).
func (h *Handler) Image(c echo.Context) error {
	var req ImageRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	res, err := h.service.GenerateImage(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Variants generates A/B copy alternatives (POST /content/variants).
func (h *Handler) Variants(c echo.Context) error {
	var req VariantsRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	res, err := h.service.GenerateVariants(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Analysis reads campaign metrics (POST /content/analysis).
func (h *Handler) Analysis(c echo.Context) error {
	var req AnalysisRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	res, err := h.service.AnalyzeMetrics(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
