package analytics

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/adpilot/internal/apperror"
)

// Handler serves the analytics endpoints.
type Handler struct {
	service AnalyticsService
}

// NewHandler creates a new analytics handler.
func NewHandler(service AnalyticsService) *Handler {
	return &Handler{service: service}
}

// filterFromQuery reads the common list parameters.
func filterFromQuery(c echo.Context) (Filter, error) {
	f := Filter{
		AutomationID:   c.QueryParam("automation_id"),
		CampaignID:     c.QueryParam("campaign_id"),
		GenerationType: c.QueryParam("generation_type"),
		ErrorType:      c.QueryParam("error_type"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return f, apperror.NewValidation("limit must be a positive integer")
		}
		f.Limit = n
	}
	return f, nil
}

func listResponse[T any](c echo.Context, items []T) error {
	return c.JSON(http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

// Summary returns aggregate counts (GET /analytics/summary).
func (h *Handler) Summary(c echo.Context) error {
	sum, err := h.service.Summary(c.Request().Context(), c.QueryParam("automation_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}

// AIHistory lists generations (GET /analytics/ai-history).
func (h *Handler) AIHistory(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	items, err := h.service.ListAIGenerations(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return listResponse(c, items)
}

// Feedback attaches real metrics to a generation (POST /analytics/ai-feedback/:id).
func (h *Handler) Feedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	id := c.Param("id")
	if err := h.service.AttachFeedback(c.Request().Context(), id, req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"doc_id": id, "updated": true})
}

// ABResults lists A/B outcomes (GET /analytics/ab-results).
func (h *Handler) ABResults(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	items, err := h.service.ListABResults(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return listResponse(c, items)
}

// OptimizerActions lists triggered rules (GET /analytics/optimizer-actions).
func (h *Handler) OptimizerActions(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	items, err := h.service.ListOptimizerActions(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return listResponse(c, items)
}

// Errors lists recorded remote failures (GET /analytics/errors).
func (h *Handler) Errors(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	items, err := h.service.ListErrors(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return listResponse(c, items)
}

// MetricsHistory lists a campaign's snapshots (GET /analytics/metrics-history).
func (h *Handler) MetricsHistory(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	items, err := h.service.MetricsHistory(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return listResponse(c, items)
}

// SaveSnapshot stores a manual metrics snapshot (POST /analytics/metrics-snapshot).
func (h *Handler) SaveSnapshot(c echo.Context) error {
	var snap MetricsSnapshot
	if err := c.Bind(&snap); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if err := c.Validate(&snap); err != nil {
		return err
	}
	id, err := h.service.RecordMetricsSnapshot(c.Request().Context(), &snap)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"doc_id": id})
}
