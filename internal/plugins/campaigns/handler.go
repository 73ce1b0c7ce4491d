package campaigns

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/adpilot/internal/apperror"
	"github.com/keyxmakerx/adpilot/internal/metaads"
)

// Handler serves the orchestrator endpoints. Handlers are thin: bind,
// validate, call the service, render JSON.
type Handler struct {
	service CampaignService
}

// NewHandler creates a new campaign handler.
func NewHandler(service CampaignService) *Handler {
	return &Handler{service: service}
}

// bindValid binds the body into req and runs struct validation.
func bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	return c.Validate(req)
}

// automationParam reads the required automation_id query parameter.
func automationParam(c echo.Context) (string, error) {
	id := strings.TrimSpace(c.QueryParam("automation_id"))
	if id == "" {
		return "", apperror.NewValidation("automation_id query parameter is required")
	}
	return id, nil
}

// CreateCampaign handles POST /campaigns.
func (h *Handler) CreateCampaign(c echo.Context) error {
	var req CreateCampaignRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	obj, err := h.service.CreateCampaign(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, obj)
}

// ListCampaigns handles GET /automations/:id/campaigns.
func (h *Handler) ListCampaigns(c echo.Context) error {
	list, err := h.service.ListCampaigns(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"campaigns": list,
		"total":     len(list),
	})
}

// CreateAdSet handles POST /adsets.
func (h *Handler) CreateAdSet(c echo.Context) error {
	var req CreateAdSetRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	obj, err := h.service.CreateAdSet(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, obj)
}

// CreateAd handles POST /ads.
func (h *Handler) CreateAd(c echo.Context) error {
	var req CreateAdRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	obj, err := h.service.CreateAd(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, obj)
}

// Pause handles POST /campaigns/:cid/pause.
func (h *Handler) Pause(c echo.Context) error {
	id, err := automationParam(c)
	if err != nil {
		return err
	}
	obj, err := h.service.PauseCampaign(c.Request().Context(), id, c.Param("cid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, obj)
}

// Activate handles POST /campaigns/:cid/activate.
func (h *Handler) Activate(c echo.Context) error {
	id, err := automationParam(c)
	if err != nil {
		return err
	}
	obj, err := h.service.ActivateCampaign(c.Request().Context(), id, c.Param("cid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, obj)
}

// Insights handles GET /campaigns/:cid/insights.
func (h *Handler) Insights(c echo.Context) error {
	id, err := automationParam(c)
	if err != nil {
		return err
	}
	q := InsightsQuery{DatePreset: c.QueryParam("date_preset")}
	if raw := c.QueryParam("fields"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				q.Fields = append(q.Fields, f)
			}
		}
	}

	insights, err := h.service.GetInsights(c.Request().Context(), id, c.Param("cid"), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"campaign_id": c.Param("cid"),
		"insights":    insights,
		"empty":       insights.Empty(),
	})
}

// UpdateBudget handles PATCH /campaigns/:cid/budget.
func (h *Handler) UpdateBudget(c echo.Context) error {
	id, err := automationParam(c)
	if err != nil {
		return err
	}
	var b metaads.BudgetUpdate
	if err := c.Bind(&b); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	obj, err := h.service.UpdateBudget(c.Request().Context(), id, c.Param("cid"), b)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, obj)
}

// CreateFullAd handles POST /ads/full.
func (h *Handler) CreateFullAd(c echo.Context) error {
	var req FullAdRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	res, err := h.service.CreateFullAd(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}
