package campaigns

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the orchestrator endpoints on an authenticated API
// group. Campaign-scoped routes take the owning automation as a query
// parameter.
func RegisterRoutes(g *echo.Group, h *Handler) {
	g.POST("/campaigns", h.CreateCampaign)
	g.GET("/automations/:id/campaigns", h.ListCampaigns)
	g.POST("/adsets", h.CreateAdSet)
	g.POST("/ads", h.CreateAd)
	g.POST("/ads/full", h.CreateFullAd)

	cg := g.Group("/campaigns/:cid")
	cg.POST("/pause", h.Pause)
	cg.POST("/activate", h.Activate)
	cg.GET("/insights", h.Insights)
	cg.PATCH("/budget", h.UpdateBudget)
}
