package abtests

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the A/B test endpoints on an authenticated API group.
func RegisterRoutes(g *echo.Group, h *Handler) {
	t := g.Group("/abtests")
	t.POST("", h.Create)
	t.POST("/generate", h.Generate)
	t.GET("", h.List)
	t.GET("/:id", h.Get)
	t.POST("/:id/evaluate", h.Evaluate)
}
