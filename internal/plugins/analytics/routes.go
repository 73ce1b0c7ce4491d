package analytics

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the analytics endpoints on an authenticated API group.
func RegisterRoutes(g *echo.Group, h *Handler) {
	a := g.Group("/analytics")
	a.GET("/summary", h.Summary)
	a.GET("/ai-history", h.AIHistory)
	a.POST("/ai-feedback/:id", h.Feedback)
	a.GET("/ab-results", h.ABResults)
	a.GET("/optimizer-actions", h.OptimizerActions)
	a.GET("/errors", h.Errors)
	a.GET("/metrics-history", h.MetricsHistory)
	a.POST("/metrics-snapshot", h.SaveSnapshot)
}
