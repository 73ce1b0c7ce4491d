package automations

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the registry endpoints on an authenticated API group.
func RegisterRoutes(g *echo.Group, h *Handler) {
	g.POST("/automations", h.Register)
	g.GET("/automations", h.List)
	g.GET("/automations/:id", h.Get)
	g.DELETE("/automations/:id", h.Delete)
	g.GET("/automations/:id/logs", h.Logs)
}
