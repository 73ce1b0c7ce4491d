package optimizer

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the optimizer endpoints on an authenticated API group.
func RegisterRoutes(g *echo.Group, h *Handler) {
	o := g.Group("/optimize")
	o.POST("", h.Optimize)
	o.GET("/presets", h.ListPresets)
	o.GET("/presets/:name", h.GetPreset)
}
