package content

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the content endpoints on an authenticated API group.
func RegisterRoutes(g *echo.Group, h *Handler) {
	c := g.Group("/content")
	c.POST("/copy", h.Copy)
	c.POST("/audience", h.Audience)
	c.POST("/image", h.Image)
	c.POST("/variants", h.Variants)
	c.POST("/analysis", h.Analysis)
}
