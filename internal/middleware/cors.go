package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists origins permitted to call the API from a browser,
	// e.g. an operator dashboard. ["*"] allows any origin.
	AllowedOrigins []string

	// AllowCredentials lets browsers send cookies and auth headers. Ignored
	// with a wildcard origin.
	AllowCredentials bool
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
	}, ", ")

	corsHeaders = strings.Join([]string{
		"Content-Type",
		"Authorization",
		APIKeyHeader,
	}, ", ")

	corsExpose = strings.Join([]string{
		"X-RateLimit-Limit",
		"X-RateLimit-Remaining",
		"Retry-After",
	}, ", ")
)

// CORS returns middleware that handles Cross-Origin Resource Sharing headers.
// Requests without an Origin header, or from an origin not in the list, pass
// through untouched and the browser enforces the policy.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	allowAll := false
	originSet := make(map[string]bool)
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originSet[o] = true
	}

	// SECURITY: a wildcard origin with credentials would let any site make
	// authenticated calls.
	if allowAll && cfg.AllowCredentials {
		slog.Warn("CORS misconfiguration: wildcard origin with credentials, credentials disabled")
		cfg.AllowCredentials = false
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			origin := req.Header.Get("Origin")

			if origin == "" || !(allowAll || originSet[origin]) {
				return next(c)
			}

			res.Header().Set("Access-Control-Allow-Origin", origin)
			res.Header().Add("Vary", "Origin")
			if cfg.AllowCredentials {
				res.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if req.Method == http.MethodOptions {
				res.Header().Set("Access-Control-Allow-Methods", corsMethods)
				res.Header().Set("Access-Control-Allow-Headers", corsHeaders)
				res.Header().Set("Access-Control-Max-Age", "3600")
				return c.NoContent(http.StatusNoContent)
			}

			res.Header().Set("Access-Control-Expose-Headers", corsExpose)
			return next(c)
		}
	}
}
