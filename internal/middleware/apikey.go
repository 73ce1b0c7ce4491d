package middleware

import (
	"crypto/sha256"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/keyxmakerx/adpilot/internal/apperror"
)

// APIKeyHeader is the preferred header for the shared API key. A
// "Bearer <key>" Authorization header is accepted as well.
const APIKeyHeader = "X-API-Key"

// HashAPIKey bcrypt-hashes a plaintext key. Used at startup when only
// API_SECRET_KEY is configured.
func HashAPIKey(key string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
}

// RequireAPIKey returns middleware that rejects requests whose key does not
// match hash. Verified keys are remembered by SHA-256 digest so bcrypt runs
// once per distinct key rather than once per request.
func RequireAPIKey(hash []byte) echo.MiddlewareFunc {
	var verified sync.Map

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := extractAPIKey(c)
			if key == "" {
				return apperror.NewUnauthorized("API key required")
			}

			digest := sha256.Sum256([]byte(key))
			if _, ok := verified.Load(digest); ok {
				return next(c)
			}
			if err := bcrypt.CompareHashAndPassword(hash, []byte(key)); err != nil {
				return apperror.NewUnauthorized("invalid API key")
			}
			verified.Store(digest, struct{}{})
			return next(c)
		}
	}
}

// extractAPIKey reads the key from X-API-Key or a Bearer Authorization header.
func extractAPIKey(c echo.Context) string {
	req := c.Request()
	if key := strings.TrimSpace(req.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	auth := req.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
