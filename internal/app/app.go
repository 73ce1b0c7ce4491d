// Package app is the application bootstrap and dependency injection root.
// It holds the shared infrastructure (document store, Redis client, remote
// clients, Echo instance) and wires together all plugins.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/adpilot/internal/apperror"
	"github.com/keyxmakerx/adpilot/internal/config"
	"github.com/keyxmakerx/adpilot/internal/docstore"
	"github.com/keyxmakerx/adpilot/internal/events"
	"github.com/keyxmakerx/adpilot/internal/generator"
	"github.com/keyxmakerx/adpilot/internal/imagestore"
	"github.com/keyxmakerx/adpilot/internal/lock"
	"github.com/keyxmakerx/adpilot/internal/metaads"
	"github.com/keyxmakerx/adpilot/internal/middleware"
	"github.com/keyxmakerx/adpilot/internal/plugins/abtests"
)

// Deps are the shared dependencies built in main.go.
type Deps struct {
	// Store is the document store every plugin persists to.
	Store docstore.Store

	// Redis is nil when Redis is disabled. Locks and rate limiting are then
	// skipped.
	Redis *redis.Client

	// Meta is the ad platform client.
	Meta *metaads.Client

	// Content is the generative content provider.
	Content generator.Provider

	// Images is nil when object storage is not configured.
	Images *imagestore.Store

	// Events receives write-once analytics records.
	Events events.Publisher
}

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	Deps

	// Locks guards evaluations and optimize calls across replicas. Nil
	// without Redis.
	Locks *lock.Locker

	// Sweeper evaluates due A/B tests in the background. Set by
	// RegisterRoutes.
	Sweeper *abtests.Sweeper

	// Echo is the HTTP server instance.
	Echo *echo.Echo
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, deps Deps) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Forwarding headers are honored only from trusted proxies; rate
	// limiting keys on c.RealIP().
	proxies := cfg.TrustedProxies
	if len(proxies) == 0 {
		proxies = middleware.DefaultTrustedProxies
	}
	middleware.TrustedProxies(e, proxies)

	e.Validator = NewValidator()

	app := &App{
		Config: cfg,
		Deps:   deps,
		Locks:  lock.New(deps.Redis, cfg.Redis.LockTTL),
		Echo:   e,
	}

	// Register global middleware in order of execution.
	app.setupMiddleware()

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	// Request logging -- log every request with method, path, status, latency.
	a.Echo.Use(middleware.RequestLogger())

	a.Echo.Use(middleware.Metrics())

	// Security headers -- CSP, X-Frame-Options, X-Content-Type-Options, etc.
	a.Echo.Use(middleware.SecurityHeaders())

	// CORS -- only relevant for browser-based operator dashboards.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   []string{a.Config.BaseURL},
		AllowCredentials: true,
	}))
}

// errorHandler is the custom Echo error handler. Every error becomes a JSON
// body of the form {"error": <status text>, "type": ..., "message": ...}.
// Only AppError messages reach the client; anything else is logged and
// reported as a generic internal error.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	errType := "internal_error"
	message := apperror.SafeMessage(err)

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		errType = appErr.Type

		// Log server-side failures with the underlying cause.
		if appErr.Internal != nil && code >= http.StatusInternalServerError {
			slog.Error("request failed",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}

	case errors.As(err, &echoErr):
		// Echo's built-in HTTP errors (e.g., 404 from router, 413 body limit).
		code = echoErr.Code
		errType = "http_error"
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(code)
		}

	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(code)
		return
	}
	if werr := c.JSON(code, map[string]string{
		"error":   http.StatusText(code),
		"type":    errType,
		"message": message,
	}); werr != nil {
		slog.Warn("writing error response", slog.Any("error", werr))
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting adpilot server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
