package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyxmakerx/adpilot/internal/middleware"
	"github.com/keyxmakerx/adpilot/internal/plugins/abtests"
	"github.com/keyxmakerx/adpilot/internal/plugins/analytics"
	"github.com/keyxmakerx/adpilot/internal/plugins/automations"
	"github.com/keyxmakerx/adpilot/internal/plugins/campaigns"
	"github.com/keyxmakerx/adpilot/internal/plugins/content"
	"github.com/keyxmakerx/adpilot/internal/plugins/optimizer"
)

// RegisterRoutes sets up all application routes. It registers operational
// routes directly and delegates to each plugin's route registration function.
//
// This is the single place where all routes are aggregated. When a new
// plugin is added, its routes are registered here.
func (a *App) RegisterRoutes() error {
	e := a.Echo
	store := a.Store
	col := a.Config.Store.Collection

	// --- Operational Routes (no auth required) ---

	e.GET("/healthz", a.healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// --- API Routes ---

	api := e.Group("/api/v1")
	if a.Config.Auth.Enabled() {
		hash, err := a.apiKeyHash()
		if err != nil {
			return err
		}
		api.Use(middleware.RequireAPIKey(hash))
	} else {
		slog.Warn("API key not configured, /api/v1 is open (development only)")
	}
	api.Use(middleware.RateLimit(a.Redis, a.Config.Auth.RateLimitRequests, a.Config.Auth.RateLimitWindow))

	// analytics plugin: write-once records, also the registry's error sink.
	analyticsService := analytics.NewAnalyticsService(
		analytics.NewAnalyticsRepository(store, col("analytics")),
		a.Events,
	)
	analytics.RegisterRoutes(api, analytics.NewHandler(analyticsService))

	// automations plugin: tenant registry and audit log.
	registry := automations.NewRegistry(
		automations.NewAutomationRepository(store, col("automations")),
		analyticsService,
	)
	automations.RegisterRoutes(api, automations.NewHandler(registry))

	// campaigns plugin: orchestrator over the ad platform.
	campaignService := campaigns.NewCampaignService(registry, a.Meta, a.Content, a.Images, analyticsService)
	campaigns.RegisterRoutes(api, campaigns.NewHandler(campaignService))

	// content plugin: direct access to the content provider.
	contentService := content.NewContentService(a.Content, a.Images, analyticsService)
	content.RegisterRoutes(api, content.NewHandler(contentService))

	// abtests plugin: variant tests and the due-test sweeper.
	abTestService := abtests.NewABTestService(
		abtests.NewTestRepository(store, col("ab_tests")),
		registry, a.Meta, a.Content, a.Locks, analyticsService,
	)
	abtests.RegisterRoutes(api, abtests.NewHandler(abTestService))
	a.Sweeper = abtests.NewSweeper(abTestService, a.Config.ABTest.SweepInterval)

	// optimizer plugin: rule evaluation and presets.
	optimizerService := optimizer.NewOptimizerService(registry, a.Meta, a.Content, a.Locks, analyticsService)
	optimizer.RegisterRoutes(api, optimizer.NewHandler(optimizerService))

	return nil
}

// apiKeyHash returns the configured bcrypt hash, hashing the plaintext key
// when only that is set.
func (a *App) apiKeyHash() ([]byte, error) {
	if a.Config.Auth.APIKeyHash != "" {
		return []byte(a.Config.Auth.APIKeyHash), nil
	}
	return middleware.HashAPIKey(a.Config.Auth.APIKey)
}

// healthz pings the document store and, when configured, Redis.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"store": "ok"}
	healthy := true

	if err := a.Store.Ping(ctx); err != nil {
		slog.Warn("health check: store unreachable", slog.Any("error", err))
		checks["store"] = "unreachable"
		healthy = false
	}
	if a.Redis != nil {
		checks["redis"] = "ok"
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			slog.Warn("health check: redis unreachable", slog.Any("error", err))
			checks["redis"] = "unreachable"
			healthy = false
		}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{"status": status, "checks": checks})
}
