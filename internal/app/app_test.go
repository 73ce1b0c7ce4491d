package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keyxmakerx/adpilot/internal/config"
	"github.com/keyxmakerx/adpilot/internal/docstore"
	"github.com/keyxmakerx/adpilot/internal/events"
	"github.com/keyxmakerx/adpilot/internal/generator"
	"github.com/keyxmakerx/adpilot/internal/metaads"
)

const testKey = "test-api-key"

// newTestApp wires the full route table over the memory store. graph
// serves the ad platform API.
func newTestApp(t *testing.T, graph http.HandlerFunc) *App {
	t.Helper()
	srv := httptest.NewServer(graph)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Env:     "development",
		BaseURL: "http://localhost:8080",
		Store:   config.StoreConfig{Backend: config.BackendMemory, Root: "tenants/ads"},
		Redis:   config.RedisConfig{Disabled: true},
		Auth:    config.AuthConfig{APIKey: testKey},
		AI:      config.AIConfig{Provider: config.ProviderOpenAI},
	}
	provider, err := generator.New(context.Background(), cfg.AI)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	a := New(cfg, Deps{
		Store: docstore.NewMemory(),
		Meta: metaads.NewClient(metaads.Config{
			GraphURL:   srv.URL,
			APIVersion: "v20.0",
			Retry:      metaads.RetryPolicy{MaxAttempts: 1, Initial: time.Millisecond, Max: time.Millisecond},
		}),
		Content: provider,
		Events:  events.Noop{},
	})
	if err := a.RegisterRoutes(); err != nil {
		t.Fatalf("routes: %v", err)
	}
	return a
}

func do(a *App, method, path, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("X-API-Key", testKey)
	}
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return out
}

func register(t *testing.T, a *App) {
	t.Helper()
	rec := do(a, http.MethodPost, "/api/v1/automations",
		`{"automation_id":"shop-1","ad_account_id":"42","access_token":"tok","app_id":"1234567890","app_secret":"sec"}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {})
	rec := do(a, http.MethodGet, "/healthz", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["status"] != "ok" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestAPI_RequiresKey(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {})
	rec := do(a, http.MethodGet, "/api/v1/automations", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["type"] != "unauthorized" || body["message"] == "" {
		t.Errorf("unexpected error body %v", body)
	}
}

func TestAPI_ValidationNamesJSONField(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {})
	rec := do(a, http.MethodPost, "/api/v1/automations", `{"automation_id":"shop-1"}`, true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	msg, _ := decode(t, rec)["message"].(string)
	if !strings.Contains(msg, "access_token is required") {
		t.Errorf("expected json field name in message, got %q", msg)
	}
}

func TestAPI_UnknownRouteIsJSON(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {})
	rec := do(a, http.MethodGet, "/nowhere", "", false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if decode(t, rec)["type"] != "http_error" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestAPI_UnknownAutomationIs404(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {})
	rec := do(a, http.MethodGet, "/api/v1/automations/ghost", "", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAPI_OptimizeDryRun(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v20.0/cmp-1/insights" {
			t.Errorf("unexpected platform call %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[{"ctr":"0.4","cpc":"3.5"}]}`))
	})
	register(t, a)

	rec := do(a, http.MethodPost, "/api/v1/optimize?use_ai=false",
		`{"automation_id":"shop-1","campaign_id":"cmp-1","dry_run":true,
		  "rules":[{"metric":"ctr","condition":"less_than","threshold":1,"action":"pause"}]}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["success"] != true || body["dry_run"] != true {
		t.Errorf("unexpected result %v", body)
	}
	rules, _ := body["rules_evaluated"].([]any)
	if len(rules) != 1 || rules[0].(map[string]any)["triggered"] != true {
		t.Errorf("expected the rule to trigger, got %v", rules)
	}

	rec = do(a, http.MethodGet, "/api/v1/analytics/optimizer-actions?automation_id=shop-1", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"dry_run":true`) {
		t.Errorf("expected a dry-run action record, got %s", rec.Body.String())
	}
}

func TestAPI_ContentNotConfigured(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {})
	rec := do(a, http.MethodPost, "/api/v1/content/copy", `{"context":{"product_name":"Acme","product_description":"Coffee","target_audience":"Commuters"}}`, true)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAPI_Presets(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {})
	rec := do(a, http.MethodGet, "/api/v1/optimize/presets/unknown", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if decode(t, rec)["name"] != "balanced" {
		t.Errorf("expected balanced fallback, got %s", rec.Body.String())
	}
}
