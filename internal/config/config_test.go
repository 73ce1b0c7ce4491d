package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Meta.APIVersion != "v20.0" {
		t.Errorf("expected v20.0, got %q", cfg.Meta.APIVersion)
	}
	if cfg.Meta.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", cfg.Meta.MaxAttempts)
	}
	if cfg.Meta.RetryInitial != 2*time.Second || cfg.Meta.RetryMax != 30*time.Second {
		t.Errorf("unexpected retry bounds: %v / %v", cfg.Meta.RetryInitial, cfg.Meta.RetryMax)
	}
	if cfg.AI.TextModel != "gpt-4o" || cfg.AI.ImageModel != "dall-e-3" {
		t.Errorf("unexpected models: %q / %q", cfg.AI.TextModel, cfg.AI.ImageModel)
	}
	if cfg.Store.Collection("automations") != "tenants/ads/automations" {
		t.Errorf("unexpected collection path: %q", cfg.Store.Collection("automations"))
	}
}

func TestLoad_ProductionRequiresAPIKey(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("API_SECRET_KEY", "")
	t.Setenv("API_KEY_HASH", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without API key in production")
	}
}

func TestLoad_ProductionShortKey(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("API_SECRET_KEY", "short")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "32 characters") {
		t.Fatalf("expected short key error, got %v", err)
	}
}

func TestLoad_ProductionRejectsMemoryStore(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("API_SECRET_KEY", strings.Repeat("k", 40))
	t.Setenv("DOCSTORE_BACKEND", "memory")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for memory backend in production")
	}
}

func TestLoad_OddRootRejected(t *testing.T) {
	t.Setenv("DOCSTORE_ROOT", "tenants/ads/automations")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for odd-segment root")
	}
}

func TestLoad_FirestoreNeedsProject(t *testing.T) {
	t.Setenv("DOCSTORE_BACKEND", "firestore")
	t.Setenv("FIRESTORE_PROJECT_ID", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without project id")
	}
}

func TestLoad_KafkaBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}
}

func TestDSN_AppendsDefaultPort(t *testing.T) {
	d := DatabaseConfig{Host: "mariadb", User: "u", Password: "p@ss", Name: "adpilot"}
	dsn := d.DSN()
	if !strings.Contains(dsn, "tcp(mariadb:3306)") {
		t.Errorf("expected default port in DSN, got %q", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("expected parseTime in DSN, got %q", dsn)
	}
}

func TestAIConfig_Credential(t *testing.T) {
	a := AIConfig{Provider: ProviderGemini, GeminiKey: "g", OpenAIKey: "o"}
	if a.Credential() != "g" {
		t.Errorf("expected gemini key, got %q", a.Credential())
	}
	a.Provider = ProviderOpenAI
	if a.Credential() != "o" {
		t.Errorf("expected openai key, got %q", a.Credential())
	}
}

func TestLoad_TrustedProxies(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", " 10.1.0.0/16, ,192.168.5.0/24")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(cfg.TrustedProxies, "|") != "10.1.0.0/16|192.168.5.0/24" {
		t.Errorf("unexpected proxies %q", cfg.TrustedProxies)
	}
}
