// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Document store backends selectable via DOCSTORE_BACKEND.
const (
	BackendMariaDB   = "mariadb"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Content provider backends selectable via AI_PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used for CORS.
	BaseURL string

	// TrustedProxies lists the CIDRs whose forwarding headers are honored.
	// Empty means the private ranges in middleware.DefaultTrustedProxies.
	TrustedProxies []string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// Store selects and locates the document store.
	Store StoreConfig

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Firestore holds Firestore connection settings.
	Firestore FirestoreConfig

	// Auth holds API key and rate limit settings.
	Auth AuthConfig

	// Meta holds ad platform client settings.
	Meta MetaConfig

	// AI holds content provider settings.
	AI AIConfig

	// Storage holds object storage settings for archived images.
	Storage StorageConfig

	// Kafka holds event publishing settings.
	Kafka KafkaConfig

	// ABTest holds A/B engine scheduling settings.
	ABTest ABTestConfig
}

// StoreConfig selects the document store backend and the root document
// under which every collection lives.
type StoreConfig struct {
	// Backend is one of "mariadb", "firestore", "memory".
	Backend string

	// Root is an even-segment document path (e.g. "tenants/ads"). Collections
	// are addressed as Root + "/" + name.
	Root string

	// MigrationsPath is the directory holding SQL migrations for MariaDB.
	MigrationsPath string
}

// Collection returns the full path of a named collection under Root.
func (s StoreConfig) Collection(name string) string {
	if s.Root == "" {
		return name
	}
	return s.Root + "/" + name
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently. If DATABASE_URL
// is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "adpilot").
	User string

	// Password is the MariaDB password (default: "adpilot").
	Password string

	// Name is the database name (default: "adpilot").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// Host/User/Password/Name fields using the driver's Config.FormatDSN()
// to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
// Allows users to set DB_HOST=mydb (gets :3306) or DB_HOST=mydb:3307 (as-is).
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string

	// Disabled runs the server without Redis: no distributed locks and no
	// rate limiting.
	Disabled bool

	// LockTTL bounds how long an evaluation or optimize lock may be held.
	LockTTL time.Duration
}

// FirestoreConfig holds Firestore connection parameters.
type FirestoreConfig struct {
	// ProjectID is the Google Cloud project hosting the database.
	ProjectID string

	// CredentialsFile is an optional service account JSON path. When empty,
	// application default credentials are used.
	CredentialsFile string
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	// APIKeyHash is a bcrypt hash of the shared API key.
	APIKeyHash string

	// APIKey is the plaintext shared API key. Hashed once at startup when
	// APIKeyHash is not provided.
	APIKey string

	// RateLimitRequests is the number of requests allowed per window per key.
	RateLimitRequests int

	// RateLimitWindow is the rate limit window length.
	RateLimitWindow time.Duration
}

// Enabled reports whether any API key is configured.
func (a AuthConfig) Enabled() bool {
	return a.APIKeyHash != "" || a.APIKey != ""
}

// MetaConfig holds ad platform client settings.
type MetaConfig struct {
	// APIVersion is the Graph API version segment (default: "v20.0").
	APIVersion string

	// GraphURL is the Graph API base URL without the version.
	GraphURL string

	// MaxAttempts is the total number of attempts per call, first included.
	MaxAttempts int

	// RetryInitial is the wait before the second attempt.
	RetryInitial time.Duration

	// RetryMax caps the wait between attempts.
	RetryMax time.Duration

	// CallsPerSecond paces outbound calls per app id. Zero disables pacing.
	CallsPerSecond float64

	// HTTPTimeout bounds a single HTTP round trip.
	HTTPTimeout time.Duration
}

// AIConfig holds content provider settings.
type AIConfig struct {
	// Provider is "openai" or "gemini".
	Provider string

	// OpenAIKey is the OpenAI API key. Empty disables the OpenAI backend.
	OpenAIKey string

	// OpenAIBaseURL overrides the OpenAI endpoint (for compatible gateways).
	OpenAIBaseURL string

	// TextModel is the chat model used for structured text generation.
	TextModel string

	// ImageModel is the image generation model.
	ImageModel string

	// GeminiKey is the Gemini API key. Empty disables the Gemini backend.
	GeminiKey string

	// GeminiModel is the Gemini model name.
	GeminiModel string
}

// Credential returns the key for the selected provider.
func (a AIConfig) Credential() string {
	if a.Provider == ProviderGemini {
		return a.GeminiKey
	}
	return a.OpenAIKey
}

// StorageConfig holds MinIO settings for archiving generated images.
type StorageConfig struct {
	// Endpoint is the MinIO host:port. Empty disables archiving.
	Endpoint string

	// AccessKey and SecretKey are the static credentials.
	AccessKey string
	SecretKey string

	// Bucket receives archived images (default: "ad-images").
	Bucket string

	// UseSSL selects https for the MinIO endpoint.
	UseSSL bool

	// URLTTL is the lifetime of presigned image URLs handed to the ad platform.
	URLTTL time.Duration
}

// Enabled reports whether image archiving is configured.
func (s StorageConfig) Enabled() bool {
	return s.Endpoint != ""
}

// KafkaConfig holds event publishing settings.
type KafkaConfig struct {
	// Brokers is the list of bootstrap brokers. Empty disables publishing.
	Brokers []string

	// TopicPrefix is prepended to every topic (default: "adpilot").
	TopicPrefix string
}

// ABTestConfig holds A/B engine scheduling settings.
type ABTestConfig struct {
	// SweepInterval is how often due tests are evaluated. Zero disables the sweeper.
	SweepInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		TrustedProxies: splitList(getEnv("TRUSTED_PROXIES", "")),

		Store: StoreConfig{
			Backend:        strings.ToLower(getEnv("DOCSTORE_BACKEND", BackendMariaDB)),
			Root:           strings.Trim(getEnv("DOCSTORE_ROOT", "tenants/ads"), "/"),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),
		},

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "adpilot"),
			Password:        getEnv("DB_PASSWORD", "adpilot"),
			Name:            getEnv("DB_NAME", "adpilot"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Disabled: getEnvBool("REDIS_DISABLED", false),
			LockTTL:  getEnvDuration("LOCK_TTL", 2*time.Minute),
		},

		Firestore: FirestoreConfig{
			ProjectID:       getEnv("FIRESTORE_PROJECT_ID", ""),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},

		Auth: AuthConfig{
			APIKeyHash:        getEnv("API_KEY_HASH", ""),
			APIKey:            getEnv("API_SECRET_KEY", ""),
			RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 120),
			RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},

		Meta: MetaConfig{
			APIVersion:     getEnv("META_API_VERSION", "v20.0"),
			GraphURL:       strings.TrimRight(getEnv("META_GRAPH_URL", "https://graph.facebook.com"), "/"),
			MaxAttempts:    getEnvInt("META_MAX_ATTEMPTS", 3),
			RetryInitial:   getEnvDuration("META_RETRY_INITIAL", 2*time.Second),
			RetryMax:       getEnvDuration("META_RETRY_MAX", 30*time.Second),
			CallsPerSecond: getEnvFloat("META_CALLS_PER_SECOND", 0),
			HTTPTimeout:    getEnvDuration("META_HTTP_TIMEOUT", 30*time.Second),
		},

		AI: AIConfig{
			Provider:      strings.ToLower(getEnv("AI_PROVIDER", ProviderOpenAI)),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			TextModel:     getEnv("AI_TEXT_MODEL", "gpt-4o"),
			ImageModel:    getEnv("AI_IMAGE_MODEL", "dall-e-3"),
			GeminiKey:     getEnv("GEMINI_API_KEY", ""),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		},

		Storage: StorageConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "ad-images"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			URLTTL:    getEnvDuration("MINIO_URL_TTL", 168*time.Hour),
		},

		Kafka: KafkaConfig{
			Brokers:     splitList(getEnv("KAFKA_BROKERS", "")),
			TopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", "adpilot"),
		},

		ABTest: ABTestConfig{
			SweepInterval: getEnvDuration("ABTEST_SWEEP_INTERVAL", 0),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks cross-field constraints. Production is stricter: it
// refuses to start without an API key or with the in-memory store.
func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendMariaDB, BackendFirestore, BackendMemory:
	default:
		return fmt.Errorf("DOCSTORE_BACKEND must be one of mariadb, firestore, memory (got %q)", c.Store.Backend)
	}

	if c.Store.Root != "" && len(strings.Split(c.Store.Root, "/"))%2 != 0 {
		return fmt.Errorf("DOCSTORE_ROOT must be a document path with an even number of segments (got %q)", c.Store.Root)
	}

	if c.Store.Backend == BackendFirestore && c.Firestore.ProjectID == "" {
		return fmt.Errorf("FIRESTORE_PROJECT_ID is required for the firestore backend")
	}

	switch c.AI.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("AI_PROVIDER must be openai or gemini (got %q)", c.AI.Provider)
	}

	if c.Meta.MaxAttempts < 1 {
		return fmt.Errorf("META_MAX_ATTEMPTS must be at least 1")
	}

	if !c.IsDevelopment() {
		if !c.Auth.Enabled() {
			return fmt.Errorf("API_KEY_HASH or API_SECRET_KEY is required in production")
		}
		if c.Auth.APIKeyHash == "" && len(c.Auth.APIKey) < 32 {
			return fmt.Errorf("API_SECRET_KEY must be at least 32 characters in production")
		}
		if c.Store.Backend == BackendMemory {
			return fmt.Errorf("the memory document store cannot be used in production")
		}
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvFloat reads a float env var or returns the default.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvBool reads a boolean env var ("1", "true", "yes") or returns the default.
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "720h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// splitList splits a comma-separated env value, dropping empty items.
func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
