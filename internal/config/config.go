package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	RedisPrefix        string
	CORSAllowedOrigins []string
	DBMigrateOnStart   bool
	DBMaxConns         int

	LogFormat         string
	LogLevel          string
	MetricsEnabled    bool
	MetricsNamespace  string
	TracingEnabled    bool
	TracingEndpoint   string
	TracingSampleRate float64
	// MetricsBucketsMS is a comma-separated list of HTTP latency buckets.
	MetricsBucketsMS string
	PprofEnabled     bool
	PprofUser        string
	PprofPassword    string

	TaxAppURL           string
	TaxAppSecret        string
	TaxAppTimeout       time.Duration
	TaxAppMaxAttempts   int
	TaxAppRetryBase     time.Duration
	TaxAppRetryJitter   float64
	TaxAppCacheTTL      time.Duration
	TaxFallbackFlatRate bool
	// TaxApps lists the tax apps selectable by app identifier from the
	// channel tax configuration.
	TaxApps []TaxAppEndpoint

	CircuitTaxMinRequests int
	CircuitTaxFailureRate float64
	CircuitTaxOpenFor     time.Duration

	CheckoutPricesTTL time.Duration
	LockTTL           time.Duration
	LockRetryBackoff  time.Duration
	LockMaxWait       time.Duration

	RefreshRateLimitMax    int
	RefreshRateLimitWindow time.Duration

	QueueConcurrency     int
	QueueRefreshDedupTTL time.Duration
	QueueMaxRetry        int
	QueueRetryBase       time.Duration
	QueueRetryJitter     float64
}

// TaxAppEndpoint addresses one registered tax app.
type TaxAppEndpoint struct {
	ID     string
	URL    string
	Secret string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		RedisPrefix:        valueOrDefault(k.String("REDIS_PREFIX"), "pricing"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		DBMigrateOnStart:   parseBool(k.String("DB_MIGRATE_ON_START")),
		DBMaxConns:         parseInt(k.String("DB_MAX_CONNS"), 10),

		LogFormat:         valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:          valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:    parseBoolDefault(k.String("OBS_METRICS_ENABLED"), true),
		MetricsNamespace:  valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "toko"),
		TracingEnabled:    parseBool(k.String("OBS_TRACING_ENABLED")),
		TracingEndpoint:   strings.TrimSpace(k.String("OBS_TRACING_ENDPOINT")),
		TracingSampleRate: parseFloat(k.String("OBS_TRACING_SAMPLE_RATIO"), 0.1),
		MetricsBucketsMS:  strings.TrimSpace(k.String("OBS_METRICS_BUCKETS_MS")),
		PprofEnabled:      parseBool(k.String("OBS_ENABLE_PPROF")),
		PprofUser:         strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPassword:     strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),

		TaxAppURL:           strings.TrimSpace(k.String("TAX_APP_URL")),
		TaxAppSecret:        k.String("TAX_APP_SECRET"),
		TaxAppTimeout:       parseDuration(k.String("TAX_APP_TIMEOUT"), "3s"),
		TaxAppMaxAttempts:   parseInt(k.String("TAX_APP_MAX_ATTEMPTS"), 3),
		TaxAppRetryBase:     parseDuration(k.String("TAX_APP_RETRY_BASE"), "100ms"),
		TaxAppRetryJitter:   parseFloat(k.String("TAX_APP_RETRY_JITTER"), 0.2),
		TaxAppCacheTTL:      parseDuration(k.String("TAX_APP_CACHE_TTL"), "5m"),
		TaxFallbackFlatRate: parseBool(k.String("TAX_FALLBACK_FLAT_RATES")),
		TaxApps:             taxAppEndpoints(k),

		CircuitTaxMinRequests: parseInt(k.String("CIRCUIT_TAX_MIN_REQ"), 20),
		CircuitTaxFailureRate: parseFloat(k.String("CIRCUIT_TAX_FAILURE_RATE"), 0.5),
		CircuitTaxOpenFor:     parseDuration(k.String("CIRCUIT_TAX_OPEN_FOR"), "30s"),

		CheckoutPricesTTL: parseDuration(k.String("CHECKOUT_PRICES_TTL"), "1h"),
		LockTTL:           parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetryBackoff:  parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		LockMaxWait:       parseDuration(k.String("LOCK_MAX_WAIT"), "5s"),

		RefreshRateLimitMax:    parseInt(k.String("REFRESH_RATE_LIMIT_MAX"), 30),
		RefreshRateLimitWindow: parseDuration(k.String("REFRESH_RATE_LIMIT_WINDOW"), "1m"),

		QueueConcurrency:     parseInt(k.String("QUEUE_CONCURRENCY"), 4),
		QueueRefreshDedupTTL: parseDuration(k.String("QUEUE_REFRESH_DEDUP_TTL"), "1m"),
		QueueMaxRetry:        parseInt(k.String("QUEUE_MAX_RETRY"), 5),
		QueueRetryBase:       parseDuration(k.String("QUEUE_RETRY_BASE"), "2s"),
		QueueRetryJitter:     parseFloat(k.String("QUEUE_RETRY_JITTER"), 0.2),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.TaxAppURL != "" && cfg.TaxAppSecret == "" {
		return nil, errors.New("TAX_APP_SECRET is required when TAX_APP_URL is set")
	}
	for _, app := range cfg.TaxApps {
		prefix := taxAppEnvPrefix(app.ID)
		if app.URL == "" {
			return nil, fmt.Errorf("%sURL is required for tax app %q", prefix, app.ID)
		}
		if app.Secret == "" {
			return nil, fmt.Errorf("%sSECRET is required for tax app %q", prefix, app.ID)
		}
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// taxAppEndpoints reads TAX_APPS, a comma-separated list of app identifiers,
// and the TAX_APPS_<ID>_URL and TAX_APPS_<ID>_SECRET keys of each app.
func taxAppEndpoints(k *koanf.Koanf) []TaxAppEndpoint {
	ids := splitAndTrim(k.String("TAX_APPS"))
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	apps := make([]TaxAppEndpoint, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		prefix := taxAppEnvPrefix(id)
		apps = append(apps, TaxAppEndpoint{
			ID:     id,
			URL:    strings.TrimSpace(k.String(prefix + "URL")),
			Secret: k.String(prefix + "SECRET"),
		})
	}
	return apps
}

func taxAppEnvPrefix(id string) string {
	return "TAX_APPS_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(id)) + "_"
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
