// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, edge protection, dispatch tuning, the SMS provider and
// observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-group-notify/internal/sysutil"
)

// Supported values for SMS_PROVIDER.
const (
	ProviderTwilio = "twilio"
	ProviderLog    = "log"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the backing store.
type DBConfig struct {
	Driver     string // sqlite|postgres
	Path       string // sqlite file
	URL        string // postgres DSN
	RosterPath string // optional YAML roster seeded at startup
}

// DispatchConfig tunes the dispatch engine.
type DispatchConfig struct {
	MaxPerHour       int
	CostPerMessage   float64
	Workers          int
	SendTimeout      time.Duration
	GuardianTemplate string
}

// ProviderConfig configures the channel sender.
type ProviderConfig struct {
	Name                string // twilio|log
	AccountSID          string
	AuthToken           string
	FromNumber          string
	MessagingServiceSID string
	BaseURL             string
	WebhookPublicURL    string // external base URL the provider calls back on
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test
	GzipEnabled       bool

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	DB DBConfig

	// Rate limiting (HTTP edge, per caller)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	Dispatch DispatchConfig
	Provider ProviderConfig

	// HousekeepingCron is a robfig/cron spec; empty disables the job.
	HousekeepingCron string

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		GzipEnabled:       getbool("GZIP_ENABLED", true),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver:     strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:       getenv("DB_PATH", "notify.db"),
			URL:        getenv("DATABASE_URL", ""),
			RosterPath: getenv("ROSTER_PATH", ""),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		Dispatch: DispatchConfig{
			MaxPerHour:       getint("DISPATCH_MAX_PER_HOUR", 500),
			CostPerMessage:   getfloat("DISPATCH_COST_PER_MESSAGE", 0.0079),
			Workers:          getint("DISPATCH_WORKERS", 4),
			SendTimeout:      getdur("DISPATCH_SEND_TIMEOUT", 10*time.Second),
			GuardianTemplate: getenv("GUARDIAN_TEMPLATE", ""),
		},

		Provider: ProviderConfig{
			Name:                strings.ToLower(getenv("SMS_PROVIDER", ProviderLog)),
			AccountSID:          getenv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:           getenv("TWILIO_AUTH_TOKEN", ""),
			FromNumber:          getenv("TWILIO_FROM_NUMBER", ""),
			MessagingServiceSID: getenv("TWILIO_MESSAGING_SERVICE_SID", ""),
			BaseURL:             getenv("TWILIO_BASE_URL", "https://api.twilio.com"),
			WebhookPublicURL:    strings.TrimRight(getenv("WEBHOOK_PUBLIC_URL", ""), "/"),
		},

		HousekeepingCron: getenv("HOUSEKEEPING_CRON", "@every 1h"),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-group-notify"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}
	if v, ok := os.LookupEnv("HOUSEKEEPING_CRON"); ok && strings.TrimSpace(v) == "" {
		cfg.HousekeepingCron = ""
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.Dispatch.MaxPerHour < 1 {
		return cfg, errors.New("DISPATCH_MAX_PER_HOUR must be >= 1")
	}
	if cfg.Dispatch.CostPerMessage < 0 {
		return cfg, errors.New("DISPATCH_COST_PER_MESSAGE must be >= 0")
	}
	if cfg.Dispatch.Workers < 1 {
		return cfg, errors.New("DISPATCH_WORKERS must be >= 1")
	}
	if cfg.Dispatch.SendTimeout <= 0 {
		return cfg, errors.New("DISPATCH_SEND_TIMEOUT must be > 0")
	}
	switch cfg.Provider.Name {
	case ProviderLog:
	case ProviderTwilio:
		p := cfg.Provider
		if p.AccountSID == "" || p.AuthToken == "" {
			return cfg, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required for the twilio provider")
		}
		if p.FromNumber == "" && p.MessagingServiceSID == "" {
			return cfg, errors.New("one of TWILIO_FROM_NUMBER or TWILIO_MESSAGING_SERVICE_SID is required")
		}
	default:
		return cfg, errors.New("SMS_PROVIDER must be one of: twilio, log")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// WebhookURL is the absolute URL the provider posts status callbacks to, or
// "" when no public URL is configured.
func (c Config) WebhookURL() string {
	if c.Provider.WebhookPublicURL == "" {
		return ""
	}
	return c.Provider.WebhookPublicURL + WebhookPath
}

// WebhookPath is where status callbacks are mounted. It lives outside
// APIBasePath because providers are configured with a fixed URL.
const WebhookPath = "/webhooks/sms/status"

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if sysutil.IsTruthy(v) {
			return true
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
