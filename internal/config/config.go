// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, database selection, authentication, websocket tuning, rate
// limiting, uploads, and observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-social-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AuthConfig holds token signing and session lifetimes.
type AuthConfig struct {
	AccessSecret    string        // JWT_ACCESS_SECRET (HMAC key)
	AccessTTL       time.Duration // JWT_ACCESS_TTL
	RefreshTTL      time.Duration // REFRESH_TOKEN_TTL
	CookieSecure    bool          // COOKIE_SECURE
	VerificationTTL time.Duration // EMAIL_CODE_TTL
}

// WSConfig tunes the websocket transport.
type WSConfig struct {
	MaxMessageBytes int64         // WS_MAX_MESSAGE_BYTES
	SendBuffer      int           // WS_SEND_BUFFER (queued pushes per connection)
	PingInterval    time.Duration // WS_PING_INTERVAL
	PongWait        time.Duration // WS_PONG_WAIT
	WriteWait       time.Duration // WS_WRITE_WAIT
	CommandTimeout  time.Duration // WS_COMMAND_TIMEOUT
	RateRPS         float64       // WS_RATE_RPS (commands per second per connection)
	RateBurst       int           // WS_RATE_BURST
}

// UploadConfig configures the local blob store.
type UploadConfig struct {
	Dir      string // UPLOAD_DIR
	BaseURL  string // UPLOAD_BASE_URL (public prefix for stored keys)
	MaxBytes int64  // UPLOAD_MAX_BYTES (per request)
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

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Database
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN

	// Auth
	Auth AuthConfig

	// HTTP rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Realtime
	WS WSConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency window for message.send client keys
	IdempotencyTTL time.Duration

	// Uploads
	Upload UploadConfig

	// Users
	UserSearchLimit int

	// Observability
	OTEL OTELConfig
}

// MustLoad is Load for tests and tools that cannot continue without a
// valid configuration.
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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		// Database
		DBDriver:    strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:      getenv("DB_PATH", "app.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),

		// Auth
		Auth: AuthConfig{
			AccessSecret:    getenv("JWT_ACCESS_SECRET", ""),
			AccessTTL:       getdur("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL:      getdur("REFRESH_TOKEN_TTL", 30*24*time.Hour),
			CookieSecure:    getbool("COOKIE_SECURE", true),
			VerificationTTL: getdur("EMAIL_CODE_TTL", 10*time.Minute),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Realtime
		WS: WSConfig{
			MaxMessageBytes: int64(getint("WS_MAX_MESSAGE_BYTES", 64*1024)),
			SendBuffer:      getint("WS_SEND_BUFFER", 256),
			PingInterval:    getdur("WS_PING_INTERVAL", 25*time.Second),
			PongWait:        getdur("WS_PONG_WAIT", 60*time.Second),
			WriteWait:       getdur("WS_WRITE_WAIT", 10*time.Second),
			CommandTimeout:  getdur("WS_COMMAND_TIMEOUT", 10*time.Second),
			RateRPS:         getfloat("WS_RATE_RPS", 20.0),
			RateBurst:       getint("WS_RATE_BURST", 40),
		},

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

		// Uploads
		Upload: UploadConfig{
			Dir:      getenv("UPLOAD_DIR", "uploads"),
			BaseURL:  strings.TrimRight(getenv("UPLOAD_BASE_URL", "/files"), "/"),
			MaxBytes: int64(getint("UPLOAD_MAX_BYTES", 10<<20)),
		},

		UserSearchLimit: getint("USER_SEARCH_LIMIT", 20),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-social-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
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
	if cfg.DBDriver == "postgresql" || cfg.DBDriver == "pg" {
		cfg.DBDriver = "postgres"
	}

	return cfg, cfg.Validate()
}

// Validate reports every invalid setting at once, joined into one error.
func (c Config) Validate() error {
	var errs []error
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, errors.New("LOG_LEVEL must be one of: trace, debug, info, warn, error, fatal, panic"))
	}
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive durations"))
	}
	if c.MaxHeaderBytes <= 0 {
		errs = append(errs, errors.New("MAX_HEADER_BYTES must be > 0"))
	}
	switch c.DBDriver {
	case "sqlite":
		if strings.TrimSpace(c.DBPath) == "" {
			errs = append(errs, errors.New("DB_PATH must not be empty"))
		}
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, errors.New("DATABASE_URL must be set when DB_DRIVER=postgres"))
		}
	default:
		errs = append(errs, errors.New("DB_DRIVER must be one of: sqlite, postgres"))
	}
	if strings.TrimSpace(c.Auth.AccessSecret) == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must not be empty"))
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 || c.Auth.VerificationTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive durations"))
	}
	if c.RateRPS < 0 || c.WS.RateRPS < 0 {
		errs = append(errs, errors.New("RATE_RPS and WS_RATE_RPS must be >= 0"))
	}
	if c.RateBurst < 1 || c.WS.RateBurst < 1 {
		errs = append(errs, errors.New("RATE_BURST and WS_RATE_BURST must be >= 1"))
	}
	if c.WS.MaxMessageBytes <= 0 || c.WS.SendBuffer <= 0 {
		errs = append(errs, errors.New("WS_MAX_MESSAGE_BYTES and WS_SEND_BUFFER must be > 0"))
	}
	if c.WS.PingInterval <= 0 || c.WS.PongWait <= c.WS.PingInterval {
		errs = append(errs, errors.New("WS_PONG_WAIT must be greater than WS_PING_INTERVAL (both > 0)"))
	}
	if c.WS.WriteWait <= 0 || c.WS.CommandTimeout <= 0 {
		errs = append(errs, errors.New("WS_WRITE_WAIT and WS_COMMAND_TIMEOUT must be positive durations"))
	}
	if c.Security.HSTSMaxAge < 0 {
		errs = append(errs, errors.New("HSTS_MAX_AGE must be >= 0"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be > 0"))
	}
	if strings.TrimSpace(c.Upload.Dir) == "" {
		errs = append(errs, errors.New("UPLOAD_DIR must not be empty"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_BYTES must be > 0"))
	}
	if c.UserSearchLimit < 1 || c.UserSearchLimit > 100 {
		errs = append(errs, errors.New("USER_SEARCH_LIMIT must be in [1,100]"))
	}
	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]"))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address for http.Server.
func (c Config) Addr() string { return ":" + c.Port }

// ---- env helpers ----

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
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
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
