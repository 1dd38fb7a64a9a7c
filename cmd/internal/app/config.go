package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains the server runtime configuration loaded from environment variables.
// Package-specific settings (session, api, realtime) load their own structs.
type Config struct {
	HTTPAddr  string `env:"QRAUTH_HTTP_ADDR"  envDefault:"0.0.0.0:8080"`
	LogLevel  string `env:"QRAUTH_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"QRAUTH_LOG_FORMAT" envDefault:"json"`

	ReadHeaderTimeout time.Duration `env:"QRAUTH_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"QRAUTH_HTTP_READ_TIMEOUT"        envDefault:"15s"`
	WriteTimeout      time.Duration `env:"QRAUTH_HTTP_WRITE_TIMEOUT"       envDefault:"15s"`
	IdleTimeout       time.Duration `env:"QRAUTH_HTTP_IDLE_TIMEOUT"        envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"QRAUTH_HTTP_SHUTDOWN_TIMEOUT"    envDefault:"10s"`
	MaxHeaderBytes    int           `env:"QRAUTH_HTTP_MAX_HEADER_BYTES"    envDefault:"1048576"`

	// PublicBaseURL is the origin embedded in verify URLs. Empty derives it
	// from HTTPAddr.
	PublicBaseURL string `env:"QRAUTH_PUBLIC_BASE_URL"`

	// DatabaseURL enables the Postgres audit trail.
	DatabaseURL string `env:"QRAUTH_DATABASE_URL"`
	DBMaxConns  int32  `env:"QRAUTH_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"QRAUTH_DB_MIN_CONNS" envDefault:"0"`
	AuditBuffer int    `env:"QRAUTH_AUDIT_BUFFER" envDefault:"1024"`

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool `env:"QRAUTH_READINESS_REQUIRE_DB" envDefault:"false"`

	// RedisURL switches the API rate limiter to Redis.
	RedisURL string `env:"QRAUTH_REDIS_URL"`

	// SeedUsers is "email:Name,email:Name" registered at startup.
	SeedUsers string `env:"QRAUTH_SEED_USERS"`

	CORSAllowedOrigins   []string `env:"QRAUTH_CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowCredentials bool     `env:"QRAUTH_CORS_ALLOW_CREDENTIALS" envDefault:"false"`
	CORSMaxAgeSeconds    int      `env:"QRAUTH_CORS_MAX_AGE_SECONDS"   envDefault:"600"`

	// Security policy: if true, QRAUTH_TOKEN_HMAC_KEY must be set (>= 32 bytes)
	// and token hashing is HMAC-based.
	RequireTokenHMAC bool `env:"QRAUTH_REQUIRE_TOKEN_HMAC" envDefault:"false"`
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("app: load config: %w", err)
	}
	return cfg, nil
}
