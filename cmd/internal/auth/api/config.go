package authapi

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls HTTP API behavior and abuse limits.
type Config struct {
	TrustProxy   bool  `env:"QRAUTH_TRUST_PROXY"    envDefault:"false"`
	MaxBodyBytes int64 `env:"QRAUTH_MAX_BODY_BYTES" envDefault:"65536"`

	// Token-presenting endpoints (scan, confirm, confirm-direct, cancel) are
	// limited per client IP.
	RateLimitEvents int           `env:"QRAUTH_RATE_LIMIT_EVENTS" envDefault:"30"`
	RateLimitWindow time.Duration `env:"QRAUTH_RATE_LIMIT_WINDOW" envDefault:"1m"`

	// AdminEnabled exposes GET /admin/sessions.
	AdminEnabled bool `env:"QRAUTH_ADMIN_ENABLED" envDefault:"false"`
}

// DefaultConfig returns the API defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:    64 << 10,
		RateLimitEvents: 30,
		RateLimitWindow: time.Minute,
	}
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
// Unparseable or non-positive values fall back to the defaults.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return DefaultConfig()
	}
	return cfg.normalized()
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if c.RateLimitEvents <= 0 {
		c.RateLimitEvents = def.RateLimitEvents
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = def.RateLimitWindow
	}
	return c
}
