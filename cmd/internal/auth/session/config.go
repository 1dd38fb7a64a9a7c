package session

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config defines runtime configuration for the login session subsystem.
type Config struct {
	// DefaultTTL applies when a caller requests no TTL (or a non-positive one).
	DefaultTTL time.Duration `env:"QRAUTH_SESSION_TTL" envDefault:"5m"`

	// MaxTTL caps any requested TTL.
	MaxTTL time.Duration `env:"QRAUTH_SESSION_MAX_TTL" envDefault:"15m"`

	// TokenBytes is the number of random bytes behind each login token.
	TokenBytes int `env:"QRAUTH_TOKEN_BYTES" envDefault:"32"`

	// ReaperInterval is the period of the expired-session sweep.
	ReaperInterval time.Duration `env:"QRAUTH_REAPER_INTERVAL" envDefault:"1m"`
}

// DefaultConfig returns the development defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:     5 * time.Minute,
		MaxTTL:         15 * time.Minute,
		TokenBytes:     32,
		ReaperInterval: time.Minute,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - QRAUTH_SESSION_TTL
//   - QRAUTH_SESSION_MAX_TTL
//   - QRAUTH_TOKEN_BYTES (32..64)
//   - QRAUTH_REAPER_INTERVAL
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, ErrConfig
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks bounds and ordering.
func (c Config) Validate() error {
	if c.DefaultTTL <= 0 || c.MaxTTL <= 0 || c.ReaperInterval <= 0 {
		return ErrConfig
	}
	if c.MaxTTL < c.DefaultTTL {
		return ErrConfig
	}
	if c.TokenBytes < 32 || c.TokenBytes > 64 {
		return ErrConfig
	}
	return nil
}

// TTL resolves a requested TTL: non-positive uses DefaultTTL, anything above
// MaxTTL is clamped.
func (c Config) TTL(requested time.Duration) time.Duration {
	if requested <= 0 {
		requested = c.DefaultTTL
	}
	if c.MaxTTL > 0 && requested > c.MaxTTL {
		return c.MaxTTL
	}
	return requested
}
