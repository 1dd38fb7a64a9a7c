package session

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfigFromEnv_InvalidDurations(t *testing.T) {
	t.Setenv("QRAUTH_SESSION_TTL", "-5m")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for negative duration, got %v", err)
	}
}

func TestLoadConfigFromEnv_Unparseable(t *testing.T) {
	t.Setenv("QRAUTH_REAPER_INTERVAL", "soon")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for bad duration, got %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidTokenBytes(t *testing.T) {
	t.Setenv("QRAUTH_TOKEN_BYTES", "16")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for small token bytes, got %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidTTLOrder(t *testing.T) {
	t.Setenv("QRAUTH_SESSION_TTL", "30m")
	t.Setenv("QRAUTH_SESSION_MAX_TTL", "10m")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for ttl order, got %v", err)
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	t.Setenv("QRAUTH_SESSION_TTL", "2m")
	t.Setenv("QRAUTH_SESSION_MAX_TTL", "10m")
	t.Setenv("QRAUTH_TOKEN_BYTES", "48")
	t.Setenv("QRAUTH_REAPER_INTERVAL", "30s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DefaultTTL != 2*time.Minute {
		t.Fatalf("ttl mismatch: %v", cfg.DefaultTTL)
	}
	if cfg.MaxTTL != 10*time.Minute {
		t.Fatalf("max ttl mismatch: %v", cfg.MaxTTL)
	}
	if cfg.TokenBytes != 48 {
		t.Fatalf("token bytes mismatch: %d", cfg.TokenBytes)
	}
	if cfg.ReaperInterval != 30*time.Second {
		t.Fatalf("reaper interval mismatch: %v", cfg.ReaperInterval)
	}
}

func TestConfig_TTL(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.TTL(0); got != cfg.DefaultTTL {
		t.Fatalf("zero ttl: got %v", got)
	}
	if got := cfg.TTL(-time.Second); got != cfg.DefaultTTL {
		t.Fatalf("negative ttl: got %v", got)
	}
	if got := cfg.TTL(time.Hour); got != cfg.MaxTTL {
		t.Fatalf("clamp: got %v", got)
	}
	if got := cfg.TTL(time.Millisecond); got != time.Millisecond {
		t.Fatalf("passthrough: got %v", got)
	}
}
