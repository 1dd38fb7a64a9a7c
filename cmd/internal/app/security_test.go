package app

import (
	"strings"
	"testing"

	"qrauth/cmd/security/token"
)

func TestValidateSecurityConfig(t *testing.T) {
	t.Setenv(token.HMACEnvKey, "")
	if err := ValidateSecurityConfig(Config{}); err != nil {
		t.Fatalf("policy off must pass: %v", err)
	}

	err := ValidateSecurityConfig(Config{RequireTokenHMAC: true})
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected missing-key error, got %v", err)
	}

	t.Setenv(token.HMACEnvKey, "short")
	err = ValidateSecurityConfig(Config{RequireTokenHMAC: true})
	if err == nil || !strings.Contains(err.Error(), "too short") {
		t.Fatalf("expected short-key error, got %v", err)
	}

	t.Setenv(token.HMACEnvKey, strings.Repeat("k", 32))
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err != nil {
		t.Fatalf("expected valid policy, got %v", err)
	}
}

func TestTokenHasher(t *testing.T) {
	t.Setenv(token.HMACEnvKey, "")
	if got, want := tokenHasher()("abc"), token.HashSHA256Hex("abc"); got != want {
		t.Fatalf("expected SHA-256 without key, got %q", got)
	}

	key := strings.Repeat("k", 32)
	t.Setenv(token.HMACEnvKey, key)
	if got, want := tokenHasher()("abc"), token.HashHMACSHA256Hex("abc", []byte(key)); got != want {
		t.Fatalf("expected HMAC with key, got %q", got)
	}
}
