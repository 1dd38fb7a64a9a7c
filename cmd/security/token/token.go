package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the token HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "QRAUTH_TOKEN_HMAC_KEY"

	// DefaultBytes is the number of random bytes behind a login token.
	DefaultBytes = 32
)

// Generate returns a URL-safe, unpadded base64 encoding of nBytes random bytes.
// nBytes <= 0 falls back to DefaultBytes.
//
// A failing entropy source is not recoverable; Generate panics instead of
// handing callers a weak or empty token.
func Generate(nBytes int) string {
	if nBytes <= 0 {
		nBytes = DefaultBytes
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("token: crypto/rand failed: %v", err))
	}

	// URL-safe, no padding.
	return base64.RawURLEncoding.EncodeToString(b)
}

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// HMACEnabled reports whether the env key is present (non-empty after trim).
// Note: This does not enforce minimum length. Use HMACKeyFromEnv for policy checks.
func HMACEnabled() bool {
	return strings.TrimSpace(os.Getenv(HMACEnvKey)) != ""
}

// Hasher maps a plain token to its index key.
type Hasher func(plain string) string

// HashHex hashes a login token for server-side indexing.
// Behavior:
// - If QRAUTH_TOKEN_HMAC_KEY is set (non-empty), uses HMAC-SHA256(token, key).
// - Otherwise falls back to SHA-256(token).
func HashHex(plain string) string {
	key := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if key == "" {
		return HashSHA256Hex(plain)
	}
	return HashHMACSHA256Hex(plain, []byte(key))
}

// NewHMACHasher returns a Hasher bound to key. An empty key yields plain SHA-256.
func NewHMACHasher(key []byte) Hasher {
	if len(key) == 0 {
		return HashSHA256Hex
	}
	k := append([]byte(nil), key...)
	return func(plain string) string { return HashHMACSHA256Hex(plain, k) }
}

// Equal compares two hex digests in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
