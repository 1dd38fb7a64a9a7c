package app

import (
	"errors"

	"qrauth/cmd/security/token"
)

// minHMACKeyBytes is the minimum secret length for HMAC-SHA256 token hashing.
const minHMACKeyBytes = 32

// ValidateSecurityConfig enforces the token hashing policy at startup.
// It fails fast rather than silently falling back to plain SHA-256.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Measured in bytes, not runes: the key is used as raw bytes.
	if _, err := token.HMACKeyFromEnv(minHMACKeyBytes); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: QRAUTH_REQUIRE_TOKEN_HMAC=true but QRAUTH_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: QRAUTH_REQUIRE_TOKEN_HMAC=true but QRAUTH_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: QRAUTH_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}
	return nil
}

// tokenHasher returns the hasher the session store indexes tokens with.
// An HMAC key, when configured, binds the index to this deployment.
func tokenHasher() token.Hasher {
	key, err := token.HMACKeyFromEnv(0)
	if err != nil {
		return token.HashSHA256Hex
	}
	return token.NewHMACHasher(key)
}
