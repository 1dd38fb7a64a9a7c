// Package token provides the opaque login-token primitives for qrauth.
//
// It is the single source of truth for how tokens are minted and how they are
// hashed before being used as store index keys.
//
// Design goals:
// - Tokens are base64url (no padding) encodings of crypto/rand bytes.
// - Default dev mode: SHA-256(token) when no HMAC key is configured.
// - Production-enforced mode: HMAC-SHA256(token, key) when policy requires it.
// - Stable 64-char hex output for index keys and constant-time comparison.
//
// Environment:
// - QRAUTH_TOKEN_HMAC_KEY: when set, enables HMAC mode.
package token
