// Package session implements the QR login session state machine.
//
// A login session is issued PENDING with a one-time token. A second device
// presents the token (scan, PENDING -> SCANNED) and then binds an identity
// (confirm, SCANNED -> AUTHENTICATED) while the requesting party polls.
// Sessions may also be cancelled, and every session past its expiry reads as
// EXPIRED regardless of whether the reaper has removed it yet.
//
// All mutations go through Store.CompareAndTransition, which checks the
// current status and expiry and applies the change as one atomic step.
// Tokens are never stored in plaintext; the store indexes a hash of the token
// (HMAC-SHA256 when QRAUTH_TOKEN_HMAC_KEY is set; otherwise SHA-256).
//
// Transport (HTTP/WS) integration lives in auth/api and realtime.
package session
