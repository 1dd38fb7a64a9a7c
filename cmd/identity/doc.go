// Package identity implements the qrauth user directory.
//
// Users are keyed by normalized (trimmed, lower-cased) email. The directory is
// safe for concurrent use by many confirming devices at once and hands out
// copies only; callers never hold a pointer into directory state.
package identity
