package identity

import (
	"time"

	"qrauth/cmd/identity/ids"
)

// NewULID returns a new ULID (26-char string).
func NewULID(now time.Time) string {
	return ids.NewULID(now)
}
