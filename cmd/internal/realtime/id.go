package realtime

import (
	"time"

	"qrauth/cmd/identity/ids"
)

// NewEnvelopeID returns a ULID used as envelope id, so pushed envelopes sort
// by emission time in logs.
func NewEnvelopeID(now time.Time) string {
	return ids.NewULID(now)
}
