package session

import "time"

// AuthSession is one login attempt.
//
// Values handed out by a Store are copies; mutating them has no effect on
// stored state.
type AuthSession struct {
	ID        string
	TokenHash string

	// UserID is empty until the session is confirmed, unless issued pre-bound.
	UserID string
	// DeviceID is set when the token is scanned.
	DeviceID string

	Status Status

	CreatedAt       time.Time
	ExpiresAt       time.Time
	AuthenticatedAt *time.Time
}

// Bound reports whether a user is attached to the session.
func (s AuthSession) Bound() bool { return s.UserID != "" }

// ExpiredAt reports whether the session is past its expiry at now.
func (s AuthSession) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// At returns the view of s observed at now: any non-cancelled session past its
// expiry reads as EXPIRED. The stored record is not changed.
func (s AuthSession) At(now time.Time) AuthSession {
	out := s.clone()
	if out.Status != StatusCancelled && out.ExpiredAt(now) {
		out.Status = StatusExpired
	}
	return out
}

func (s AuthSession) clone() AuthSession {
	out := s
	if s.AuthenticatedAt != nil {
		t := *s.AuthenticatedAt
		out.AuthenticatedAt = &t
	}
	return out
}
