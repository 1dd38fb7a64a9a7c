package session

import (
	"context"
	"time"
)

// Mutator edits a private copy of a session inside CompareAndTransition.
// Returning an error aborts the transition without changing stored state.
type Mutator func(s *AuthSession) error

// CreateInput describes a new PENDING session.
type CreateInput struct {
	// UserID pre-binds the session to a known user (optional).
	UserID string
	TTL    time.Duration
	Now    time.Time
}

// Store abstracts concurrent session state.
//
// Implementations must update the primary record, the token index and the
// status as one atomic unit, and must hand out copies only.
type Store interface {
	// Create allocates a session id and token and inserts a PENDING record.
	// The plain token is returned exactly once; only its hash is stored.
	// Returns ConflictError (ErrConflict) on id or token collision.
	Create(ctx context.Context, in CreateInput) (sess AuthSession, plainToken string, err error)

	// Get returns the session as observed at now (lazy expiry, no mutation).
	Get(ctx context.Context, sessionID string, now time.Time) (AuthSession, error)

	// FindByToken resolves a plain token through the token index.
	FindByToken(ctx context.Context, plainToken string, now time.Time) (AuthSession, error)

	// CompareAndTransition is the sole mutation entry point. It atomically checks
	// that the session exists, is not expired at now and has a status in
	// expected, then applies mutate to a copy and commits it if the result is a
	// legal transition with immutable fields untouched.
	//
	// Rejections are TransitionError values with Kind ErrNotFound, ErrExpired
	// or ErrWrongState. On expiry a PENDING or SCANNED record is stored as EXPIRED;
	// Current carries the status held before that mark, so only the first
	// rejection of a live record reports PENDING or SCANNED.
	CompareAndTransition(ctx context.Context, sessionID string, expected []Status, now time.Time, mutate Mutator) (AuthSession, error)

	// SweepExpired removes every session past its expiry and returns the count.
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	// Remove deletes a session and its token index entry.
	Remove(ctx context.Context, sessionID string) error

	// List returns every live session observed at now, oldest first.
	List(ctx context.Context, now time.Time) ([]AuthSession, error)

	// Len returns the number of stored sessions.
	Len() int

	// HashToken returns the index key for a plain token.
	HashToken(plainToken string) string
}
