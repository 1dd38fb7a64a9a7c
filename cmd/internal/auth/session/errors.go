package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no live session has the requested id.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidToken is returned when a presented token matches no live session.
	ErrInvalidToken = errors.New("invalid token")

	// ErrWrongState is returned when a transition is attempted from a state that forbids it.
	ErrWrongState = errors.New("wrong state")

	// ErrAlreadyProcessed is returned when a token is scanned a second time.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrExpired is returned when the session is past its expiry.
	ErrExpired = errors.New("session expired")

	// ErrConflict is returned when a generated session id or token collides with a live session.
	ErrConflict = errors.New("session conflict")

	// ErrUnknownIdentity is returned when a confirming identity resolves to no user.
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrIdentityMismatch is returned when a pre-bound session is confirmed as another user.
	ErrIdentityMismatch = errors.New("identity mismatch")

	// ErrUnboundSession is returned by ConfirmDirect for sessions with no bound user.
	ErrUnboundSession = errors.New("unbound session")

	// ErrIllegalTransition is returned when a mutator breaks the transition graph
	// or touches an immutable field. It indicates a programming error.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrInvalidArgument is returned for malformed call parameters.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// TransitionError reports a rejected session operation.
// Kind is one of the sentinels above; Current is the status observed at rejection time (may be empty).
// For ErrExpired, Current is the status before the store marked the record expired.
type TransitionError struct {
	Op        string
	SessionID string
	Kind      error
	Current   Status
}

func (e TransitionError) Error() string {
	op := e.Op
	if op == "" {
		op = "session"
	}
	if e.Current == "" {
		return fmt.Sprintf("%s %s: %v", op, e.SessionID, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v (status %s)", op, e.SessionID, e.Kind, e.Current)
}

func (e TransitionError) Unwrap() error { return e.Kind }

// ConflictError reports an id or token collision on create.
type ConflictError struct {
	Field string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%v: %s", ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// Reason maps err to a stable, lower_snake reason code used in metrics labels,
// audit rows and API error bodies.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, ErrWrongState):
		return "wrong_state"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrUnknownIdentity):
		return "unknown_identity"
	case errors.Is(err, ErrIdentityMismatch):
		return "identity_mismatch"
	case errors.Is(err, ErrUnboundSession):
		return "unbound_session"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_request"
	default:
		return "internal"
	}
}
