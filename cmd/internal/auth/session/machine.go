package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"qrauth/cmd/identity"
	"qrauth/cmd/security/token"
)

// maxTokenLen bounds presented tokens before hashing.
const maxTokenLen = 4096

// Machine implements the login session operations on top of a Store.
//
// Every operation is a single CompareAndTransition call; there is no
// read-decide-write sequence outside the store lock.
type Machine struct {
	cfg   Config
	store Store
	users identity.Directory

	log *slog.Logger
	now func() time.Time
	obs Observers
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) MachineOption {
	return func(m *Machine) {
		if l != nil {
			m.log = l
		}
	}
}

// WithObserver registers observers for state-machine events.
func WithObserver(obs ...Observer) MachineOption {
	return func(m *Machine) {
		for _, o := range obs {
			if o != nil {
				m.obs = append(m.obs, o)
			}
		}
	}
}

// NewMachine constructs a Machine.
func NewMachine(cfg Config, store Store, users identity.Directory, opts ...MachineOption) *Machine {
	m := &Machine{
		cfg:   cfg,
		store: store,
		users: users,
		log:   slog.Default(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Issued is the result of issuing a session.
// Token is the only copy of the plain token the server ever hands out.
type Issued struct {
	SessionID string
	Token     string
	ExpiresAt time.Time
	UserID    string
}

// Issue creates a PENDING session. A non-empty boundUserID pre-binds the
// session to an existing user; the session stays PENDING until confirmed.
func (m *Machine) Issue(ctx context.Context, ttl time.Duration, boundUserID string) (Issued, error) {
	const op = "session.Issue"

	boundUserID = strings.TrimSpace(boundUserID)
	if boundUserID != "" {
		if _, err := m.users.ByID(ctx, boundUserID); err != nil {
			if identity.IsNotFound(err) {
				return Issued{}, m.reject(ctx, op, AuthSession{}, TransitionError{Op: op, Kind: ErrUnknownIdentity})
			}
			return Issued{}, err
		}
	}

	now := m.now()
	in := CreateInput{UserID: boundUserID, TTL: m.cfg.TTL(ttl), Now: now}

	var (
		sess  AuthSession
		plain string
		err   error
	)
	// One retry with fresh id/token on collision.
	for attempt := 0; attempt < 2; attempt++ {
		sess, plain, err = m.store.Create(ctx, in)
		if err == nil || !errors.Is(err, ErrConflict) {
			break
		}
		m.log.Warn("session.issue.conflict", "attempt", attempt+1, "err", err)
	}
	if err != nil {
		return Issued{}, err
	}

	m.log.Debug("session.issue", "session_id", sess.ID, "bound", sess.Bound(), "expires_at", sess.ExpiresAt)
	m.emit(ctx, Event{Kind: EventIssued, Op: op, Session: sess, At: now})

	return Issued{
		SessionID: sess.ID,
		Token:     plain,
		ExpiresAt: sess.ExpiresAt,
		UserID:    sess.UserID,
	}, nil
}

// Scan advances PENDING -> SCANNED and records deviceID.
//
// Errors: ErrInvalidToken, ErrAlreadyProcessed, ErrExpired.
func (m *Machine) Scan(ctx context.Context, plainToken, deviceID string) (AuthSession, error) {
	const op = "session.Scan"

	now := m.now()
	sess, err := m.lookupToken(ctx, op, plainToken, now)
	if err != nil {
		return AuthSession{}, err
	}

	deviceID = strings.TrimSpace(deviceID)
	out, err := m.store.CompareAndTransition(ctx, sess.ID, []Status{StatusPending}, now, func(s *AuthSession) error {
		s.Status = StatusScanned
		s.DeviceID = deviceID
		return nil
	})
	if err != nil {
		return AuthSession{}, m.rejectTransition(ctx, op, sess, err, ErrAlreadyProcessed)
	}

	m.log.Debug("session.scan", "session_id", out.ID)
	m.emit(ctx, Event{Kind: EventScanned, Op: op, Session: out, At: now})
	return out, nil
}

// Confirm advances SCANNED -> AUTHENTICATED, binding the user resolved from
// email. deviceID need not match the scanning device; when empty the scanning
// device is recorded against the user.
//
// Errors: ErrInvalidToken, ErrUnknownIdentity, ErrWrongState, ErrExpired,
// ErrIdentityMismatch.
func (m *Machine) Confirm(ctx context.Context, plainToken, deviceID, email string) (identity.User, error) {
	const op = "session.Confirm"

	now := m.now()
	sess, err := m.lookupToken(ctx, op, plainToken, now)
	if err != nil {
		return identity.User{}, err
	}

	user, err := m.users.ByEmail(ctx, email)
	if err != nil {
		if identity.IsNotFound(err) || identity.IsInvalidInput(err) {
			return identity.User{}, m.reject(ctx, op, sess, TransitionError{Op: op, SessionID: sess.ID, Kind: ErrUnknownIdentity})
		}
		return identity.User{}, err
	}

	deviceID = strings.TrimSpace(deviceID)
	out, err := m.store.CompareAndTransition(ctx, sess.ID, []Status{StatusScanned}, now, func(s *AuthSession) error {
		if s.Bound() && s.UserID != user.ID {
			return TransitionError{Op: op, SessionID: s.ID, Kind: ErrIdentityMismatch, Current: s.Status}
		}
		at := now
		s.Status = StatusAuthenticated
		s.UserID = user.ID
		s.AuthenticatedAt = &at
		if deviceID != "" {
			s.DeviceID = deviceID
		}
		return nil
	})
	if err != nil {
		return identity.User{}, m.rejectTransition(ctx, op, sess, err, ErrWrongState)
	}

	// The session is already AUTHENTICATED; a failed stamp does not undo the login.
	if stamped, err := m.users.RecordLogin(ctx, user.ID, out.DeviceID, now); err != nil {
		m.log.Warn("session.record_login_failed", "session_id", out.ID, "user_id", user.ID, "err", err)
	} else {
		user = stamped
	}

	m.log.Info("session.confirm", "session_id", out.ID, "user_id", user.ID)
	m.emit(ctx, Event{Kind: EventAuthenticated, Op: op, Session: out, At: now})
	return user, nil
}

// ConfirmDirect advances a pre-bound PENDING or SCANNED session straight to
// AUTHENTICATED when plainToken matches the session's token. It serves
// direct-link flows that never model a separate scan step.
//
// Errors: ErrNotFound, ErrInvalidToken, ErrUnboundSession, ErrWrongState, ErrExpired.
func (m *Machine) ConfirmDirect(ctx context.Context, sessionID, plainToken string) (AuthSession, error) {
	const op = "session.ConfirmDirect"

	sessionID = strings.TrimSpace(sessionID)
	plainToken = strings.TrimSpace(plainToken)
	if sessionID == "" || plainToken == "" || len(plainToken) > maxTokenLen {
		return AuthSession{}, m.reject(ctx, op, AuthSession{ID: sessionID}, TransitionError{Op: op, SessionID: sessionID, Kind: ErrInvalidToken})
	}

	now := m.now()
	presented := m.store.HashToken(plainToken)
	out, err := m.store.CompareAndTransition(ctx, sessionID, []Status{StatusPending, StatusScanned}, now, func(s *AuthSession) error {
		if !token.Equal(s.TokenHash, presented) {
			return TransitionError{Op: op, SessionID: s.ID, Kind: ErrInvalidToken, Current: s.Status}
		}
		if !s.Bound() {
			return TransitionError{Op: op, SessionID: s.ID, Kind: ErrUnboundSession, Current: s.Status}
		}
		at := now
		s.Status = StatusAuthenticated
		s.AuthenticatedAt = &at
		return nil
	})
	if err != nil {
		return AuthSession{}, m.rejectTransition(ctx, op, AuthSession{ID: sessionID}, err, ErrWrongState)
	}

	if _, err := m.users.RecordLogin(ctx, out.UserID, out.DeviceID, now); err != nil {
		m.log.Warn("session.record_login_failed", "session_id", out.ID, "user_id", out.UserID, "err", err)
	}

	m.log.Info("session.confirm_direct", "session_id", out.ID, "user_id", out.UserID)
	m.emit(ctx, Event{Kind: EventAuthenticated, Op: op, Session: out, At: now})
	return out, nil
}

// Cancel moves a PENDING or SCANNED session to CANCELLED and removes it.
// The caller must present the session's token.
func (m *Machine) Cancel(ctx context.Context, sessionID, plainToken string) (AuthSession, error) {
	const op = "session.Cancel"

	sessionID = strings.TrimSpace(sessionID)
	plainToken = strings.TrimSpace(plainToken)
	if sessionID == "" || plainToken == "" || len(plainToken) > maxTokenLen {
		return AuthSession{}, m.reject(ctx, op, AuthSession{ID: sessionID}, TransitionError{Op: op, SessionID: sessionID, Kind: ErrInvalidToken})
	}

	now := m.now()
	presented := m.store.HashToken(plainToken)
	out, err := m.store.CompareAndTransition(ctx, sessionID, []Status{StatusPending, StatusScanned}, now, func(s *AuthSession) error {
		if !token.Equal(s.TokenHash, presented) {
			return TransitionError{Op: op, SessionID: s.ID, Kind: ErrInvalidToken, Current: s.Status}
		}
		s.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return AuthSession{}, m.rejectTransition(ctx, op, AuthSession{ID: sessionID}, err, ErrWrongState)
	}

	// A concurrent sweep may already have removed it.
	if err := m.store.Remove(ctx, out.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return AuthSession{}, err
	}

	m.log.Debug("session.cancel", "session_id", out.ID)
	m.emit(ctx, Event{Kind: EventCancelled, Op: op, Session: out, At: now})
	return out, nil
}

// Session returns the lazily-expired view of a session.
func (m *Machine) Session(ctx context.Context, sessionID string) (AuthSession, error) {
	sess, err := m.store.Get(ctx, strings.TrimSpace(sessionID), m.now())
	if err != nil {
		return AuthSession{}, err
	}
	return sess, nil
}

// SessionByToken resolves a plain token to its session view without
// transitioning it.
func (m *Machine) SessionByToken(ctx context.Context, plainToken string) (AuthSession, error) {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" || len(plainToken) > maxTokenLen {
		return AuthSession{}, TransitionError{Op: "session.SessionByToken", Kind: ErrInvalidToken}
	}
	sess, err := m.store.FindByToken(ctx, plainToken, m.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthSession{}, TransitionError{Op: "session.SessionByToken", Kind: ErrInvalidToken}
		}
		return AuthSession{}, err
	}
	return sess, nil
}

// Status returns the derived status of a session.
func (m *Machine) Status(ctx context.Context, sessionID string) (Status, error) {
	sess, err := m.Session(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return sess.Status, nil
}

// CheckAuthenticated returns the bound user only when the session is
// AUTHENTICATED (and therefore not expired). ok is false in every other state.
func (m *Machine) CheckAuthenticated(ctx context.Context, sessionID string) (user identity.User, ok bool, err error) {
	sess, err := m.Session(ctx, sessionID)
	if err != nil {
		return identity.User{}, false, err
	}
	if sess.Status != StatusAuthenticated {
		return identity.User{}, false, nil
	}

	user, err = m.users.ByID(ctx, sess.UserID)
	if err != nil {
		return identity.User{}, false, err
	}
	return user, true, nil
}

// List returns every stored session (admin/debug).
func (m *Machine) List(ctx context.Context) ([]AuthSession, error) {
	return m.store.List(ctx, m.now())
}

// Live returns the number of stored sessions, expired-but-unswept included.
func (m *Machine) Live() int { return m.store.Len() }

// Sweep removes expired sessions. It implements Sweeper for the Reaper.
func (m *Machine) Sweep(ctx context.Context) (int, error) {
	now := m.now()
	n, err := m.store.SweepExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.emit(ctx, Event{Kind: EventSwept, Op: "session.Sweep", Count: n, At: now})
	}
	return n, nil
}

func (m *Machine) lookupToken(ctx context.Context, op, plainToken string, now time.Time) (AuthSession, error) {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" || len(plainToken) > maxTokenLen {
		return AuthSession{}, m.reject(ctx, op, AuthSession{}, TransitionError{Op: op, Kind: ErrInvalidToken})
	}

	sess, err := m.store.FindByToken(ctx, plainToken, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthSession{}, m.reject(ctx, op, AuthSession{}, TransitionError{Op: op, Kind: ErrInvalidToken})
		}
		return AuthSession{}, err
	}
	return sess, nil
}

// rejectTransition normalizes a CompareAndTransition failure for op:
// a vanished session reads as an invalid token and a status mismatch becomes
// wrongState. EventExpired fires only for the rejection that committed the
// EXPIRED mark.
func (m *Machine) rejectTransition(ctx context.Context, op string, sess AuthSession, err error, wrongState error) error {
	var te TransitionError
	if !errors.As(err, &te) {
		return err
	}
	te.Op = op
	if te.SessionID == "" {
		te.SessionID = sess.ID
	}

	switch {
	case errors.Is(te.Kind, ErrNotFound):
		if op == "session.Scan" || op == "session.Confirm" {
			te.Kind = ErrInvalidToken
		}
	case errors.Is(te.Kind, ErrWrongState):
		te.Kind = wrongState
	case errors.Is(te.Kind, ErrExpired):
		if te.Current != StatusPending && te.Current != StatusScanned {
			break
		}
		expired := sess
		expired.ID = te.SessionID
		expired.Status = StatusExpired
		m.emit(ctx, Event{Kind: EventExpired, Op: op, Session: expired, At: m.now()})
	}

	return m.reject(ctx, op, AuthSession{ID: te.SessionID}, te)
}

func (m *Machine) reject(ctx context.Context, op string, sess AuthSession, err error) error {
	m.log.Debug("session.reject", "op", op, "session_id", sess.ID, "reason", Reason(err))
	m.emit(ctx, Event{Kind: EventRejected, Op: op, Session: sess, Err: err, At: m.now()})
	return err
}

func (m *Machine) emit(ctx context.Context, ev Event) {
	if len(m.obs) == 0 {
		return
	}
	m.obs.Observe(ctx, ev)
}
