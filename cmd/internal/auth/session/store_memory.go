package session

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"qrauth/cmd/identity/ids"
	"qrauth/cmd/security/token"
)

// MemoryStore is the in-process Store.
//
// One RWMutex guards the primary map and the token index. Reads take the
// read lock and copy; every write path holds the write lock for the whole
// check-mutate-commit sequence.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*AuthSession
	byToken map[string]string // token hash -> session id

	tokenBytes int
	newID      func(time.Time) string
	newToken   func(nBytes int) string
	hash       token.Hasher
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithTokenBytes sets the entropy behind each token (default token.DefaultBytes).
func WithTokenBytes(n int) MemoryStoreOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.tokenBytes = n
		}
	}
}

// WithHasher sets the token index hash (default token.HashHex).
func WithHasher(h token.Hasher) MemoryStoreOption {
	return func(s *MemoryStore) {
		if h != nil {
			s.hash = h
		}
	}
}

// WithIDGenerator overrides session id allocation.
func WithIDGenerator(gen func(time.Time) string) MemoryStoreOption {
	return func(s *MemoryStore) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithTokenGenerator overrides token minting.
func WithTokenGenerator(gen func(nBytes int) string) MemoryStoreOption {
	return func(s *MemoryStore) {
		if gen != nil {
			s.newToken = gen
		}
	}
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		byID:       make(map[string]*AuthSession),
		byToken:    make(map[string]string),
		tokenBytes: token.DefaultBytes,
		newID:      ids.NewULID,
		newToken:   token.Generate,
		hash:       token.HashHex,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) HashToken(plainToken string) string {
	return s.hash(plainToken)
}

func (s *MemoryStore) Create(ctx context.Context, in CreateInput) (AuthSession, string, error) {
	if err := ctx.Err(); err != nil {
		return AuthSession{}, "", err
	}
	if in.TTL <= 0 {
		return AuthSession{}, "", TransitionError{Op: "session.Create", Kind: ErrInvalidArgument}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// Entropy and hashing happen outside the lock.
	id := s.newID(now)
	plain := s.newToken(s.tokenBytes)
	hash := s.hash(plain)

	rec := &AuthSession{
		ID:        id,
		TokenHash: hash,
		UserID:    strings.TrimSpace(in.UserID),
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(in.TTL),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; ok {
		return AuthSession{}, "", ConflictError{Field: "session_id"}
	}
	if _, ok := s.byToken[hash]; ok {
		return AuthSession{}, "", ConflictError{Field: "token"}
	}

	s.byID[id] = rec
	s.byToken[hash] = id

	return rec.clone(), plain, nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string, now time.Time) (AuthSession, error) {
	if err := ctx.Err(); err != nil {
		return AuthSession{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[sessionID]
	if !ok {
		return AuthSession{}, TransitionError{SessionID: sessionID, Kind: ErrNotFound}
	}
	return rec.At(now), nil
}

func (s *MemoryStore) FindByToken(ctx context.Context, plainToken string, now time.Time) (AuthSession, error) {
	if err := ctx.Err(); err != nil {
		return AuthSession{}, err
	}
	if plainToken == "" {
		return AuthSession{}, TransitionError{Kind: ErrNotFound}
	}
	hash := s.hash(plainToken)

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[hash]
	if !ok {
		return AuthSession{}, TransitionError{Kind: ErrNotFound}
	}
	rec, ok := s.byID[id]
	if !ok {
		// Index and primary are written together; a miss here is a bug.
		return AuthSession{}, TransitionError{SessionID: id, Kind: ErrNotFound}
	}
	return rec.At(now), nil
}

func (s *MemoryStore) CompareAndTransition(ctx context.Context, sessionID string, expected []Status, now time.Time, mutate Mutator) (AuthSession, error) {
	if err := ctx.Err(); err != nil {
		return AuthSession{}, err
	}
	if mutate == nil {
		return AuthSession{}, TransitionError{SessionID: sessionID, Kind: ErrInvalidArgument}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[sessionID]
	if !ok {
		return AuthSession{}, TransitionError{SessionID: sessionID, Kind: ErrNotFound}
	}

	if rec.ExpiredAt(now) {
		prev := rec.Status
		if prev.CanTransitionTo(StatusExpired) {
			rec.Status = StatusExpired
		}
		return AuthSession{}, TransitionError{SessionID: sessionID, Kind: ErrExpired, Current: prev}
	}

	if !slices.Contains(expected, rec.Status) {
		return AuthSession{}, TransitionError{SessionID: sessionID, Kind: ErrWrongState, Current: rec.Status}
	}

	next := rec.clone()
	if err := mutate(&next); err != nil {
		return AuthSession{}, err
	}
	if err := checkTransition(*rec, next); err != nil {
		return AuthSession{}, err
	}

	*rec = next
	return rec.clone(), nil
}

// checkTransition enforces the graph and the immutable fields.
func checkTransition(prev, next AuthSession) error {
	illegal := TransitionError{SessionID: prev.ID, Kind: ErrIllegalTransition, Current: prev.Status}

	switch {
	case next.ID != prev.ID,
		next.TokenHash != prev.TokenHash,
		!next.CreatedAt.Equal(prev.CreatedAt),
		!next.ExpiresAt.Equal(prev.ExpiresAt):
		return illegal
	case prev.UserID != "" && next.UserID != prev.UserID:
		return illegal
	case !prev.Status.CanTransitionTo(next.Status):
		return illegal
	case next.Status == StatusAuthenticated && (next.UserID == "" || next.AuthenticatedAt == nil):
		return illegal
	}
	return nil
}

func (s *MemoryStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, rec := range s.byID {
		if !rec.ExpiredAt(now) {
			continue
		}
		delete(s.byToken, rec.TokenHash)
		delete(s.byID, id)
		n++
	}
	return n, nil
}

func (s *MemoryStore) Remove(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[sessionID]
	if !ok {
		return TransitionError{SessionID: sessionID, Kind: ErrNotFound}
	}
	delete(s.byToken, rec.TokenHash)
	delete(s.byID, sessionID)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, now time.Time) ([]AuthSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]AuthSession, 0, len(s.byID))
	for _, rec := range s.byID {
		out = append(out, rec.At(now))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

var _ Store = (*MemoryStore)(nil)
