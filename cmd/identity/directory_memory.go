package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryDirectory is the in-process Directory implementation.
//
// Users live in a map keyed by normalized email with a secondary id index;
// both maps are guarded by one RWMutex so they can never disagree.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byEmail map[string]*User
	byID    map[string]string // id -> email_norm

	now   func() time.Time
	newID func(time.Time) string
}

// MemoryOption configures a MemoryDirectory.
type MemoryOption func(*MemoryDirectory)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) MemoryOption {
	return func(d *MemoryDirectory) {
		if now != nil {
			d.now = now
		}
	}
}

// WithIDGenerator overrides user id allocation (tests).
func WithIDGenerator(gen func(time.Time) string) MemoryOption {
	return func(d *MemoryDirectory) {
		if gen != nil {
			d.newID = gen
		}
	}
}

// NewMemoryDirectory constructs an empty directory.
func NewMemoryDirectory(opts ...MemoryOption) *MemoryDirectory {
	d := &MemoryDirectory{
		byEmail: make(map[string]*User),
		byID:    make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   NewULID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// RegisterOrGet implements Directory.
func (d *MemoryDirectory) RegisterOrGet(ctx context.Context, email, displayName string) (User, error) {
	const op = "identity.RegisterOrGet"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if !ValidEmail(email) {
		return User{}, invalid(op, "valid email is required")
	}

	email = strings.TrimSpace(email)
	norm := NormalizeEmail(email)

	d.mu.RLock()
	if u, ok := d.byEmail[norm]; ok {
		out := u.clone()
		d.mu.RUnlock()
		return out, nil
	}
	d.mu.RUnlock()

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = defaultDisplayName(email)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Re-check: another caller may have registered the same email meanwhile.
	if u, ok := d.byEmail[norm]; ok {
		return u.clone(), nil
	}

	now := d.now()
	id := d.newID(now)
	if _, taken := d.byID[id]; taken {
		return User{}, ConflictError{Op: op, Field: "id"}
	}

	u := &User{
		ID:          id,
		Email:       email,
		EmailNorm:   norm,
		DisplayName: displayName,
		CreatedAt:   now,
	}
	d.byEmail[norm] = u
	d.byID[id] = norm

	return u.clone(), nil
}

// ByEmail implements Directory.
func (d *MemoryDirectory) ByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.ByEmail"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, invalid(op, "email is required")
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byEmail[norm]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u.clone(), nil
}

// ByID implements Directory.
func (d *MemoryDirectory) ByID(ctx context.Context, id string) (User, error) {
	const op = "identity.ByID"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	u := d.lookupIDLocked(id)
	if u == nil {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u.clone(), nil
}

// All implements Directory.
func (d *MemoryDirectory) All(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	out := make([]User, 0, len(d.byEmail))
	for _, u := range d.byEmail {
		out = append(out, u.clone())
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// RecordLogin implements Directory.
func (d *MemoryDirectory) RecordLogin(ctx context.Context, userID, deviceID string, at time.Time) (User, error) {
	const op = "identity.RecordLogin"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if at.IsZero() {
		at = d.now()
	}
	deviceID = strings.TrimSpace(deviceID)

	d.mu.Lock()
	defer d.mu.Unlock()

	u := d.lookupIDLocked(userID)
	if u == nil {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}

	t := at
	u.LastLoginAt = &t
	if deviceID != "" && !u.HasDevice(deviceID) {
		u.DeviceIDs = append(u.DeviceIDs, deviceID)
	}
	return u.clone(), nil
}

// Len returns the number of registered users.
func (d *MemoryDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byEmail)
}

func (d *MemoryDirectory) lookupIDLocked(id string) *User {
	norm, ok := d.byID[strings.TrimSpace(id)]
	if !ok {
		return nil
	}
	return d.byEmail[norm]
}

var _ Directory = (*MemoryDirectory)(nil)
