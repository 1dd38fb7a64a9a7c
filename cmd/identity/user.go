package identity

import (
	"context"
	"slices"
	"time"
)

// User is the principal a login session resolves to.
type User struct {
	ID          string
	Email       string
	EmailNorm   string
	DisplayName string

	CreatedAt   time.Time
	LastLoginAt *time.Time

	// DeviceIDs lists devices that completed a login as this user, in first-seen order.
	DeviceIDs []string
}

// HasDevice reports whether deviceID has authenticated as u before.
func (u User) HasDevice(deviceID string) bool {
	return slices.Contains(u.DeviceIDs, deviceID)
}

func (u User) clone() User {
	out := u
	out.DeviceIDs = slices.Clone(u.DeviceIDs)
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		out.LastLoginAt = &t
	}
	return out
}

// Directory is the user lookup boundary consumed by the login state machine
// and by account-management surfaces.
type Directory interface {
	// RegisterOrGet returns the existing user for email or creates one.
	// The display name is ignored when the user already exists.
	RegisterOrGet(ctx context.Context, email, displayName string) (User, error)

	// ByEmail looks a user up by case-insensitive email.
	ByEmail(ctx context.Context, email string) (User, error)

	// ByID looks a user up by id.
	ByID(ctx context.Context, id string) (User, error)

	// All returns every user ordered by creation time.
	All(ctx context.Context) ([]User, error)

	// RecordLogin stamps the last-login time and adds deviceID to the user's
	// device set when absent. An empty deviceID only updates the timestamp.
	RecordLogin(ctx context.Context, userID, deviceID string, at time.Time) (User, error)
}
