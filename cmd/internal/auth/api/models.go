package authapi

import (
	"time"

	loginv1 "qrauth/shared/contracts/login/v1"
)

type issueRequest struct {
	// Email pre-binds the session to an existing user (optional).
	Email      string `json:"email"       validate:"omitempty,email,max=254"`
	TTLSeconds int64  `json:"ttl_seconds" validate:"gte=0,lte=86400"`
}

type scanRequest struct {
	Token    string `json:"token"     validate:"required,max=4096"`
	DeviceID string `json:"device_id" validate:"required,max=128"`
}

type confirmRequest struct {
	Token    string `json:"token"     validate:"required,max=4096"`
	DeviceID string `json:"device_id" validate:"omitempty,max=128"`
	Email    string `json:"email"     validate:"required,email,max=254"`
}

// sessionTokenRequest is shared by confirm-direct and cancel.
type sessionTokenRequest struct {
	SessionID string `json:"session_id" validate:"required,max=64"`
	Token     string `json:"token"      validate:"required,max=4096"`
}

type registerUserRequest struct {
	Email       string `json:"email"        validate:"required,email,max=254"`
	DisplayName string `json:"display_name" validate:"omitempty,max=128"`
}

type userResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	DeviceCount int        `json:"device_count"`
}

type issueResponse struct {
	SessionID string            `json:"session_id"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	VerifyURL string            `json:"verify_url"`
	QR        loginv1.QRPayload `json:"qr"`
}

type scanResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

type confirmResponse struct {
	SessionID string       `json:"session_id"`
	User      userResponse `json:"user"`
}

type confirmDirectResponse struct {
	SessionID string `json:"session_id"`
	Confirmed bool   `json:"confirmed"`
}

type cancelResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

type statusResponse struct {
	SessionID     string        `json:"session_id"`
	Status        string        `json:"status"`
	Authenticated bool          `json:"authenticated"`
	ExpiresAt     time.Time     `json:"expires_at"`
	User          *userResponse `json:"user,omitempty"`
}

type usersResponse struct {
	Users []userResponse `json:"users"`
}

type adminSessionResponse struct {
	SessionID       string     `json:"session_id"`
	Status          string     `json:"status"`
	UserID          string     `json:"user_id,omitempty"`
	DeviceID        string     `json:"device_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	AuthenticatedAt *time.Time `json:"authenticated_at,omitempty"`
}

type adminSessionsResponse struct {
	Sessions []adminSessionResponse `json:"sessions"`
}
