package authapi

import (
	"qrauth/cmd/identity"
	"qrauth/cmd/internal/auth/session"
)

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
		DeviceCount: len(u.DeviceIDs),
	}
}

// toAdminSession never includes the token hash.
func toAdminSession(s session.AuthSession) adminSessionResponse {
	return adminSessionResponse{
		SessionID:       s.ID,
		Status:          s.Status.String(),
		UserID:          s.UserID,
		DeviceID:        s.DeviceID,
		CreatedAt:       s.CreatedAt,
		ExpiresAt:       s.ExpiresAt,
		AuthenticatedAt: s.AuthenticatedAt,
	}
}
