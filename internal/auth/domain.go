package auth

import (
	"time"

	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/users"
)

// RegisterRequest is the sign-up payload.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	FirstName   string `json:"first_name" validate:"required,max=100"`
	MiddleName  string `json:"middle_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"required,max=100"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,e164"`
	SocialMedia string `json:"social_media" validate:"max=255"`
}

// LoginRequest carries email and password credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest carries a refresh credential when no cookie is used.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by login, register and refresh.
type TokenResponse struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func newTokenResponse(p Pair) TokenResponse {
	return TokenResponse{
		AccessToken:      p.Access.Value,
		TokenType:        "Bearer",
		ExpiresAt:        p.Access.ExpiresAt,
		RefreshToken:     p.Refresh.Value,
		RefreshExpiresAt: p.Refresh.ExpiresAt,
	}
}

// Session is the authenticated caller with its effective authorisation.
type Session struct {
	User        users.User         `json:"user"`
	Roles       []rbac.UserRole    `json:"roles"`
	Permissions rbac.PermissionSet `json:"permissions"`
}
