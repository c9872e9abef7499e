package users

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/shared"
)

var (
	// ErrUserNotFound is returned when no account matches.
	ErrUserNotFound = fmt.Errorf("users: user %w", shared.ErrNotFound)
	// ErrEmailTaken is returned when the normalised email is already registered.
	ErrEmailTaken = fmt.Errorf("users: email %w", shared.ErrAlreadyExists)
)

// User represents a registered account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	MiddleName   string    `json:"middle_name,omitempty"`
	LastName     string    `json:"last_name"`
	PhoneNumber  string    `json:"phone_number,omitempty"`
	SocialMedia  string    `json:"social_media,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FullName joins the non-empty name parts.
func (u User) FullName() string {
	name := u.FirstName
	for _, part := range []string{u.MiddleName, u.LastName} {
		if part != "" {
			name += " " + part
		}
	}
	return name
}

// CreateInput carries a new account. PasswordHash is produced by the caller.
type CreateInput struct {
	Email        string
	PasswordHash string
	FirstName    string
	MiddleName   string
	LastName     string
	PhoneNumber  string
	SocialMedia  string
}

// ProfileUpdate changes the listed fields; nil fields are left untouched.
type ProfileUpdate struct {
	FirstName   *string `json:"first_name" validate:"omitempty,min=1,max=100"`
	MiddleName  *string `json:"middle_name" validate:"omitempty,max=100"`
	LastName    *string `json:"last_name" validate:"omitempty,min=1,max=100"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,e164"`
	SocialMedia *string `json:"social_media" validate:"omitempty,max=255"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Query string
	Page  shared.PageRequest
}
