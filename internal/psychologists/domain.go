package psychologists

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/shared"
)

var (
	// ErrNotFound is returned when no profile matches.
	ErrNotFound = fmt.Errorf("psychologists: profile %w", shared.ErrNotFound)
	// ErrProfileExists is returned when the user already has a profile.
	ErrProfileExists = fmt.Errorf("psychologists: profile %w", shared.ErrAlreadyExists)
	// ErrProfileInUse is returned when appointments still reference the profile.
	ErrProfileInUse = fmt.Errorf("psychologists: profile has appointments: %w", shared.ErrInvalidState)
)

// Psychologist is a consulting profile. It has its own id; UserID links it to
// the account that owns it.
type Psychologist struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Experience       string    `json:"experience"`
	Qualification    string    `json:"qualification"`
	ConsultAreas     string    `json:"consult_areas"`
	Description      string    `json:"description"`
	ShortDescription string    `json:"short_description"`
	Office           string    `json:"office"`
	Education        string    `json:"education"`
	Photo            string    `json:"photo,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CreateInput describes a new profile.
type CreateInput struct {
	UserID           uuid.UUID `json:"user_id" validate:"required"`
	Experience       string    `json:"experience" validate:"max=255"`
	Qualification    string    `json:"qualification" validate:"max=255"`
	ConsultAreas     string    `json:"consult_areas" validate:"max=1000"`
	Description      string    `json:"description" validate:"max=5000"`
	ShortDescription string    `json:"short_description" validate:"max=500"`
	Office           string    `json:"office" validate:"max=255"`
	Education        string    `json:"education" validate:"max=1000"`
	Photo            string    `json:"photo" validate:"omitempty,url,max=1024"`
}

// ProfileUpdate changes the listed fields; nil fields are left untouched.
type ProfileUpdate struct {
	Experience       *string `json:"experience" validate:"omitempty,max=255"`
	Qualification    *string `json:"qualification" validate:"omitempty,max=255"`
	ConsultAreas     *string `json:"consult_areas" validate:"omitempty,max=1000"`
	Description      *string `json:"description" validate:"omitempty,max=5000"`
	ShortDescription *string `json:"short_description" validate:"omitempty,max=500"`
	Office           *string `json:"office" validate:"omitempty,max=255"`
	Education        *string `json:"education" validate:"omitempty,max=1000"`
	Photo            *string `json:"photo" validate:"omitempty,url,max=1024"`
}
