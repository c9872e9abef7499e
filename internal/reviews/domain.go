package reviews

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/shared"
)

var (
	// ErrAlreadyReviewed is returned for a second review of one appointment.
	ErrAlreadyReviewed = fmt.Errorf("reviews: appointment already reviewed: %w", shared.ErrAlreadyExists)
	// ErrNotReviewable is returned when the appointment has not taken place.
	ErrNotReviewable = fmt.Errorf("reviews: appointment not done: %w", shared.ErrInvalidState)
)

// Review is a patient's rating of a completed appointment.
type Review struct {
	ID             uuid.UUID `json:"id"`
	AppointmentID  uuid.UUID `json:"appointment_id"`
	AuthorID       uuid.UUID `json:"author_id"`
	PsychologistID uuid.UUID `json:"psychologist_id"`
	Rating         int       `json:"rating"`
	Comment        string    `json:"comment,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateRequest is the review form.
type CreateRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id" validate:"required"`
	Rating        int       `json:"rating" validate:"required,min=1,max=5"`
	Comment       string    `json:"comment" validate:"max=2000"`
}

// ListFilter narrows List results.
type ListFilter struct {
	PsychologistID *uuid.UUID
	Page           shared.PageRequest
}
