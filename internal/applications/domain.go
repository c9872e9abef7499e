package applications

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/shared"
)

var (
	// ErrNotFound is returned when no application matches.
	ErrNotFound = fmt.Errorf("applications: application %w", shared.ErrNotFound)
	// ErrClosed is returned when a completed or rejected application is changed.
	ErrClosed = fmt.Errorf("applications: application closed: %w", shared.ErrInvalidState)
)

// Status is the triage state of an application.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// Open reports whether the application may still change status.
func (s Status) Open() bool {
	return s == StatusNew || s == StatusInProgress
}

// Application is an intake request submitted through the public form.
type Application struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             *uuid.UUID `json:"user_id,omitempty"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	Email              string     `json:"email"`
	Phone              string     `json:"phone,omitempty"`
	ProblemDescription string     `json:"problem_description,omitempty"`
	PreferredCampus    string     `json:"preferred_campus,omitempty"`
	UniversityStatus   string     `json:"university_status,omitempty"`
	Status             Status     `json:"status"`
	AppointmentID      *uuid.UUID `json:"appointment_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// SubmitRequest is the public intake form.
type SubmitRequest struct {
	FirstName          string `json:"first_name" validate:"required,max=100"`
	LastName           string `json:"last_name" validate:"required,max=100"`
	Email              string `json:"email" validate:"required,email,max=254"`
	Phone              string `json:"phone" validate:"omitempty,e164"`
	ProblemDescription string `json:"problem_description" validate:"max=4000"`
	PreferredCampus    string `json:"preferred_campus" validate:"max=100"`
	UniversityStatus   string `json:"university_status" validate:"max=100"`
}

// StatusRequest moves an application through triage.
type StatusRequest struct {
	Status        Status     `json:"status" validate:"required,oneof=new in_progress completed rejected"`
	AppointmentID *uuid.UUID `json:"appointment_id"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Status Status
	Page   shared.PageRequest
}
