package appointments

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/shared"
)

var (
	// ErrNotFound is returned when no appointment matches.
	ErrNotFound = fmt.Errorf("appointments: appointment %w", shared.ErrNotFound)
	// ErrInvalidTransition is returned when the status does not allow the change.
	ErrInvalidTransition = fmt.Errorf("appointments: status change %w", shared.ErrInvalidState)
)

// Type is the consultation format.
type Type string

const (
	TypeOffline Type = "offline"
	TypeOnline  Type = "online"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusDone      Status = "done"
)

// transitions lists the states each target may be reached from.
var transitions = map[Status][]Status{
	StatusAccepted:  {StatusPending},
	StatusRejected:  {StatusPending},
	StatusCancelled: {StatusPending, StatusAccepted},
	StatusDone:      {StatusAccepted},
}

// reschedulable states keep their status when moved.
var reschedulable = []Status{StatusPending, StatusAccepted}

// SourcesFor returns the states from which to may be entered.
func SourcesFor(to Status) []Status {
	return append([]Status(nil), transitions[to]...)
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Appointment is a booked consultation.
type Appointment struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	PsychologistID uuid.UUID  `json:"psychologist_id"`
	Type           Type       `json:"type"`
	Reason         string     `json:"reason,omitempty"`
	Status         Status     `json:"status"`
	ScheduledTime  time.Time  `json:"scheduled_time"`
	RemindTime     *time.Time `json:"remind_time,omitempty"`
	RemindedAt     *time.Time `json:"reminded_at,omitempty"`
	LastChangeTime time.Time  `json:"last_change_time"`
	Venue          string     `json:"venue,omitempty"`
	Comment        string     `json:"comment,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CreateRequest books an appointment for the caller.
type CreateRequest struct {
	PsychologistID uuid.UUID `json:"psychologist_id" validate:"required"`
	Type           Type      `json:"type" validate:"required,oneof=offline online"`
	Reason         string    `json:"reason" validate:"max=2000"`
	ScheduledTime  time.Time `json:"scheduled_time" validate:"required"`
	Venue          string    `json:"venue" validate:"max=255"`
}

// DecisionRequest carries an optional comment for accept, reject and cancel.
type DecisionRequest struct {
	Comment string `json:"comment" validate:"max=2000"`
}

// RescheduleRequest moves an appointment.
type RescheduleRequest struct {
	ScheduledTime time.Time `json:"scheduled_time" validate:"required"`
	Venue         *string   `json:"venue" validate:"omitempty,max=255"`
	Comment       string    `json:"comment" validate:"max=2000"`
}

// ListFilter narrows List results. Participant matches appointments where the
// user is the patient or owns the psychologist profile.
type ListFilter struct {
	Participant    *uuid.UUID
	PsychologistID *uuid.UUID
	Status         Status
	Page           shared.PageRequest
}

// NewAppointment is what the repository inserts.
type NewAppointment struct {
	PatientID      uuid.UUID
	PsychologistID uuid.UUID
	Type           Type
	Reason         string
	ScheduledTime  time.Time
	RemindTime     *time.Time
	Venue          string
	At             time.Time
}

// Reminder is a claimed reminder ready to be mailed.
type Reminder struct {
	AppointmentID    uuid.UUID `json:"appointment_id"`
	PatientEmail     string    `json:"patient_email"`
	PatientName      string    `json:"patient_name"`
	PsychologistName string    `json:"psychologist_name"`
	ScheduledTime    time.Time `json:"scheduled_time"`
	Type             Type      `json:"type"`
	Venue            string    `json:"venue,omitempty"`
}
