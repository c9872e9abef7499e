package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/psychologists"
	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/shared"
)

// RepositoryPort defines data access methods for appointments.
type RepositoryPort interface {
	Insert(ctx context.Context, in NewAppointment) (Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (Appointment, error)
	List(ctx context.Context, filter ListFilter) ([]Appointment, int, error)
	Transition(ctx context.Context, id uuid.UUID, from []Status, to Status, comment string, at time.Time) (Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, scheduled time.Time, remind *time.Time, venue *string, comment string, at time.Time) (Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]Reminder, error)
}

// Profiles resolves psychologist profiles.
type Profiles interface {
	Get(ctx context.Context, id uuid.UUID) (psychologists.Psychologist, error)
	ByUserID(ctx context.Context, userID uuid.UUID) (psychologists.Psychologist, error)
}

// PermissionChecker answers ad-hoc permission questions.
type PermissionChecker interface {
	UserHasPermission(ctx context.Context, userID uuid.UUID, code rbac.PermissionCode) (bool, error)
}

// Service applies appointment lifecycle and ownership rules.
type Service struct {
	repo      RepositoryPort
	profiles  Profiles
	perms     PermissionChecker
	lookahead time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service instance. lookahead is how long before the
// appointment the reminder fires.
func NewService(repo RepositoryPort, profiles Profiles, perms PermissionChecker, lookahead time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, profiles: profiles, perms: perms, lookahead: lookahead, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create books an appointment with the caller as patient.
func (s *Service) Create(ctx context.Context, principal shared.Principal, req CreateRequest) (Appointment, error) {
	now := s.now().UTC()
	if !req.ScheduledTime.After(now) {
		return Appointment{}, fmt.Errorf("%w: scheduled_time must be in the future", shared.ErrValidation)
	}
	profile, err := s.profiles.Get(ctx, req.PsychologistID)
	if err != nil {
		return Appointment{}, err
	}
	if profile.UserID == principal.UserID {
		return Appointment{}, fmt.Errorf("%w: cannot book an appointment with yourself", shared.ErrValidation)
	}
	appt, err := s.repo.Insert(ctx, NewAppointment{
		PatientID:      principal.UserID,
		PsychologistID: profile.ID,
		Type:           req.Type,
		Reason:         req.Reason,
		ScheduledTime:  req.ScheduledTime.UTC(),
		RemindTime:     s.remindTime(req.ScheduledTime),
		Venue:          req.Venue,
		At:             now,
	})
	if err != nil {
		return Appointment{}, err
	}
	s.logger.Info("appointment created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("patient_id", principal.UserID.String()))
	return appt, nil
}

// List returns every appointment to holders of appointments.view_all and the
// caller's own appointments to everyone else.
func (s *Service) List(ctx context.Context, principal shared.Principal, status Status, page shared.PageRequest) ([]Appointment, shared.Pagination, error) {
	filter := ListFilter{Status: status, Page: page}
	all, err := s.perms.UserHasPermission(ctx, principal.UserID, rbac.PermAppointmentsViewAll)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if !all {
		filter.Participant = &principal.UserID
	}
	return s.list(ctx, filter)
}

// Pending lists pending requests addressed to the caller's profile.
func (s *Service) Pending(ctx context.Context, principal shared.Principal, page shared.PageRequest) ([]Appointment, shared.Pagination, error) {
	profile, err := s.profiles.ByUserID(ctx, principal.UserID)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return s.list(ctx, ListFilter{PsychologistID: &profile.ID, Status: StatusPending, Page: page})
}

func (s *Service) list(ctx context.Context, filter ListFilter) ([]Appointment, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if items == nil {
		items = []Appointment{}
	}
	return items, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total), nil
}

// Get returns an appointment the caller takes part in, or any appointment to
// holders of appointments.view_all.
func (s *Service) Get(ctx context.Context, principal shared.Principal, id uuid.UUID) (Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if err := s.authorize(ctx, principal, appt, partyAny, rbac.PermAppointmentsViewAll); err != nil {
		return Appointment{}, err
	}
	return appt, nil
}

// Accept confirms a pending request as its psychologist.
func (s *Service) Accept(ctx context.Context, principal shared.Principal, id uuid.UUID, req DecisionRequest) (Appointment, error) {
	return s.transition(ctx, principal, id, partyPsychologist, StatusAccepted, req.Comment)
}

// Reject declines a pending request as its psychologist.
func (s *Service) Reject(ctx context.Context, principal shared.Principal, id uuid.UUID, req DecisionRequest) (Appointment, error) {
	return s.transition(ctx, principal, id, partyPsychologist, StatusRejected, req.Comment)
}

// Cancel withdraws a pending or accepted appointment as its patient.
func (s *Service) Cancel(ctx context.Context, principal shared.Principal, id uuid.UUID, req DecisionRequest) (Appointment, error) {
	return s.transition(ctx, principal, id, partyPatient, StatusCancelled, req.Comment)
}

// Confirm marks an accepted appointment as done as its patient.
func (s *Service) Confirm(ctx context.Context, principal shared.Principal, id uuid.UUID) (Appointment, error) {
	return s.transition(ctx, principal, id, partyPatient, StatusDone, "")
}

// Reschedule moves a pending or accepted appointment as its psychologist.
func (s *Service) Reschedule(ctx context.Context, principal shared.Principal, id uuid.UUID, req RescheduleRequest) (Appointment, error) {
	now := s.now().UTC()
	if !req.ScheduledTime.After(now) {
		return Appointment{}, fmt.Errorf("%w: scheduled_time must be in the future", shared.ErrValidation)
	}
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if err := s.authorize(ctx, principal, appt, partyPsychologist, rbac.PermAppointmentsEditAll); err != nil {
		return Appointment{}, err
	}
	return s.repo.Reschedule(ctx, id, req.ScheduledTime.UTC(), s.remindTime(req.ScheduledTime), req.Venue, req.Comment, now)
}

// Delete removes an appointment.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// ClaimDueReminders hands out reminders whose time has come.
func (s *Service) ClaimDueReminders(ctx context.Context, limit int) ([]Reminder, error) {
	return s.repo.ClaimDueReminders(ctx, s.now().UTC(), limit)
}

func (s *Service) transition(ctx context.Context, principal shared.Principal, id uuid.UUID, party party, to Status, comment string) (Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if err := s.authorize(ctx, principal, appt, party, rbac.PermAppointmentsEditAll); err != nil {
		return Appointment{}, err
	}
	if !CanTransition(appt.Status, to) {
		return Appointment{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
	}
	updated, err := s.repo.Transition(ctx, id, SourcesFor(to), to, comment, s.now().UTC())
	if err != nil {
		return Appointment{}, err
	}
	s.logger.Info("appointment status changed",
		slog.String("appointment_id", id.String()),
		slog.String("from", string(appt.Status)),
		slog.String("to", string(to)),
		slog.String("actor_id", principal.UserID.String()))
	return updated, nil
}

type party int

const (
	partyAny party = iota
	partyPatient
	partyPsychologist
)

// authorize lets the matching participant through, or anyone holding override.
func (s *Service) authorize(ctx context.Context, principal shared.Principal, appt Appointment, p party, override rbac.PermissionCode) error {
	if (p == partyAny || p == partyPatient) && appt.PatientID == principal.UserID {
		return nil
	}
	if p == partyAny || p == partyPsychologist {
		profile, err := s.profiles.Get(ctx, appt.PsychologistID)
		if err == nil && profile.UserID == principal.UserID {
			return nil
		}
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
	}
	ok, err := s.perms.UserHasPermission(ctx, principal.UserID, override)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn("appointment ownership denied",
			slog.String("appointment_id", appt.ID.String()),
			slog.String("user_id", principal.UserID.String()))
		return shared.ErrForbidden
	}
	return nil
}

func (s *Service) remindTime(scheduled time.Time) *time.Time {
	if s.lookahead <= 0 {
		return nil
	}
	t := scheduled.UTC().Add(-s.lookahead)
	return &t
}
