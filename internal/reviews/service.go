package reviews

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/appointments"
	"github.com/psychohelp/psychohelp/internal/shared"
)

// RepositoryPort defines data access methods for reviews.
type RepositoryPort interface {
	Insert(ctx context.Context, authorID uuid.UUID, req CreateRequest) (Review, error)
	List(ctx context.Context, filter ListFilter) ([]Review, int, error)
}

// AppointmentFinder loads appointments without ownership checks.
type AppointmentFinder interface {
	Get(ctx context.Context, id uuid.UUID) (appointments.Appointment, error)
}

// Service handles patient reviews.
type Service struct {
	repo         RepositoryPort
	appointments AppointmentFinder
	logger       *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, appointments AppointmentFinder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, appointments: appointments, logger: logger}
}

// Create stores a review written by the patient of a done appointment.
func (s *Service) Create(ctx context.Context, principal shared.Principal, req CreateRequest) (Review, error) {
	appt, err := s.appointments.Get(ctx, req.AppointmentID)
	if err != nil {
		return Review{}, err
	}
	if appt.PatientID != principal.UserID {
		s.logger.Warn("review ownership denied",
			slog.String("appointment_id", appt.ID.String()),
			slog.String("user_id", principal.UserID.String()))
		return Review{}, shared.ErrForbidden
	}
	if appt.Status != appointments.StatusDone {
		return Review{}, ErrNotReviewable
	}
	rv, err := s.repo.Insert(ctx, principal.UserID, req)
	if err != nil {
		return Review{}, err
	}
	s.logger.Info("review created", slog.String("review_id", rv.ID.String()), slog.Int("rating", rv.Rating))
	return rv, nil
}

// List returns one page of all reviews.
func (s *Service) List(ctx context.Context, page shared.PageRequest) ([]Review, shared.Pagination, error) {
	return s.list(ctx, ListFilter{Page: page})
}

// ForPsychologist returns one page of reviews of a profile.
func (s *Service) ForPsychologist(ctx context.Context, psychologistID uuid.UUID, page shared.PageRequest) ([]Review, shared.Pagination, error) {
	return s.list(ctx, ListFilter{PsychologistID: &psychologistID, Page: page})
}

func (s *Service) list(ctx context.Context, filter ListFilter) ([]Review, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if items == nil {
		items = []Review{}
	}
	return items, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total), nil
}
