package applications

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/shared"
)

// RepositoryPort defines data access methods for applications.
type RepositoryPort interface {
	Insert(ctx context.Context, userID *uuid.UUID, req SubmitRequest) (Application, error)
	Get(ctx context.Context, id uuid.UUID) (Application, error)
	List(ctx context.Context, filter ListFilter) ([]Application, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, appointmentID *uuid.UUID) (Application, error)
}

// PermissionChecker answers ad-hoc permission questions.
type PermissionChecker interface {
	UserHasPermission(ctx context.Context, userID uuid.UUID, code rbac.PermissionCode) (bool, error)
}

// Service handles intake applications.
type Service struct {
	repo   RepositoryPort
	perms  PermissionChecker
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, perms PermissionChecker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, perms: perms, logger: logger}
}

// Submit stores an application. principal is nil for anonymous submissions.
func (s *Service) Submit(ctx context.Context, principal *shared.Principal, req SubmitRequest) (Application, error) {
	req.Email = shared.NormalizeEmail(req.Email)
	req.FirstName = shared.NormalizeName(req.FirstName)
	req.LastName = shared.NormalizeName(req.LastName)
	var userID *uuid.UUID
	if principal != nil {
		id := principal.UserID
		userID = &id
	}
	app, err := s.repo.Insert(ctx, userID, req)
	if err != nil {
		return Application{}, err
	}
	s.logger.Info("application submitted", slog.String("application_id", app.ID.String()), slog.Bool("anonymous", userID == nil))
	return app, nil
}

// List returns one page of applications.
func (s *Service) List(ctx context.Context, status Status, page shared.PageRequest) ([]Application, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, ListFilter{Status: status, Page: page})
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if items == nil {
		items = []Application{}
	}
	return items, shared.NewPagination(page.Page, page.PerPage, total), nil
}

// Get returns an application to its submitter or to holders of
// appointments.view_all.
func (s *Service) Get(ctx context.Context, principal shared.Principal, id uuid.UUID) (Application, error) {
	app, err := s.repo.Get(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if app.UserID != nil && *app.UserID == principal.UserID {
		return app, nil
	}
	ok, err := s.perms.UserHasPermission(ctx, principal.UserID, rbac.PermAppointmentsViewAll)
	if err != nil {
		return Application{}, err
	}
	if !ok {
		s.logger.Warn("application ownership denied",
			slog.String("application_id", id.String()),
			slog.String("user_id", principal.UserID.String()))
		return Application{}, shared.ErrForbidden
	}
	return app, nil
}

// SetStatus moves an open application to status.
func (s *Service) SetStatus(ctx context.Context, actorID, id uuid.UUID, req StatusRequest) (Application, error) {
	app, err := s.repo.UpdateStatus(ctx, id, req.Status, req.AppointmentID)
	if err != nil {
		return Application{}, err
	}
	s.logger.Info("application status changed",
		slog.String("application_id", id.String()),
		slog.String("status", string(app.Status)),
		slog.String("actor_id", actorID.String()))
	return app, nil
}
