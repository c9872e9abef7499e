package psychologists

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/shared"
)

// RepositoryPort defines data access methods for profiles.
type RepositoryPort interface {
	Get(ctx context.Context, id uuid.UUID) (Psychologist, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (Psychologist, error)
	List(ctx context.Context, page shared.PageRequest) ([]Psychologist, int, error)
	UpdateByUserID(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (Psychologist, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// RoleLinker changes role links inside a caller-owned transaction.
type RoleLinker interface {
	GrantInTx(ctx context.Context, tx rbac.TxRepository, actorID, userID uuid.UUID, code rbac.RoleCode, source rbac.LinkSource) (bool, error)
	RevokeInTx(ctx context.Context, tx rbac.TxRepository, actorID, userID uuid.UUID, code rbac.RoleCode, onlySource rbac.LinkSource) (bool, error)
	InvalidateUser(ctx context.Context, userID uuid.UUID) error
}

// Service manages psychologist profiles and keeps the psychologist role in
// step with them.
type Service struct {
	repo   RepositoryPort
	roles  RoleLinker
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, roles RoleLinker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, logger: logger}
}

// Create adds a profile for input.UserID and grants the psychologist role in
// the same transaction. A role the user already holds is left as it is.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, input CreateInput) (Psychologist, error) {
	var (
		created Psychologist
		granted bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		granted, err = s.roles.GrantInTx(ctx, tx.Graph(), actorID, input.UserID, rbac.RolePsychologist, rbac.SourceProfile)
		if err != nil {
			return err
		}
		created, err = tx.Insert(ctx, input)
		if err != nil {
			return err
		}
		return tx.Graph().RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "psychologist.create",
			Entity:   "psychologist",
			EntityID: created.ID.String(),
			Meta:     map[string]any{"user_id": input.UserID, "role_granted": granted},
		})
	})
	if err != nil {
		return Psychologist{}, err
	}
	if granted {
		if err := s.roles.InvalidateUser(ctx, input.UserID); err != nil {
			return Psychologist{}, err
		}
	}
	s.logger.Info("psychologist created",
		slog.String("psychologist_id", created.ID.String()),
		slog.String("user_id", input.UserID.String()),
		slog.Bool("role_granted", granted))
	return created, nil
}

// Delete removes the profile and revokes the psychologist role when the
// profile was what granted it.
func (s *Service) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	var (
		deleted Psychologist
		revoked bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		deleted, err = tx.Delete(ctx, id)
		if err != nil {
			return err
		}
		revoked, err = s.roles.RevokeInTx(ctx, tx.Graph(), actorID, deleted.UserID, rbac.RolePsychologist, rbac.SourceProfile)
		if err != nil {
			return err
		}
		return tx.Graph().RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "psychologist.delete",
			Entity:   "psychologist",
			EntityID: id.String(),
			Meta:     map[string]any{"user_id": deleted.UserID, "role_revoked": revoked},
		})
	})
	if err != nil {
		return err
	}
	if revoked {
		if err := s.roles.InvalidateUser(ctx, deleted.UserID); err != nil {
			return err
		}
	}
	s.logger.Info("psychologist deleted",
		slog.String("psychologist_id", id.String()),
		slog.Bool("role_revoked", revoked))
	return nil
}

// Get returns one profile.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Psychologist, error) {
	return s.repo.Get(ctx, id)
}

// ByUserID returns the profile owned by userID.
func (s *Service) ByUserID(ctx context.Context, userID uuid.UUID) (Psychologist, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// List returns one page of profiles.
func (s *Service) List(ctx context.Context, page shared.PageRequest) ([]Psychologist, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if items == nil {
		items = []Psychologist{}
	}
	return items, shared.NewPagination(page.Page, page.PerPage, total), nil
}

// UpdateOwn changes the profile owned by userID.
func (s *Service) UpdateOwn(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (Psychologist, error) {
	return s.repo.UpdateByUserID(ctx, userID, update)
}
