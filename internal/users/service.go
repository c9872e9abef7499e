package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	FindByID(ctx context.Context, id uuid.UUID) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context, filter ListFilter) ([]User, int, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (User, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// RoleGranter links roles inside a caller-owned transaction.
type RoleGranter interface {
	GrantInTx(ctx context.Context, tx rbac.TxRepository, actorID, userID uuid.UUID, code rbac.RoleCode, source rbac.LinkSource) (bool, error)
	InvalidateUser(ctx context.Context, userID uuid.UUID) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	roles  RoleGranter
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, roles RoleGranter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, logger: logger}
}

// Create inserts the account and grants the default user role in the same
// transaction, so no account exists without it.
func (s *Service) Create(ctx context.Context, input CreateInput) (User, error) {
	input.Email = shared.NormalizeEmail(input.Email)
	input.FirstName = shared.NormalizeName(input.FirstName)
	input.MiddleName = shared.NormalizeName(input.MiddleName)
	input.LastName = shared.NormalizeName(input.LastName)
	input.PhoneNumber = strings.TrimSpace(input.PhoneNumber)
	input.SocialMedia = strings.TrimSpace(input.SocialMedia)
	if input.Email == "" || input.PasswordHash == "" || input.FirstName == "" || input.LastName == "" {
		return User{}, fmt.Errorf("%w: email, password and name are required", shared.ErrValidation)
	}

	var created User
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		user, err := tx.InsertUser(ctx, input)
		if err != nil {
			return err
		}
		if _, err := s.roles.GrantInTx(ctx, tx.Graph(), user.ID, user.ID, rbac.RoleUser, rbac.SourceManual); err != nil {
			return fmt.Errorf("users: grant default role: %w", err)
		}
		created = user
		return nil
	})
	if err != nil {
		return User{}, err
	}
	if err := s.roles.InvalidateUser(ctx, created.ID); err != nil {
		return User{}, err
	}
	s.logger.Info("user created", slog.String("user_id", created.ID.String()))
	return created, nil
}

// Get returns the user with id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// GetByEmail looks up a user by email after normalisation.
func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.FindByEmail(ctx, shared.NormalizeEmail(email))
}

// List returns one page of users.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]User, shared.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if users == nil {
		users = []User{}
	}
	return users, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total), nil
}

// UpdateProfile changes the caller's own profile fields.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (User, error) {
	for _, field := range []**string{&update.FirstName, &update.MiddleName, &update.LastName} {
		if *field != nil {
			v := shared.NormalizeName(**field)
			*field = &v
		}
	}
	if (update.FirstName != nil && *update.FirstName == "") || (update.LastName != nil && *update.LastName == "") {
		return User{}, fmt.Errorf("%w: name cannot be blank", shared.ErrValidation)
	}
	return s.repo.UpdateProfile(ctx, id, update)
}
