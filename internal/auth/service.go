package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/shared"
	"github.com/psychohelp/psychohelp/internal/users"
)

// Accounts is the user store seen by authentication.
type Accounts interface {
	Create(ctx context.Context, input users.CreateInput) (users.User, error)
	Get(ctx context.Context, id uuid.UUID) (users.User, error)
	GetByEmail(ctx context.Context, email string) (users.User, error)
}

// Grants reads the caller's roles and permissions.
type Grants interface {
	RolesOf(ctx context.Context, userID uuid.UUID) ([]rbac.UserRole, error)
	PermissionsOf(ctx context.Context, userID uuid.UUID) (rbac.PermissionSet, error)
}

// Service wraps authentication business rules.
type Service struct {
	accounts Accounts
	grants   Grants
	tokens   *Authenticator
	logger   *slog.Logger
	cost     int
	// dummyHash keeps unknown-email logins as slow as wrong-password ones.
	dummyHash []byte
}

// NewService constructs a new Service.
func NewService(accounts Accounts, grants Grants, tokens *Authenticator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{accounts: accounts, grants: grants, tokens: tokens, logger: logger, cost: bcrypt.DefaultCost}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("psychohelp-dummy-password"), s.cost)
	return s
}

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func (s *Service) WithBcryptCost(cost int) *Service {
	s.cost = cost
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("psychohelp-dummy-password"), cost)
	return s
}

// Register creates an account holding the default role and signs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (users.User, Pair, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return users.User{}, Pair{}, fmt.Errorf("auth: hash password: %w", err)
	}
	user, err := s.accounts.Create(ctx, users.CreateInput{
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		MiddleName:   req.MiddleName,
		LastName:     req.LastName,
		PhoneNumber:  req.PhoneNumber,
		SocialMedia:  req.SocialMedia,
	})
	if err != nil {
		return users.User{}, Pair{}, err
	}
	pair, err := s.tokens.Codec().IssuePair(user.ID)
	if err != nil {
		return users.User{}, Pair{}, err
	}
	return user, pair, nil
}

// Login validates email/password credentials and issues a token pair. Every
// credential failure is shared.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, req LoginRequest) (users.User, Pair, error) {
	user, err := s.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return users.User{}, Pair{}, err
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
		return users.User{}, Pair{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return users.User{}, Pair{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return users.User{}, Pair{}, shared.ErrInvalidCredentials
	}
	pair, err := s.tokens.Codec().IssuePair(user.ID)
	if err != nil {
		return users.User{}, Pair{}, err
	}
	s.logger.Info("login", slog.String("user_id", user.ID.String()))
	return user, pair, nil
}

// Refresh rotates a refresh credential for an account that is still active.
func (s *Service) Refresh(ctx context.Context, raw string) (Pair, error) {
	pair, err := s.tokens.Refresh(ctx, raw)
	if err != nil {
		if errors.Is(err, ErrInvalid) {
			return Pair{}, fmt.Errorf("%w: %w", shared.ErrUnauthenticated, err)
		}
		return Pair{}, err
	}
	claims, err := s.tokens.Codec().Verify(pair.Access.Value)
	if err != nil {
		return Pair{}, err
	}
	userID, _ := claims.UserID()
	user, err := s.accounts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Pair{}, shared.ErrUnauthenticated
		}
		return Pair{}, err
	}
	if !user.IsActive {
		return Pair{}, shared.ErrUnauthenticated
	}
	return pair, nil
}

// Logout revokes the caller's access token and, when given, its refresh token.
func (s *Service) Logout(ctx context.Context, principal shared.Principal, refresh string) error {
	if err := s.tokens.RevokePrincipal(ctx, principal); err != nil {
		return err
	}
	if refresh != "" {
		return s.tokens.RevokeRefresh(ctx, refresh)
	}
	return nil
}

// Session returns the caller's account with roles and effective permissions.
func (s *Service) Session(ctx context.Context, principal shared.Principal) (Session, error) {
	user, err := s.accounts.Get(ctx, principal.UserID)
	if err != nil {
		return Session{}, err
	}
	roles, err := s.grants.RolesOf(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	perms, err := s.grants.PermissionsOf(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	if roles == nil {
		roles = []rbac.UserRole{}
	}
	return Session{User: user, Roles: roles, Permissions: perms}, nil
}
