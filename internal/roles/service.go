package roles

import (
	"context"

	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/shared"
)

// Graph is the part of rbac.Service the role endpoints use.
type Graph interface {
	ListRoles(ctx context.Context) ([]rbac.RoleWithPermissions, error)
	RolesOf(ctx context.Context, userID uuid.UUID) ([]rbac.UserRole, error)
	UserHasPermission(ctx context.Context, userID uuid.UUID, code rbac.PermissionCode) (bool, error)
	AssignRole(ctx context.Context, actorID, userID uuid.UUID, roleCode string) (bool, error)
	RemoveRole(ctx context.Context, actorID, userID uuid.UUID, roleCode string) (bool, error)
	SetRolePermissions(ctx context.Context, actorID uuid.UUID, roleCode string, permissions []string) error
}

// Service applies role administration policy on top of the graph.
type Service struct {
	graph Graph
}

// NewService creates a new role service.
func NewService(graph Graph) *Service {
	return &Service{graph: graph}
}

// ListRoles returns all roles with their bundles.
func (s *Service) ListRoles(ctx context.Context) ([]rbac.RoleWithPermissions, error) {
	return s.graph.ListRoles(ctx)
}

// UserRoles returns the roles of userID. Principals may always read their own
// roles; reading someone else's requires roles.view_all.
func (s *Service) UserRoles(ctx context.Context, principal shared.Principal, userID uuid.UUID) (UserRoles, error) {
	if principal.UserID != userID {
		ok, err := s.graph.UserHasPermission(ctx, principal.UserID, rbac.PermRolesViewAll)
		if err != nil {
			return UserRoles{}, err
		}
		if !ok {
			return UserRoles{}, shared.ErrForbidden
		}
	}
	roles, err := s.graph.RolesOf(ctx, userID)
	if err != nil {
		return UserRoles{}, err
	}
	if roles == nil {
		roles = []rbac.UserRole{}
	}
	return UserRoles{UserID: userID, Roles: roles}, nil
}

// Assign grants a role on behalf of principal.
func (s *Service) Assign(ctx context.Context, principal shared.Principal, userID uuid.UUID, req ChangeRoleRequest) (bool, error) {
	return s.graph.AssignRole(ctx, principal.UserID, userID, req.RoleCode)
}

// Remove revokes a role on behalf of principal.
func (s *Service) Remove(ctx context.Context, principal shared.Principal, userID uuid.UUID, req ChangeRoleRequest) (bool, error) {
	return s.graph.RemoveRole(ctx, principal.UserID, userID, req.RoleCode)
}

// SetPermissions replaces the bundle of roleCode.
func (s *Service) SetPermissions(ctx context.Context, principal shared.Principal, roleCode string, req SetPermissionsRequest) error {
	return s.graph.SetRolePermissions(ctx, principal.UserID, roleCode, req.Permissions)
}
