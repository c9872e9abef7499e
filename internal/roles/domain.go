package roles

import (
	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/rbac"
)

// ChangeRoleRequest is the body of assign and remove calls.
type ChangeRoleRequest struct {
	RoleCode string `json:"role_code" validate:"required,max=64"`
}

// SetPermissionsRequest replaces a role bundle.
type SetPermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,dive,required,max=128"`
}

// UserRoles lists the roles a user holds.
type UserRoles struct {
	UserID uuid.UUID       `json:"user_id"`
	Roles  []rbac.UserRole `json:"roles"`
}
