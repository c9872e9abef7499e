package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/shared"
)

const maxTxAttempts = 3

// Service answers graph queries and owns every graph mutation.
type Service struct {
	repo   Repository
	cache  *PermissionCache
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service. cache may be nil.
func NewService(repo Repository, cache *PermissionCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// SeedReport counts rows created by Seed.
type SeedReport struct {
	Permissions int `json:"permissions"`
	Roles       int `json:"roles"`
	Links       int `json:"links"`
}

// PermissionsOf returns the effective permission set of userID.
func (s *Service) PermissionsOf(ctx context.Context, userID uuid.UUID) (PermissionSet, error) {
	if userID == uuid.Nil {
		return PermissionSet{}, nil
	}
	return s.cache.Fetch(ctx, userID, func(ctx context.Context) (PermissionSet, error) {
		return s.repo.PermissionsOf(ctx, userID)
	})
}

// RolesOf returns the roles held by userID.
func (s *Service) RolesOf(ctx context.Context, userID uuid.UUID) ([]UserRole, error) {
	return s.repo.RolesOf(ctx, userID)
}

// RoleByCode resolves a role from an untrusted code string.
func (s *Service) RoleByCode(ctx context.Context, raw string) (Role, error) {
	code, err := ParseRoleCode(raw)
	if err != nil {
		return Role{}, err
	}
	return s.repo.RoleByCode(ctx, code)
}

// UserHasPermission reports whether userID currently holds code.
func (s *Service) UserHasPermission(ctx context.Context, userID uuid.UUID, code PermissionCode) (bool, error) {
	set, err := s.PermissionsOf(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.Has(code), nil
}

// ListRoles returns every role and its bundle.
func (s *Service) ListRoles(ctx context.Context) ([]RoleWithPermissions, error) {
	return s.repo.ListRoles(ctx)
}

// ListPermissions returns every permission.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// AssignRole links roleCode to userID. It returns false when the link already
// exists. The existence checks and the insert share one transaction.
func (s *Service) AssignRole(ctx context.Context, actorID, userID uuid.UUID, roleCode string) (bool, error) {
	code, err := ParseRoleCode(roleCode)
	if err != nil {
		return false, err
	}
	var changed bool
	err = s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var txErr error
		changed, txErr = s.GrantInTx(ctx, tx, actorID, userID, code, SourceManual)
		return txErr
	})
	if err != nil {
		return false, err
	}
	return changed, s.afterUserChange(ctx, userID, changed)
}

// RemoveRole unlinks roleCode from userID whatever created the link. It
// returns false when the link did not exist.
func (s *Service) RemoveRole(ctx context.Context, actorID, userID uuid.UUID, roleCode string) (bool, error) {
	code, err := ParseRoleCode(roleCode)
	if err != nil {
		return false, err
	}
	var changed bool
	err = s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		var txErr error
		changed, txErr = s.RevokeInTx(ctx, tx, actorID, userID, code, "")
		return txErr
	})
	if err != nil {
		return false, err
	}
	return changed, s.afterUserChange(ctx, userID, changed)
}

func (s *Service) afterUserChange(ctx context.Context, userID uuid.UUID, changed bool) error {
	if !changed {
		return nil
	}
	return s.InvalidateUser(ctx, userID)
}

// GrantInTx links code to userID inside the caller's transaction. A manual
// grant over a profile link turns it into a manual one and still reports
// false. The caller must call InvalidateUser after commit when it returns true.
func (s *Service) GrantInTx(ctx context.Context, tx TxRepository, actorID, userID uuid.UUID, code RoleCode, source LinkSource) (bool, error) {
	if err := tx.LockUser(ctx, userID); err != nil {
		return false, err
	}
	role, err := tx.LockRole(ctx, code)
	if err != nil {
		return false, err
	}
	inserted, err := tx.InsertUserRole(ctx, userID, role.ID, source, s.now().UTC())
	if err != nil || !inserted {
		return false, err
	}
	return true, tx.RecordAudit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "role.assign",
		Entity:   "user",
		EntityID: userID.String(),
		Meta:     map[string]any{"role": code, "source": source},
	})
}

// RevokeInTx unlinks code from userID inside the caller's transaction. A
// non-empty onlySource restricts removal to links created that way. The caller
// must call InvalidateUser after commit when it returns true.
func (s *Service) RevokeInTx(ctx context.Context, tx TxRepository, actorID, userID uuid.UUID, code RoleCode, onlySource LinkSource) (bool, error) {
	role, err := tx.LockRole(ctx, code)
	if err != nil {
		return false, err
	}
	deleted, err := tx.DeleteUserRole(ctx, userID, role.ID, onlySource)
	if err != nil || !deleted {
		return false, err
	}
	return true, tx.RecordAudit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "role.remove",
		Entity:   "user",
		EntityID: userID.String(),
		Meta:     map[string]any{"role": code},
	})
}

// SetRolePermissions replaces the bundle of roleCode.
func (s *Service) SetRolePermissions(ctx context.Context, actorID uuid.UUID, roleCode string, permissions []string) error {
	code, err := ParseRoleCode(roleCode)
	if err != nil {
		return err
	}
	codes, err := ParsePermissionCodes(permissions)
	if err != nil {
		return err
	}
	err = s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.LockRole(ctx, code)
		if err != nil {
			return err
		}
		if err := tx.ReplaceRolePermissions(ctx, role.ID, codes); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "role.permissions.replace",
			Entity:   "role",
			EntityID: string(code),
			Meta:     map[string]any{"permissions": NewPermissionSet(codes...).Codes()},
		})
	})
	if err != nil {
		return err
	}
	return s.InvalidateAll(ctx)
}

// Seed inserts the permission and role catalogue in one transaction. A bundle
// is linked only when its role is created, so existing roles keep whatever
// SetRolePermissions left them with.
func (s *Service) Seed(ctx context.Context) (SeedReport, error) {
	var report SeedReport
	err := s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
		report = SeedReport{}
		for _, def := range permissionCatalog {
			created, err := tx.InsertPermission(ctx, def)
			if err != nil {
				return fmt.Errorf("rbac: seed permission %s: %w", def.Code, err)
			}
			if created {
				report.Permissions++
			}
		}
		for _, def := range roleCatalog {
			created, err := tx.InsertRole(ctx, def)
			if err != nil {
				return fmt.Errorf("rbac: seed role %s: %w", def.Code, err)
			}
			if !created {
				continue
			}
			report.Roles++
			for _, perm := range def.Permissions {
				linked, err := tx.LinkRolePermission(ctx, def.Code, perm)
				if err != nil {
					return fmt.Errorf("rbac: seed link %s/%s: %w", def.Code, perm, err)
				}
				if linked {
					report.Links++
				}
			}
		}
		return nil
	})
	if err != nil {
		return SeedReport{}, err
	}
	if report != (SeedReport{}) {
		if err := s.InvalidateAll(ctx); err != nil {
			return report, err
		}
	}
	s.logger.Info("rbac seed", slog.Int("permissions", report.Permissions), slog.Int("roles", report.Roles), slog.Int("links", report.Links))
	return report, nil
}

// InvalidateUser drops cached permissions of userID. Must run after the
// mutating transaction commits.
func (s *Service) InvalidateUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		s.logger.Error("rbac invalidate user", slog.String("user_id", userID.String()), slog.Any("error", err))
		return err
	}
	return nil
}

// InvalidateAll drops every cached permission set.
func (s *Service) InvalidateAll(ctx context.Context) error {
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.logger.Error("rbac invalidate all", slog.Any("error", err))
		return err
	}
	return nil
}

// inTx retries serialization failures; a retried attempt sees the winner's
// committed row and reports a no-op.
func (s *Service) inTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.repo.WithTx(ctx, fn)
		if err == nil || !shared.IsRetryable(err) {
			return err
		}
		s.logger.Debug("rbac tx retry", slog.Int("attempt", attempt), slog.Any("error", err))
	}
	return err
}
