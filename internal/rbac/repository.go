package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/psychohelp/psychohelp/internal/platform/db"
	"github.com/psychohelp/psychohelp/internal/shared"
)

// Repository is the graph backing store.
type Repository interface {
	PermissionsOf(ctx context.Context, userID uuid.UUID) (PermissionSet, error)
	RolesOf(ctx context.Context, userID uuid.UUID) ([]UserRole, error)
	RoleByCode(ctx context.Context, code RoleCode) (Role, error)
	ListRoles(ctx context.Context) ([]RoleWithPermissions, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the transactional graph mutations. Existence checks
// take share locks so the referenced rows cannot disappear before commit.
type TxRepository interface {
	LockUser(ctx context.Context, userID uuid.UUID) error
	LockRole(ctx context.Context, code RoleCode) (Role, error)
	// InsertUserRole reports whether a link was created. A manual source
	// upgrades an existing profile link in place.
	InsertUserRole(ctx context.Context, userID, roleID uuid.UUID, source LinkSource, at time.Time) (bool, error)
	DeleteUserRole(ctx context.Context, userID, roleID uuid.UUID, onlySource LinkSource) (bool, error)
	ReplaceRolePermissions(ctx context.Context, roleID uuid.UUID, codes []PermissionCode) error
	InsertPermission(ctx context.Context, def PermissionDef) (bool, error)
	InsertRole(ctx context.Context, def RoleDef) (bool, error)
	LinkRolePermission(ctx context.Context, role RoleCode, perm PermissionCode) (bool, error)
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Store implements Repository on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx wraps callback in repeatable-read transaction.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

// PermissionsOf returns the union of permissions over the user's roles. An
// unknown user yields an empty set.
func (s *Store) PermissionsOf(ctx context.Context, userID uuid.UUID) (PermissionSet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT p.code
		FROM users_roles ur
		JOIN roles_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := PermissionSet{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		// Codes outside the catalogue are never granted.
		if code, err := ParsePermissionCode(raw); err == nil {
			set[code] = struct{}{}
		}
	}
	return set, rows.Err()
}

// RolesOf lists the roles held by the user ordered by code.
func (s *Store) RolesOf(ctx context.Context, userID uuid.UUID) ([]UserRole, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.code, r.name, r.description, ur.assigned_at, ur.source
		FROM users_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.code`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []UserRole
	for rows.Next() {
		var ur UserRole
		if err := rows.Scan(&ur.ID, &ur.Code, &ur.Name, &ur.Description, &ur.AssignedAt, &ur.Source); err != nil {
			return nil, err
		}
		roles = append(roles, ur)
	}
	return roles, rows.Err()
}

// RoleByCode fetches a role by its code.
func (s *Store) RoleByCode(ctx context.Context, code RoleCode) (Role, error) {
	var role Role
	err := s.pool.QueryRow(ctx, `SELECT id, code, name, description FROM roles WHERE code = $1`, code).
		Scan(&role.ID, &role.Code, &role.Name, &role.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns every role with its permission bundle.
func (s *Store) ListRoles(ctx context.Context) ([]RoleWithPermissions, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.code, r.name, r.description,
		       COALESCE(array_agg(p.code ORDER BY p.code) FILTER (WHERE p.code IS NOT NULL), '{}')
		FROM roles r
		LEFT JOIN roles_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		GROUP BY r.id
		ORDER BY r.code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []RoleWithPermissions
	for rows.Next() {
		var (
			role  RoleWithPermissions
			codes []string
		)
		if err := rows.Scan(&role.ID, &role.Code, &role.Name, &role.Description, &codes); err != nil {
			return nil, err
		}
		role.Permissions = make([]PermissionCode, 0, len(codes))
		for _, c := range codes {
			role.Permissions = append(role.Permissions, PermissionCode(c))
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ListPermissions returns all permissions ordered by resource and code.
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, code, name, description, resource FROM permissions ORDER BY resource, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Resource); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

type txStore struct {
	tx pgx.Tx
}

// NewTxStore binds graph mutations to an already open transaction, letting
// other modules change roles atomically with their own writes.
func NewTxStore(tx pgx.Tx) TxRepository {
	return &txStore{tx: tx}
}

func (t *txStore) LockUser(ctx context.Context, userID uuid.UUID) error {
	var id uuid.UUID
	err := t.tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR SHARE`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	return err
}

func (t *txStore) LockRole(ctx context.Context, code RoleCode) (Role, error) {
	var role Role
	err := t.tx.QueryRow(ctx, `SELECT id, code, name, description FROM roles WHERE code = $1 FOR SHARE`, code).
		Scan(&role.ID, &role.Code, &role.Name, &role.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func (t *txStore) InsertUserRole(ctx context.Context, userID, roleID uuid.UUID, source LinkSource, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO users_roles (user_id, role_id, assigned_at, source)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID, at, source)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if source != SourceManual {
		return false, nil
	}
	_, err = t.tx.Exec(ctx, `
		UPDATE users_roles SET source = $3
		WHERE user_id = $1 AND role_id = $2 AND source = $4`, userID, roleID, SourceManual, SourceProfile)
	return false, err
}

func (t *txStore) DeleteUserRole(ctx context.Context, userID, roleID uuid.UUID, onlySource LinkSource) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM users_roles
		WHERE user_id = $1 AND role_id = $2 AND ($3 = '' OR source = $3)`, userID, roleID, string(onlySource))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txStore) ReplaceRolePermissions(ctx context.Context, roleID uuid.UUID, codes []PermissionCode) error {
	codes = dedupe(codes)
	raw := make([]string, len(codes))
	for i, c := range codes {
		raw[i] = string(c)
	}
	var present int
	if err := t.tx.QueryRow(ctx, `SELECT count(*) FROM permissions WHERE code = ANY($1)`, raw).Scan(&present); err != nil {
		return err
	}
	if present != len(raw) {
		return ErrPermissionNotFound
	}
	if _, err := t.tx.Exec(ctx, `
		DELETE FROM roles_permissions rp
		USING permissions p
		WHERE rp.permission_id = p.id AND rp.role_id = $1 AND NOT (p.code = ANY($2))`, roleID, raw); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO roles_permissions (role_id, permission_id)
		SELECT $1, p.id FROM permissions p WHERE p.code = ANY($2)
		ON CONFLICT DO NOTHING`, roleID, raw)
	return err
}

func (t *txStore) InsertPermission(ctx context.Context, def PermissionDef) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO permissions (code, name, description, resource)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO NOTHING`, def.Code, def.Name, def.Description, def.Code.Resource())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txStore) InsertRole(ctx context.Context, def RoleDef) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO roles (code, name, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO NOTHING`, def.Code, def.Name, def.Description)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txStore) LinkRolePermission(ctx context.Context, role RoleCode, perm PermissionCode) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO roles_permissions (role_id, permission_id)
		SELECT r.id, p.id FROM roles r, permissions p
		WHERE r.code = $1 AND p.code = $2
		ON CONFLICT DO NOTHING`, role, perm)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txStore) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.InsertAudit(ctx, t.tx, log)
}

func dedupe(codes []PermissionCode) []PermissionCode {
	return NewPermissionSet(codes...).Codes()
}
