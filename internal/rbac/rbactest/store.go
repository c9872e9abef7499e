// Package rbactest provides an in-memory graph store for tests.
package rbactest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/shared"
)

type link struct {
	assignedAt time.Time
	source     rbac.LinkSource
}

// Store implements rbac.Repository and rbac.TxRepository in memory. WithTx
// serialises transactions and rolls state back when the callback fails.
type Store struct {
	mu        sync.Mutex
	users     map[uuid.UUID]struct{}
	roles     map[rbac.RoleCode]rbac.Role
	roleByID  map[uuid.UUID]rbac.RoleCode
	perms     map[rbac.PermissionCode]rbac.Permission
	rolePerms map[rbac.RoleCode]map[rbac.PermissionCode]struct{}
	links     map[uuid.UUID]map[rbac.RoleCode]link
	audit     []shared.AuditLog
	reads     int

	// FailTx, when set, is returned by the next WithTx call instead of running it.
	FailTx []error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:     map[uuid.UUID]struct{}{},
		roles:     map[rbac.RoleCode]rbac.Role{},
		roleByID:  map[uuid.UUID]rbac.RoleCode{},
		perms:     map[rbac.PermissionCode]rbac.Permission{},
		rolePerms: map[rbac.RoleCode]map[rbac.PermissionCode]struct{}{},
		links:     map[uuid.UUID]map[rbac.RoleCode]link{},
	}
}

// NewSeededStore returns a store holding the built-in catalogue.
func NewSeededStore() *Store {
	s := NewStore()
	tx := (*txView)(s)
	ctx := context.Background()
	for _, def := range rbac.PermissionCatalog() {
		_, _ = tx.InsertPermission(ctx, def)
	}
	for _, def := range rbac.RoleCatalog() {
		_, _ = tx.InsertRole(ctx, def)
		for _, p := range def.Permissions {
			_, _ = tx.LinkRolePermission(ctx, def.Code, p)
		}
	}
	return s
}

// AddUser registers a user id and returns it.
func (s *Store) AddUser(id uuid.UUID) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = struct{}{}
	return id
}

// NewUser registers a fresh user id.
func (s *Store) NewUser() uuid.UUID {
	return s.AddUser(uuid.New())
}

// DeleteUser removes the user and cascades its role links.
func (s *Store) DeleteUser(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	delete(s.links, id)
}

// LinkCount returns how many links (0 or 1) exist for the pair.
func (s *Store) LinkCount(userID uuid.UUID, code rbac.RoleCode) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[userID][code]; ok {
		return 1
	}
	return 0
}

// LinkSourceOf returns the source of a link, or "" when absent.
func (s *Store) LinkSourceOf(userID uuid.UUID, code rbac.RoleCode) rbac.LinkSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links[userID][code].source
}

// AuditLogs returns the recorded audit entries.
func (s *Store) AuditLogs() []shared.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shared.AuditLog(nil), s.audit...)
}

// Reads returns how many times PermissionsOf hit the store.
func (s *Store) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// WithTx runs fn under the store lock with rollback on error.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, rbac.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.FailTx) > 0 {
		err := s.FailTx[0]
		s.FailTx = s.FailTx[1:]
		return err
	}
	snapshot := s.clone()
	if err := fn(ctx, (*txView)(s)); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

// PermissionsOf implements rbac.Repository.
func (s *Store) PermissionsOf(_ context.Context, userID uuid.UUID) (rbac.PermissionSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	set := rbac.PermissionSet{}
	for role := range s.links[userID] {
		for p := range s.rolePerms[role] {
			set[p] = struct{}{}
		}
	}
	return set, nil
}

// RolesOf implements rbac.Repository.
func (s *Store) RolesOf(_ context.Context, userID uuid.UUID) ([]rbac.UserRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []rbac.UserRole
	for code, l := range s.links[userID] {
		out = append(out, rbac.UserRole{Role: s.roles[code], AssignedAt: l.assignedAt, Source: l.source})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// RoleByCode implements rbac.Repository.
func (s *Store) RoleByCode(_ context.Context, code rbac.RoleCode) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[code]
	if !ok {
		return rbac.Role{}, rbac.ErrRoleNotFound
	}
	return role, nil
}

// ListRoles implements rbac.Repository.
func (s *Store) ListRoles(_ context.Context) ([]rbac.RoleWithPermissions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []rbac.RoleWithPermissions
	for code, role := range s.roles {
		perms := make([]rbac.PermissionCode, 0, len(s.rolePerms[code]))
		for p := range s.rolePerms[code] {
			perms = append(perms, p)
		}
		sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
		out = append(out, rbac.RoleWithPermissions{Role: role, Permissions: perms})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// ListPermissions implements rbac.Repository.
func (s *Store) ListPermissions(_ context.Context) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rbac.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

type snapshot struct {
	users     map[uuid.UUID]struct{}
	rolePerms map[rbac.RoleCode]map[rbac.PermissionCode]struct{}
	links     map[uuid.UUID]map[rbac.RoleCode]link
	roles     map[rbac.RoleCode]rbac.Role
	roleByID  map[uuid.UUID]rbac.RoleCode
	perms     map[rbac.PermissionCode]rbac.Permission
	audit     int
}

func (s *Store) clone() snapshot {
	snap := snapshot{
		users:     make(map[uuid.UUID]struct{}, len(s.users)),
		rolePerms: make(map[rbac.RoleCode]map[rbac.PermissionCode]struct{}, len(s.rolePerms)),
		links:     make(map[uuid.UUID]map[rbac.RoleCode]link, len(s.links)),
		roles:     make(map[rbac.RoleCode]rbac.Role, len(s.roles)),
		roleByID:  make(map[uuid.UUID]rbac.RoleCode, len(s.roleByID)),
		perms:     make(map[rbac.PermissionCode]rbac.Permission, len(s.perms)),
		audit:     len(s.audit),
	}
	for k := range s.users {
		snap.users[k] = struct{}{}
	}
	for k, v := range s.rolePerms {
		inner := make(map[rbac.PermissionCode]struct{}, len(v))
		for p := range v {
			inner[p] = struct{}{}
		}
		snap.rolePerms[k] = inner
	}
	for k, v := range s.links {
		inner := make(map[rbac.RoleCode]link, len(v))
		for r, l := range v {
			inner[r] = l
		}
		snap.links[k] = inner
	}
	for k, v := range s.roles {
		snap.roles[k] = v
	}
	for k, v := range s.roleByID {
		snap.roleByID[k] = v
	}
	for k, v := range s.perms {
		snap.perms[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.users = snap.users
	s.rolePerms = snap.rolePerms
	s.links = snap.links
	s.roles = snap.roles
	s.roleByID = snap.roleByID
	s.perms = snap.perms
	s.audit = s.audit[:snap.audit]
}

// txView is the store seen from inside WithTx; the lock is already held.
type txView Store

func (t *txView) LockUser(_ context.Context, userID uuid.UUID) error {
	if _, ok := t.users[userID]; !ok {
		return rbac.ErrUserNotFound
	}
	return nil
}

func (t *txView) LockRole(_ context.Context, code rbac.RoleCode) (rbac.Role, error) {
	role, ok := t.roles[code]
	if !ok {
		return rbac.Role{}, rbac.ErrRoleNotFound
	}
	return role, nil
}

func (t *txView) InsertUserRole(_ context.Context, userID, roleID uuid.UUID, source rbac.LinkSource, at time.Time) (bool, error) {
	code, ok := t.roleByID[roleID]
	if !ok {
		return false, rbac.ErrRoleNotFound
	}
	if t.links[userID] == nil {
		t.links[userID] = map[rbac.RoleCode]link{}
	}
	if existing, exists := t.links[userID][code]; exists {
		if source == rbac.SourceManual && existing.source == rbac.SourceProfile {
			existing.source = rbac.SourceManual
			t.links[userID][code] = existing
		}
		return false, nil
	}
	t.links[userID][code] = link{assignedAt: at, source: source}
	return true, nil
}

func (t *txView) DeleteUserRole(_ context.Context, userID, roleID uuid.UUID, onlySource rbac.LinkSource) (bool, error) {
	code, ok := t.roleByID[roleID]
	if !ok {
		return false, nil
	}
	l, exists := t.links[userID][code]
	if !exists || (onlySource != "" && l.source != onlySource) {
		return false, nil
	}
	delete(t.links[userID], code)
	return true, nil
}

func (t *txView) ReplaceRolePermissions(_ context.Context, roleID uuid.UUID, codes []rbac.PermissionCode) error {
	code, ok := t.roleByID[roleID]
	if !ok {
		return rbac.ErrRoleNotFound
	}
	next := map[rbac.PermissionCode]struct{}{}
	for _, c := range codes {
		if _, ok := t.perms[c]; !ok {
			return rbac.ErrPermissionNotFound
		}
		next[c] = struct{}{}
	}
	t.rolePerms[code] = next
	return nil
}

func (t *txView) InsertPermission(_ context.Context, def rbac.PermissionDef) (bool, error) {
	if _, ok := t.perms[def.Code]; ok {
		return false, nil
	}
	t.perms[def.Code] = rbac.Permission{
		ID:          uuid.New(),
		Code:        def.Code,
		Name:        def.Name,
		Description: def.Description,
		Resource:    def.Code.Resource(),
	}
	return true, nil
}

func (t *txView) InsertRole(_ context.Context, def rbac.RoleDef) (bool, error) {
	if _, ok := t.roles[def.Code]; ok {
		return false, nil
	}
	role := rbac.Role{ID: uuid.New(), Code: def.Code, Name: def.Name, Description: def.Description}
	t.roles[def.Code] = role
	t.roleByID[role.ID] = def.Code
	return true, nil
}

func (t *txView) LinkRolePermission(_ context.Context, role rbac.RoleCode, perm rbac.PermissionCode) (bool, error) {
	if _, ok := t.roles[role]; !ok {
		return false, nil
	}
	if _, ok := t.perms[perm]; !ok {
		return false, nil
	}
	if t.rolePerms[role] == nil {
		t.rolePerms[role] = map[rbac.PermissionCode]struct{}{}
	}
	if _, ok := t.rolePerms[role][perm]; ok {
		return false, nil
	}
	t.rolePerms[role][perm] = struct{}{}
	return true, nil
}

func (t *txView) RecordAudit(_ context.Context, log shared.AuditLog) error {
	t.audit = append(t.audit, log)
	return nil
}

// RegisterUser makes id visible to LockUser from inside a WithTx callback,
// mirroring a users row inserted in the same transaction.
func RegisterUser(tx rbac.TxRepository, id uuid.UUID) {
	if view, ok := tx.(*txView); ok {
		view.users[id] = struct{}{}
	}
}

// UnregisterUser removes id and its links from inside a WithTx callback.
func UnregisterUser(tx rbac.TxRepository, id uuid.UUID) {
	if view, ok := tx.(*txView); ok {
		delete(view.users, id)
		delete(view.links, id)
	}
}
