package rbac

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/shared"
)

// Lookup and assignment errors. All not-found variants match ErrNotFound and
// shared.ErrNotFound through errors.Is.
var (
	ErrNotFound                 = fmt.Errorf("rbac: %w", shared.ErrNotFound)
	ErrUserNotFound       error = &notFoundError{entity: "user"}
	ErrRoleNotFound       error = &notFoundError{entity: "role"}
	ErrPermissionNotFound error = &notFoundError{entity: "permission"}
)

type notFoundError struct {
	entity string
}

func (e *notFoundError) Error() string { return "rbac: " + e.entity + " not found" }

func (e *notFoundError) Unwrap() error { return ErrNotFound }

// Role is a named permission bundle.
type Role struct {
	ID          uuid.UUID `json:"id"`
	Code        RoleCode  `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

// RoleWithPermissions is a role plus its current bundle.
type RoleWithPermissions struct {
	Role
	Permissions []PermissionCode `json:"permissions"`
}

// Permission is an atomic capability.
type Permission struct {
	ID          uuid.UUID      `json:"id"`
	Code        PermissionCode `json:"code"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Resource    string         `json:"resource"`
}

// UserRole is a role held by a user.
type UserRole struct {
	Role
	AssignedAt time.Time  `json:"assigned_at"`
	Source     LinkSource `json:"source"`
}

// LinkSource records why a user holds a role.
type LinkSource string

const (
	// SourceManual marks links created through role administration or registration.
	SourceManual LinkSource = "manual"
	// SourceProfile marks links created as a side effect of a psychologist profile.
	SourceProfile LinkSource = "profile"
)

// PermissionSet is an effective permission set. The zero value is empty and usable.
type PermissionSet map[PermissionCode]struct{}

// NewPermissionSet builds a set from codes.
func NewPermissionSet(codes ...PermissionCode) PermissionSet {
	set := make(PermissionSet, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s PermissionSet) Has(code PermissionCode) bool {
	_, ok := s[code]
	return ok
}

// HasAny reports whether at least one code is present.
func (s PermissionSet) HasAny(codes ...PermissionCode) bool {
	for _, c := range codes {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// HasAll reports whether every code is present.
func (s PermissionSet) HasAll(codes ...PermissionCode) bool {
	for _, c := range codes {
		if !s.Has(c) {
			return false
		}
	}
	return true
}

// Missing returns the codes not present, in input order.
func (s PermissionSet) Missing(codes ...PermissionCode) []PermissionCode {
	var missing []PermissionCode
	for _, c := range codes {
		if !s.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Union returns a new set containing both.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for c := range s {
		out[c] = struct{}{}
	}
	for c := range other {
		out[c] = struct{}{}
	}
	return out
}

// Codes returns the sorted members.
func (s PermissionSet) Codes() []PermissionCode {
	codes := make([]PermissionCode, 0, len(s))
	for c := range s {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// MarshalJSON encodes the set as a sorted array.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Codes())
}
