package rbac

import (
	"fmt"
	"strings"
)

// PermissionCode is a canonical "<resource>.<action>" capability identifier.
// The string value is also the wire and storage value.
type PermissionCode string

// RoleCode is a canonical role identifier.
type RoleCode string

// Appointment permissions.
const (
	PermAppointmentsCreateOwn   PermissionCode = "appointments.create_own"
	PermAppointmentsViewOwn     PermissionCode = "appointments.view_own"
	PermAppointmentsCancelOwn   PermissionCode = "appointments.cancel_own"
	PermAppointmentsConfirmOwn  PermissionCode = "appointments.confirm_own"
	PermAppointmentsViewPending PermissionCode = "appointments.view_pending"
	PermAppointmentsAccept      PermissionCode = "appointments.accept"
	PermAppointmentsReschedule  PermissionCode = "appointments.reschedule"
	PermAppointmentsReject      PermissionCode = "appointments.reject"
	PermAppointmentsViewAll     PermissionCode = "appointments.view_all"
	PermAppointmentsEditAll     PermissionCode = "appointments.edit_all"
	PermAppointmentsDeleteAll   PermissionCode = "appointments.delete_all"
)

// Review permissions.
const (
	PermReviewsCreateOwn PermissionCode = "reviews.create_own"
	PermReviewsViewAll   PermissionCode = "reviews.view_all"
)

// User permissions.
const (
	PermUsersEditOwnProfile PermissionCode = "users.edit_own_profile"
	PermUsersViewAny        PermissionCode = "users.view_any"
	PermUsersManage         PermissionCode = "users.manage"
)

// Psychologist permissions.
const (
	PermPsychologistsEditOwnProfile PermissionCode = "psychologists.edit_own_profile"
	PermPsychologistsManage         PermissionCode = "psychologists.manage"
	PermPsychologistsView           PermissionCode = "psychologists.view"
)

// Content and reporting permissions.
const (
	PermStatisticsView  PermissionCode = "statistics.view"
	PermFAQEdit         PermissionCode = "faq.edit"
	PermMaterialsCreate PermissionCode = "materials.create"
	PermMaterialsEdit   PermissionCode = "materials.edit"
	PermMaterialsDelete PermissionCode = "materials.delete"
	PermTestsCreate     PermissionCode = "tests.create"
	PermTestsEdit       PermissionCode = "tests.edit"
	PermTestsDelete     PermissionCode = "tests.delete"
)

// Role management permissions.
const (
	PermRolesAssign  PermissionCode = "roles.assign"
	PermRolesRemove  PermissionCode = "roles.remove"
	PermRolesViewAll PermissionCode = "roles.view_all"
)

// Built-in roles.
const (
	RoleUser           RoleCode = "user"
	RolePsychologist   RoleCode = "psychologist"
	RoleAdmin          RoleCode = "admin"
	RoleContentManager RoleCode = "content_manager"
)

var (
	permissionIndex = make(map[PermissionCode]PermissionDef, len(permissionCatalog))
	roleIndex       = make(map[RoleCode]RoleDef, len(roleCatalog))
)

func init() {
	for _, def := range permissionCatalog {
		if _, dup := permissionIndex[def.Code]; dup {
			panic(fmt.Sprintf("rbac: duplicate permission %s", def.Code))
		}
		permissionIndex[def.Code] = def
	}
	for _, def := range roleCatalog {
		if _, dup := roleIndex[def.Code]; dup {
			panic(fmt.Sprintf("rbac: duplicate role %s", def.Code))
		}
		for _, p := range def.Permissions {
			if _, ok := permissionIndex[p]; !ok {
				panic(fmt.Sprintf("rbac: role %s references unknown permission %s", def.Code, p))
			}
		}
		roleIndex[def.Code] = def
	}
}

// ParsePermissionCode is the only way to turn an untrusted string into a
// PermissionCode. Anything that is not an exact catalogue match fails with
// ErrPermissionNotFound; no case folding or trimming is applied.
func ParsePermissionCode(raw string) (PermissionCode, error) {
	code := PermissionCode(raw)
	if _, ok := permissionIndex[code]; !ok {
		return "", fmt.Errorf("%w: %q", ErrPermissionNotFound, raw)
	}
	return code, nil
}

// ParseRoleCode is the only way to turn an untrusted string into a RoleCode.
func ParseRoleCode(raw string) (RoleCode, error) {
	code := RoleCode(raw)
	if _, ok := roleIndex[code]; !ok {
		return "", fmt.Errorf("%w: %q", ErrRoleNotFound, raw)
	}
	return code, nil
}

// ParsePermissionCodes parses every entry, failing on the first unknown code.
func ParsePermissionCodes(raw []string) ([]PermissionCode, error) {
	codes := make([]PermissionCode, 0, len(raw))
	for _, r := range raw {
		code, err := ParsePermissionCode(r)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// Valid reports whether c is a catalogue permission.
func (c PermissionCode) Valid() bool {
	_, ok := permissionIndex[c]
	return ok
}

// Resource returns the part before the dot.
func (c PermissionCode) Resource() string {
	resource, _, _ := strings.Cut(string(c), ".")
	return resource
}

func (c PermissionCode) String() string { return string(c) }

// Valid reports whether c is a catalogue role.
func (c RoleCode) Valid() bool {
	_, ok := roleIndex[c]
	return ok
}

func (c RoleCode) String() string { return string(c) }
