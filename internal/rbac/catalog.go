package rbac

// PermissionDef is the seed definition of a permission.
type PermissionDef struct {
	Code        PermissionCode
	Name        string
	Description string
}

// RoleDef is the seed definition of a role and its permission bundle.
type RoleDef struct {
	Code        RoleCode
	Name        string
	Description string
	Permissions []PermissionCode
}

var permissionCatalog = []PermissionDef{
	{PermAppointmentsCreateOwn, "Create own appointments", "Book an appointment as a patient"},
	{PermAppointmentsViewOwn, "View own appointments", "See appointments the user takes part in"},
	{PermAppointmentsCancelOwn, "Cancel own appointments", "Cancel an appointment booked by the user"},
	{PermAppointmentsConfirmOwn, "Confirm own appointments", "Confirm that an accepted appointment took place"},
	{PermAppointmentsViewPending, "View pending appointments", "See appointment requests awaiting a decision"},
	{PermAppointmentsAccept, "Accept appointments", "Accept an appointment request"},
	{PermAppointmentsReschedule, "Reschedule appointments", "Move an appointment to another time"},
	{PermAppointmentsReject, "Reject appointments", "Reject an appointment request"},
	{PermAppointmentsViewAll, "View all appointments", "See every appointment and intake application"},
	{PermAppointmentsEditAll, "Edit all appointments", "Change any appointment regardless of participants"},
	{PermAppointmentsDeleteAll, "Delete all appointments", "Delete any appointment"},

	{PermReviewsCreateOwn, "Create own reviews", "Review a completed appointment"},
	{PermReviewsViewAll, "View all reviews", "See every review"},

	{PermUsersEditOwnProfile, "Edit own profile", "Change the user's own account details"},
	{PermUsersViewAny, "View any user", "See any user account"},
	{PermUsersManage, "Manage users", "Administer user accounts"},

	{PermPsychologistsEditOwnProfile, "Edit own psychologist profile", "Change the psychologist's own profile"},
	{PermPsychologistsManage, "Manage psychologists", "Create and delete psychologist profiles"},
	{PermPsychologistsView, "View psychologists", "Browse psychologist profiles"},

	{PermStatisticsView, "View statistics", "See service statistics"},
	{PermFAQEdit, "Edit FAQ", "Change FAQ content"},
	{PermMaterialsCreate, "Create materials", "Publish new materials"},
	{PermMaterialsEdit, "Edit materials", "Change published materials"},
	{PermMaterialsDelete, "Delete materials", "Remove materials"},
	{PermTestsCreate, "Create tests", "Publish new self-assessment tests"},
	{PermTestsEdit, "Edit tests", "Change self-assessment tests"},
	{PermTestsDelete, "Delete tests", "Remove self-assessment tests"},

	{PermRolesAssign, "Assign roles", "Grant roles to users and edit role bundles"},
	{PermRolesRemove, "Remove roles", "Revoke roles from users"},
	{PermRolesViewAll, "View roles", "See roles, permissions and user role sets"},
}

var roleCatalog = []RoleDef{
	{
		Code:        RoleUser,
		Name:        "User",
		Description: "Registered patient",
		Permissions: []PermissionCode{
			PermAppointmentsCreateOwn,
			PermAppointmentsViewOwn,
			PermAppointmentsCancelOwn,
			PermAppointmentsConfirmOwn,
			PermReviewsCreateOwn,
			PermUsersEditOwnProfile,
			PermPsychologistsView,
		},
	},
	{
		Code:        RolePsychologist,
		Name:        "Psychologist",
		Description: "Consulting psychologist",
		Permissions: []PermissionCode{
			PermAppointmentsViewOwn,
			PermAppointmentsViewPending,
			PermAppointmentsAccept,
			PermAppointmentsReschedule,
			PermAppointmentsReject,
			PermUsersEditOwnProfile,
			PermPsychologistsEditOwnProfile,
			PermPsychologistsView,
		},
	},
	{
		Code:        RoleAdmin,
		Name:        "Administrator",
		Description: "Service administrator",
		Permissions: []PermissionCode{
			PermAppointmentsViewAll,
			PermAppointmentsEditAll,
			PermAppointmentsDeleteAll,
			PermReviewsViewAll,
			PermStatisticsView,
			PermPsychologistsManage,
			PermPsychologistsView,
			PermUsersViewAny,
			PermUsersManage,
			PermRolesAssign,
			PermRolesRemove,
			PermRolesViewAll,
		},
	},
	{
		Code:        RoleContentManager,
		Name:        "Content manager",
		Description: "Maintains FAQ, materials and tests",
		Permissions: []PermissionCode{
			PermFAQEdit,
			PermMaterialsCreate,
			PermMaterialsEdit,
			PermMaterialsDelete,
			PermTestsCreate,
			PermTestsEdit,
			PermTestsDelete,
		},
	},
}

// PermissionCatalog returns a copy of the seeded permissions.
func PermissionCatalog() []PermissionDef {
	out := make([]PermissionDef, len(permissionCatalog))
	copy(out, permissionCatalog)
	return out
}

// RoleCatalog returns a copy of the seeded roles with their bundles.
func RoleCatalog() []RoleDef {
	out := make([]RoleDef, len(roleCatalog))
	for i, def := range roleCatalog {
		def.Permissions = append([]PermissionCode(nil), def.Permissions...)
		out[i] = def
	}
	return out
}

// BundleOf returns the seeded permission bundle of a built-in role.
func BundleOf(code RoleCode) PermissionSet {
	def, ok := roleIndex[code]
	if !ok {
		return PermissionSet{}
	}
	return NewPermissionSet(def.Permissions...)
}
