package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/platform/httpx"
	"github.com/psychohelp/psychohelp/internal/rbac"
)

// Handler manages role management endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), rbac: rbac}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(rbac.PermRolesViewAll))
		r.Get("/", h.listRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Authenticate)
		r.Get("/users/{userID}", h.userRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(rbac.PermRolesAssign))
		r.Post("/users/{userID}/assign", h.assignRole)
		r.Put("/{roleCode}/permissions", h.setPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(rbac.PermRolesRemove))
		r.Post("/users/{userID}/remove", h.removeRole)
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) userRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	principal, _ := rbac.CurrentPrincipal(r.Context())
	out, err := h.service.UserRoles(r.Context(), principal, userID)
	if err != nil {
		h.fail(w, "user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	var req ChangeRoleRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	principal, _ := rbac.CurrentPrincipal(r.Context())
	assigned, err := h.service.Assign(r.Context(), principal, userID, req)
	if err != nil {
		h.fail(w, "assign role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"assigned": assigned})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	var req ChangeRoleRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	principal, _ := rbac.CurrentPrincipal(r.Context())
	removed, err := h.service.Remove(r.Context(), principal, userID, req)
	if err != nil {
		h.fail(w, "remove role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	var req SetPermissionsRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	principal, _ := rbac.CurrentPrincipal(r.Context())
	if err := h.service.SetPermissions(r.Context(), principal, chi.URLParam(r, "roleCode"), req); err != nil {
		h.fail(w, "set role permissions", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}
