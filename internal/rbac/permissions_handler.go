package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/psychohelp/psychohelp/internal/platform/httpx"
)

// PermissionsHandler serves the permission catalogue.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
	rbac    Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(PermRolesViewAll))
		r.Get("/", h.listPermissions)
	})
}

type permissionGroup struct {
	Resource    string       `json:"resource"`
	Permissions []Permission `json:"permissions"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": groupByResource(perms)})
}

// groupByResource keeps the input order of resources.
func groupByResource(perms []Permission) []permissionGroup {
	var groups []permissionGroup
	index := make(map[string]int)
	for _, p := range perms {
		i, ok := index[p.Resource]
		if !ok {
			i = len(groups)
			index[p.Resource] = i
			groups = append(groups, permissionGroup{Resource: p.Resource})
		}
		groups[i].Permissions = append(groups[i].Permissions, p)
	}
	return groups
}
