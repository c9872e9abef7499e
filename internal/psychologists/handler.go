package psychologists

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/platform/httpx"
	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/shared"
)

// Handler serves psychologist profile endpoints.
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

// MountRoutes registers profile routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(rbac.PermPsychologistsView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.With(h.rbac.RequirePermission(rbac.PermPsychologistsEditOwnProfile)).Patch("/me", h.updateOwn)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(rbac.PermPsychologistsManage))
		r.Post("/", h.create)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, page, err := h.service.List(r.Context(), shared.PageFromRequest(r))
	if err != nil {
		h.fail(w, "list psychologists", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"psychologists": items, "pagination": page})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get psychologist", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if !httpx.DecodeAndValidate(w, r, h.validate, &input) {
		return
	}
	principal, _ := rbac.CurrentPrincipal(r.Context())
	p, err := h.service.Create(r.Context(), principal.UserID, input)
	if err != nil {
		h.fail(w, "create psychologist", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) updateOwn(w http.ResponseWriter, r *http.Request) {
	var update ProfileUpdate
	if !httpx.DecodeAndValidate(w, r, h.validate, &update) {
		return
	}
	principal, _ := rbac.CurrentPrincipal(r.Context())
	p, err := h.service.UpdateOwn(r.Context(), principal.UserID, update)
	if err != nil {
		h.fail(w, "update psychologist", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	principal, _ := rbac.CurrentPrincipal(r.Context())
	if err := h.service.Delete(r.Context(), principal.UserID, id); err != nil {
		h.fail(w, "delete psychologist", err)
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

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
