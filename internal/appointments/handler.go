package appointments

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/platform/httpx"
	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/shared"
)

// Handler serves appointment endpoints.
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

// MountRoutes registers appointment routes. Ownership is checked by the
// service once the gate has let the request through.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequirePermission(rbac.PermAppointmentsCreateOwn)).Post("/", h.create)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermAppointmentsViewOwn, rbac.PermAppointmentsViewAll))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.With(h.rbac.RequirePermission(rbac.PermAppointmentsViewPending)).Get("/pending", h.pending)
	r.With(h.rbac.RequireAny(rbac.PermAppointmentsAccept, rbac.PermAppointmentsEditAll)).Post("/{id}/accept", h.accept)
	r.With(h.rbac.RequireAny(rbac.PermAppointmentsReject, rbac.PermAppointmentsEditAll)).Post("/{id}/reject", h.reject)
	r.With(h.rbac.RequireAny(rbac.PermAppointmentsReschedule, rbac.PermAppointmentsEditAll)).Post("/{id}/reschedule", h.reschedule)
	r.With(h.rbac.RequireAny(rbac.PermAppointmentsCancelOwn, rbac.PermAppointmentsEditAll)).Post("/{id}/cancel", h.cancel)
	r.With(h.rbac.RequireAny(rbac.PermAppointmentsConfirmOwn, rbac.PermAppointmentsEditAll)).Post("/{id}/confirm", h.confirm)
	r.Method(http.MethodDelete, "/{id}", h.rbac.WithPermission(rbac.PermAppointmentsDeleteAll, h.delete))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	principal, _ := rbac.CurrentPrincipal(r.Context())
	appt, err := h.service.Create(r.Context(), principal, req)
	if err != nil {
		h.fail(w, "create appointment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, appt)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.CurrentPrincipal(r.Context())
	status := Status(r.URL.Query().Get("status"))
	if status != "" && !validStatus(status) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status")
		return
	}
	items, page, err := h.service.List(r.Context(), principal, status, shared.PageFromRequest(r))
	if err != nil {
		h.fail(w, "list appointments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"appointments": items, "pagination": page})
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.CurrentPrincipal(r.Context())
	items, page, err := h.service.Pending(r.Context(), principal, shared.PageFromRequest(r))
	if err != nil {
		h.fail(w, "pending appointments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"appointments": items, "pagination": page})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	principal, _ := rbac.CurrentPrincipal(r.Context())
	appt, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		h.fail(w, "get appointment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, appt)
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "accept appointment", h.service.Accept)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "reject appointment", h.service.Reject)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "cancel appointment", h.service.Cancel)
}

type decision func(ctx context.Context, principal shared.Principal, id uuid.UUID, req DecisionRequest) (Appointment, error)

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, op string, fn decision) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req DecisionRequest
	if r.ContentLength != 0 && !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	principal, _ := rbac.CurrentPrincipal(r.Context())
	appt, err := fn(r.Context(), principal, id, req)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, appt)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	principal, _ := rbac.CurrentPrincipal(r.Context())
	appt, err := h.service.Confirm(r.Context(), principal, id)
	if err != nil {
		h.fail(w, "confirm appointment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, appt)
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req RescheduleRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	principal, _ := rbac.CurrentPrincipal(r.Context())
	appt, err := h.service.Reschedule(r.Context(), principal, id, req)
	if err != nil {
		h.fail(w, "reschedule appointment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, appt)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete appointment", err)
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

func validStatus(s Status) bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCancelled, StatusDone:
		return true
	}
	return false
}
