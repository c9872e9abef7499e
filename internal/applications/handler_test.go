package applications_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psychohelp/psychohelp/internal/applications"
	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/rbac/rbactest"
	"github.com/psychohelp/psychohelp/internal/shared"
)

type memoryRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]applications.Application
}

func (m *memoryRepo) Insert(_ context.Context, userID *uuid.UUID, req applications.SubmitRequest) (applications.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	a := applications.Application{
		ID:        uuid.New(),
		UserID:    userID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Status:    applications.StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.items[a.ID] = a
	return a, nil
}

func (m *memoryRepo) Get(_ context.Context, id uuid.UUID) (applications.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return applications.Application{}, applications.ErrNotFound
	}
	return a, nil
}

func (m *memoryRepo) List(_ context.Context, f applications.ListFilter) ([]applications.Application, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []applications.Application
	for _, a := range m.items {
		if f.Status == "" || a.Status == f.Status {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) UpdateStatus(_ context.Context, id uuid.UUID, status applications.Status, appointmentID *uuid.UUID) (applications.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return applications.Application{}, applications.ErrNotFound
	}
	if !a.Status.Open() {
		return applications.Application{}, applications.ErrClosed
	}
	a.Status = status
	if appointmentID != nil {
		a.AppointmentID = appointmentID
	}
	m.items[id] = a
	return a, nil
}

type tokenAuth map[string]uuid.UUID

func (a tokenAuth) Credential(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (a tokenAuth) Authenticate(_ context.Context, raw string) (shared.Principal, error) {
	id, ok := a[raw]
	if !ok {
		return shared.Principal{}, shared.ErrUnauthenticated
	}
	return shared.Principal{UserID: id}, nil
}

func TestApplicationEndpoints(t *testing.T) {
	ctx := context.Background()
	graph := rbactest.NewSeededStore()
	rbacSvc := rbac.NewService(graph, nil, nil)
	patient, other, psy, admin := graph.NewUser(), graph.NewUser(), graph.NewUser(), graph.NewUser()
	for id, role := range map[uuid.UUID]string{patient: "user", other: "user", psy: "psychologist", admin: "admin"} {
		_, err := rbacSvc.AssignRole(ctx, uuid.Nil, id, role)
		require.NoError(t, err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := applications.NewService(&memoryRepo{items: map[uuid.UUID]applications.Application{}}, rbacSvc, logger)
	auth := tokenAuth{"patient": patient, "other": other, "psy": psy, "admin": admin}
	mw := rbac.Middleware{Auth: auth, Perms: rbacSvc, Logger: logger}
	r := chi.NewRouter()
	r.Route("/applications", applications.NewHandler(logger, svc, mw).MountRoutes)

	do := func(method, path, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}
	decode := func(rr *httptest.ResponseRecorder) applications.Application {
		var a applications.Application
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &a))
		return a
	}

	form := `{"first_name":"  Ann ","last_name":"Lee","email":"Ann@Example.COM"}`

	// Anonymous, and with a bad token, submission still works.
	rr := do(http.MethodPost, "/applications/", "", form)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	anon := decode(rr)
	assert.Nil(t, anon.UserID)
	assert.Equal(t, "ann@example.com", anon.Email)
	assert.Equal(t, "Ann", anon.FirstName)
	require.Equal(t, http.StatusCreated, do(http.MethodPost, "/applications/", "bogus", form).Code)

	rr = do(http.MethodPost, "/applications/", "patient", form)
	require.Equal(t, http.StatusCreated, rr.Code)
	owned := decode(rr)
	require.NotNil(t, owned.UserID)
	assert.Equal(t, patient, *owned.UserID)

	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/applications/", "", `{"first_name":"A"}`).Code)

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/applications/"+owned.ID.String(), "patient", "").Code)
	assert.Equal(t, http.StatusForbidden, do(http.MethodGet, "/applications/"+owned.ID.String(), "other", "").Code)
	assert.Equal(t, http.StatusForbidden, do(http.MethodGet, "/applications/"+anon.ID.String(), "patient", "").Code)
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/applications/"+anon.ID.String(), "admin", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/applications/"+anon.ID.String(), "", "").Code)

	assert.Equal(t, http.StatusForbidden, do(http.MethodGet, "/applications/", "patient", "").Code)
	rr = do(http.MethodGet, "/applications/?status=new", "admin", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total":3`)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/applications/?status=lost", "admin", "").Code)

	path := "/applications/" + owned.ID.String() + "/status"
	assert.Equal(t, http.StatusForbidden, do(http.MethodPatch, path, "patient", `{"status":"in_progress"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPatch, path, "psy", `{"status":"lost"}`).Code)
	rr = do(http.MethodPatch, path, "psy", `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, applications.StatusCompleted, decode(rr).Status)
	assert.Equal(t, http.StatusConflict, do(http.MethodPatch, path, "psy", `{"status":"in_progress"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodPatch, "/applications/"+uuid.NewString()+"/status", "psy", `{"status":"rejected"}`).Code)
}
