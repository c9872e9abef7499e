package appointments_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psychohelp/psychohelp/internal/appointments"
	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/shared"
)

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

func TestAppointmentEndpoints(t *testing.T) {
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := tokenAuth{"patient": f.patient, "stranger": f.stranger, "psy": f.psyUser, "admin": f.admin}
	mw := rbac.Middleware{Auth: auth, Perms: f.rbac, Logger: logger}
	r := chi.NewRouter()
	r.Route("/appointments", appointments.NewHandler(logger, f.svc, mw).MountRoutes)

	do := func(method, path, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	when := f.now.Add(72 * time.Hour).Format(time.RFC3339)
	body := `{"psychologist_id":"` + f.profile.ID.String() + `","type":"online","scheduled_time":"` + when + `"}`

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/appointments/", "", body).Code)
	// Psychologists do not hold appointments.create_own.
	assert.Equal(t, http.StatusForbidden, do(http.MethodPost, "/appointments/", "psy", body).Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/appointments/", "patient", `{"type":"video"}`).Code)

	rr := do(http.MethodPost, "/appointments/", "patient", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var appt appointments.Appointment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &appt))
	base := "/appointments/" + appt.ID.String()

	assert.Equal(t, http.StatusOK, do(http.MethodGet, base, "patient", "").Code)
	assert.Equal(t, http.StatusForbidden, do(http.MethodGet, base, "stranger", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/appointments/nope", "patient", "").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/appointments/"+uuid.NewString(), "admin", "").Code)

	rr = do(http.MethodGet, "/appointments/pending", "psy", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), appt.ID.String())
	assert.Equal(t, http.StatusForbidden, do(http.MethodGet, "/appointments/pending", "patient", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/appointments/?status=maybe", "patient", "").Code)

	// The gate passes a patient through, ownership is checked afterwards.
	assert.Equal(t, http.StatusForbidden, do(http.MethodPost, base+"/accept", "patient", "").Code)
	assert.Equal(t, http.StatusForbidden, do(http.MethodPost, base+"/accept", "stranger", "").Code)

	rr = do(http.MethodPost, base+"/accept", "psy", `{"comment":"ok"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"status":"accepted"`)

	assert.Equal(t, http.StatusConflict, do(http.MethodPost, base+"/reject", "psy", "").Code)

	rr = do(http.MethodPost, base+"/confirm", "patient", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"status":"done"`)

	assert.Equal(t, http.StatusForbidden, do(http.MethodDelete, base, "patient", "").Code)
	assert.Equal(t, http.StatusNoContent, do(http.MethodDelete, base, "admin", "").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, base, "admin", "").Code)
}
