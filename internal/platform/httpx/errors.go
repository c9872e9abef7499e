// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/psychohelp/psychohelp/internal/shared"
)

// Sentinel errors for the domain layer. They alias the shared sentinels so
// domain packages never import the transport package.
var (
	ErrNotFound       = shared.ErrNotFound
	ErrDuplicate      = shared.ErrAlreadyExists
	ErrConflict       = shared.ErrInvalidState
	ErrValidation     = shared.ErrValidation
	ErrForbidden      = shared.ErrForbidden
	ErrUnauthorized   = shared.ErrUnauthenticated
	ErrBadCredentials = shared.ErrInvalidCredentials
)

// StatusFor maps an error to the HTTP status RespondError would use.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrBadCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Internal errors never leak their message to the client.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusNotFound:
		Problem(w, status, "Not Found", err.Error())
	case http.StatusConflict:
		Problem(w, status, "Conflict", err.Error())
	case http.StatusBadRequest:
		Problem(w, status, "Validation Failed", err.Error())
	case http.StatusForbidden:
		Problem(w, status, "Forbidden", shared.ErrForbidden.Error())
	case http.StatusUnauthorized:
		Unauthorized(w)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// Unauthorized writes the single collapsed authentication failure response.
func Unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="psychohelp"`)
	Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrUnauthenticated.Error())
}

// Forbidden writes the uniform access-denied response.
func Forbidden(w http.ResponseWriter) {
	Problem(w, http.StatusForbidden, "Forbidden", shared.ErrForbidden.Error())
}
