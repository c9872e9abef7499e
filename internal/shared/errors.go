package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness conflict.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidState indicates an operation not allowed in the current resource state.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation indicates malformed client input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates a missing or unusable credential.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrForbidden indicates an authenticated principal lacking rights.
	ErrForbidden = errors.New("insufficient permissions")
)
