package errors

import (
	"errors"
	"net/http"
)

// MapToHTTPStatus translates domain errors into stable HTTP status codes
// at the transport boundary. Unknown errors are treated as internal
// failures so storage details never leak to clients.
func MapToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidOperation),
		errors.Is(err, ErrInvalidPassword):
		return http.StatusBadRequest
	case errors.Is(err, ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
