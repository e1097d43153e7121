package api

import (
	"errors"
	"net/http"

	"github.com/vkalinin/devagent-api/internal/domain"
	"github.com/vkalinin/devagent-api/internal/service"
	"github.com/vkalinin/devagent-api/internal/service/auth"
	"github.com/vkalinin/devagent-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrExpiredRefreshToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return http.StatusUnauthorized

	// Authorization errors
	case errors.Is(err, service.ErrNotOwned):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, service.ErrProjectNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors: illegal lifecycle transitions and duplicate emails
	case errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, store.ErrEmailExists):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, domain.ErrMissingContext),
		errors.Is(err, domain.ErrInvalidCapability),
		errors.Is(err, domain.ErrInvalidTaskStatus),
		errors.Is(err, domain.ErrInvalidProgress),
		errors.Is(err, domain.ErrEmptyTaskDescription),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest

	// The store being down is a temporary condition
	case errors.Is(err, store.ErrStoreUnavailable):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return "Invalid token"

	case errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrExpiredRefreshToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid refresh token"

	// Authorization errors
	case errors.Is(err, service.ErrNotOwned):
		return "You do not own this resource"

	// Not found errors
	case errors.Is(err, service.ErrTaskNotFound), errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, service.ErrProjectNotFound), errors.Is(err, store.ErrProjectNotFound):
		return "Project not found"

	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"

	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	// Conflict errors
	case errors.Is(err, domain.ErrIllegalTransition):
		return "Task is not in a state that allows this transition"

	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"

	// Bad request errors
	case errors.Is(err, domain.ErrMissingContext):
		return "Submission is missing context required by the capability"

	case errors.Is(err, domain.ErrInvalidCapability):
		return "Unknown capability"

	case errors.Is(err, domain.ErrInvalidTaskStatus):
		return "Unknown task status"

	case errors.Is(err, domain.ErrInvalidProgress):
		return "Progress must be between 0 and 100"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	case errors.Is(err, store.ErrStoreUnavailable):
		return "Service temporarily unavailable"

	// Default case for unknown errors
	default:
		return "An unexpected error occurred"
	}
}
