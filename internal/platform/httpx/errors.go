// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/retailstock/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) (int, string) {
	var transition *shared.TransitionError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, "Validation Failed"
	case errors.As(err, &transition):
		return http.StatusConflict, "Illegal State Transition"
	case errors.Is(err, shared.ErrConcurrentModification):
		return http.StatusConflict, "Concurrent Modification"
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return http.StatusConflict, "Duplicate Request"
	case errors.Is(err, shared.ErrNegativeStock):
		return http.StatusUnprocessableEntity, "Negative Stock"
	case errors.Is(err, shared.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "Insufficient Stock"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, title := StatusFor(err)
	detail := shared.UserSafeMessage(err)
	switch {
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrUnauthorized):
		detail = err.Error()
	}
	problem := ProblemDetail{Title: title, Status: status, Detail: detail}
	var transition *shared.TransitionError
	if errors.As(err, &transition) {
		problem.CurrentStatus = transition.Status
	}
	var verr *shared.ValidationError
	if errors.As(err, &verr) && verr.Field != "" {
		problem.Field = verr.Field
	}
	writeProblem(w, problem)
}
