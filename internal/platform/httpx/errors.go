// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/tagboard/tagboard/internal/shared"
)

// Status maps the job and authentication error kinds to an HTTP status.
func Status(err error) int {
	var (
		validation   *shared.ValidationError
		precondition *shared.UnsatisfiedPreconditionError
		privileges   *shared.InsufficientPrivilegesError
		authn        *shared.AuthenticationError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation), errors.As(err, &precondition):
		return http.StatusBadRequest
	case errors.As(err, &privileges):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrBanned), errors.Is(err, shared.ErrPendingActivation):
		return http.StatusForbidden
	case errors.As(err, &authn):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as RFC7807 problem details. Internal errors never
// leak their message.
func RespondError(w http.ResponseWriter, err error) {
	status := Status(err)
	Problem(w, status, http.StatusText(status), shared.UserSafeMessage(err))
}
