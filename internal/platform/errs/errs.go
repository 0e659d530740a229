// Package errs defines the failure taxonomy shared by every domain package.
// Services wrap these sentinels with fmt.Errorf("...: %w", ...) so callers
// can classify failures with errors.Is while keeping the message specific.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound marks a referenced user, family, invitation, grant or
	// record that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized marks a caller lacking rights for the requested
	// mutation: wrong role, wrong family, under minimum age, self-kick.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict marks an invariant violation: duplicate membership,
	// duplicate active grant, duplicate pending invitation, stale state.
	ErrConflict = errors.New("conflict")

	// ErrExpired marks an invitation or grant past its validity window.
	ErrExpired = errors.New("expired")

	// ErrExternal marks a storage/object-store/auth collaborator failure.
	ErrExternal = errors.New("external dependency failure")

	// ErrPartialSuccess marks an operation that completed data-wise but
	// could not finish an external stage (credential retained on deletion).
	ErrPartialSuccess = errors.New("partial success")
)

func NotFound(format string, a ...interface{}) error {
	return fmt.Errorf(format+": %w", append(a, ErrNotFound)...)
}

func Unauthorized(format string, a ...interface{}) error {
	return fmt.Errorf(format+": %w", append(a, ErrUnauthorized)...)
}

func Conflict(format string, a ...interface{}) error {
	return fmt.Errorf(format+": %w", append(a, ErrConflict)...)
}

func Expired(format string, a ...interface{}) error {
	return fmt.Errorf(format+": %w", append(a, ErrExpired)...)
}

func External(err error, format string, a ...interface{}) error {
	msg := fmt.Sprintf(format, a...)
	return fmt.Errorf("%s: %v: %w", msg, err, ErrExternal)
}

// HTTPStatus maps a classified error to its response code. Unclassified
// errors are treated as internal.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrExpired):
		return http.StatusGone
	case errors.Is(err, ErrPartialSuccess):
		return http.StatusOK
	case errors.Is(err, ErrExternal):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
