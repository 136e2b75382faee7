// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Common sentinels across client layers.
var (
	// ErrUnauthenticated indicates there is no valid session, or it could not be recovered by a refresh.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden indicates the session is valid but lacks the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the server refused a change because of the current state (e.g., duplicate book).
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates form input was rejected client-side before any request was sent.
	ErrValidation = errors.New("validation failed")

	// ErrUnavailable indicates the backend is unreachable or the circuit breaker is open.
	ErrUnavailable = errors.New("service unavailable")
)

// APIError is a non-2xx response from the backend with the message it carried.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Unwrap maps well-known statuses onto sentinels so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthenticated
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusServiceUnavailable:
		return ErrUnavailable
	default:
		return nil
	}
}
