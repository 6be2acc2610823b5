package api

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when an authenticated call is rejected
	// with 401. The session must be treated as dead, not retried.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned on a 404. For the conversation fetch this is
	// the empty state, not a failure.
	ErrNotFound = errors.New("not found")

	// ErrEmptyMessage is returned when message content is empty after
	// trimming. The request is rejected locally and never sent.
	ErrEmptyMessage = errors.New("message content is empty")
)

// AuthError reports a rejected login attempt. The session stays anonymous
// and the reason is shown to the user.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// StatusError reports an unexpected HTTP status from the backend.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error: status %d: %s", e.Status, e.Body)
}
