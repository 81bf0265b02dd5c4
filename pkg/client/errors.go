package client

import (
	"errors"
	"fmt"
)

// APIError is returned when the API responds with a non-success status, or a
// connection to it fails permanently. Status is 0 when no HTTP response was
// received.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return "api error: " + e.Message
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// SpecificationError reports invalid caller input. It is always returned before any I/O.
type SpecificationError struct {
	Attribute string
	Message   string
}

func (e *SpecificationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Attribute, e.Message)
}

// AuthError reports a credential problem raised by the token provider.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Message, e.Err)
	}
	return "authentication failed: " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// ClientError is a generic failure inside the client.
type ClientError struct {
	Message string
	Err     error
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ClientError) Unwrap() error { return e.Err }

// TimeoutError is returned when a wait exhausts its poll budget.
type TimeoutError struct {
	Target string
}

func (e *TimeoutError) Error() string {
	return "timeout waiting for " + e.Target
}

// EntityError reports that a resource reached a failure state.
type EntityError struct {
	Kind   string
	Status string
	Entity string
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s %s entered status %q", e.Kind, e.Entity, e.Status)
}

// IsStatus reports whether err carries an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// IsNotFound reports whether err is a 404 APIError.
func IsNotFound(err error) bool {
	return IsStatus(err, 404)
}
