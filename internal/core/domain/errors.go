package domain

import (
	"errors"
	"fmt"
)

// ErrEmptyCommand is returned when a submitted line is empty after trimming.
// It is handled locally and never reaches the exec endpoint.
var ErrEmptyCommand = errors.New("empty command")

// ErrTransport covers network failures and non-success replies from the exec endpoint.
var ErrTransport = errors.New("transport failure")

// ErrAuth is returned when the bearer token is missing, invalid or expired.
var ErrAuth = errors.New("authentication failure")

// ErrTimeout is returned when an exec call does not resolve within the configured timeout.
var ErrTimeout = errors.New("exec timed out")

// ErrInFlight is returned when a second exec call is made for a container
// while a previous one is still outstanding.
var ErrInFlight = errors.New("exec already in flight for container")

// ErrContainerNotFound is returned when a container is unknown to the directory.
var ErrContainerNotFound = errors.New("container not found")

// ErrContainerNotRunning is returned when a container exists but is not running.
var ErrContainerNotRunning = errors.New("container is not running")

// ExecError is the single error variant surfaced by an exec transport.
// Kind is one of ErrTransport, ErrAuth, ErrTimeout or ErrInFlight.
type ExecError struct {
	Kind    error
	Message string
	Status  int
	Err     error
}

func (e *ExecError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *ExecError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewExecError builds an ExecError of the given kind.
func NewExecError(kind error, status int, message string, cause error) *ExecError {
	return &ExecError{Kind: kind, Status: status, Message: message, Err: cause}
}

// ErrUserExists is returned when signing up with an email that is already registered.
var ErrUserExists = errors.New("email already registered")

// ErrUserNotFound is returned when no account matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrInvalidCredentials is returned when an email and password do not match.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrImageRequired is returned when a container is requested without an image or repository.
var ErrImageRequired = errors.New("image name or repo URL is required")
