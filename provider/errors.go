package provider

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures into the small set of categories
// the core's error handling design depends on for retry and propagation
// decisions.
type ErrorKind string

const (
	// ErrorKindAuth indicates no usable credential was found for the call.
	ErrorKindAuth ErrorKind = "auth"
	// ErrorKindRateLimited indicates the provider throttled the request.
	ErrorKindRateLimited ErrorKind = "rate_limited"
	// ErrorKindTransient indicates a retryable network/provider failure.
	// The core does not retry internally; the pattern executor fails and
	// the run fails.
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindFatal indicates a non-retryable provider response.
	ErrorKindFatal ErrorKind = "fatal"
)

// Error describes a failure returned by a provider Backend. It crosses
// package boundaries so the agent runtime, pattern executors, and graph
// executor can make stable, structured decisions without depending on a
// specific backend's error types.
type Error struct {
	backend   string
	operation string
	kind      ErrorKind
	message   string
	cause     error
}

// NewError constructs a provider Error. backend and kind are required.
func NewError(backend, operation string, kind ErrorKind, message string, cause error) *Error {
	if backend == "" {
		panic("provider: backend is required")
	}
	if kind == "" {
		panic("provider: error kind is required")
	}
	return &Error{backend: backend, operation: operation, kind: kind, message: message, cause: cause}
}

// Backend returns the backend identifier (for example, "streaming").
func (e *Error) Backend() string { return e.backend }

// Kind returns the coarse-grained classification used for propagation
// decisions.
func (e *Error) Kind() ErrorKind { return e.kind }

// Error implements the error interface.
func (e *Error) Error() string {
	op := e.operation
	if op == "" {
		op = "invoke"
	}
	msg := e.message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if msg == "" {
		msg = "provider error"
	}
	return fmt.Sprintf("%s %s (%s): %s", e.backend, e.kind, op, msg)
}

// Unwrap returns the underlying error to preserve the original error chain.
func (e *Error) Unwrap() error { return e.cause }

// AsError returns the first provider Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
