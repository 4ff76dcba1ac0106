// Package errs defines the error taxonomy shared by the session,
// storage and API client layers. Callers branch with errors.Is /
// errors.As rather than string matching.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrAuthFailed means a token refresh cycle was exhausted. The session
// has been cleared; the user must log in again.
var ErrAuthFailed = errors.New("authentication failed: session expired, please log in again")

// Kind classifies request-layer failures.
type Kind string

const (
	KindTimeout Kind = "timeout"
	KindNetwork Kind = "network"
	KindHTTP    Kind = "http"
)

// ValidationError reports bad caller input (empty credentials,
// non-positive ids). Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Msg
}

// AuthenticationError means the server explicitly rejected a login
// attempt. Message carries the server-supplied reason when present.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "authentication rejected by server"
	}
	return "authentication rejected: " + e.Message
}

// RequestError wraps a failed HTTP exchange. StatusCode is zero for
// transport-level failures (timeout, connection refused).
type RequestError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	switch e.Kind {
	case KindTimeout:
		return "request timed out"
	case KindNetwork:
		return fmt.Sprintf("network error: %v", e.Err)
	default:
		if e.Message != "" {
			return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
		}
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
}

func (e *RequestError) Unwrap() error { return e.Err }

// FromTransport converts a transport-level failure (no HTTP status
// available) into a RequestError, distinguishing timeouts from other
// network errors.
func FromTransport(err error) *RequestError {
	kind := KindNetwork
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		kind = KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &RequestError{Kind: kind, Err: err}
}

// UnexpectedFormatError means the response body did not match the
// documented shape. Non-retryable; Body is kept for diagnostics.
type UnexpectedFormatError struct {
	StatusCode int
	Body       string
}

func (e *UnexpectedFormatError) Error() string {
	return fmt.Sprintf("unexpected response format (status %d)", e.StatusCode)
}

// StorageError reports an I/O failure in one of the credential store
// tiers. Always propagated: silently losing a token write would cause
// silent re-authentication loops.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// InitializationError means the session could not load its persisted
// state. Fatal for that session attempt; distinct from "no entry
// found", which is not an error.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("session initialization failed: %v", e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }
