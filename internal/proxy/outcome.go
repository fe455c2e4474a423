package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"
)

// ErrorKind classifies a failed forwarding attempt. The router maps kinds
// to client-facing status codes.
type ErrorKind string

const (
	// ErrorKindNone means the attempt produced a backend response.
	ErrorKindNone ErrorKind = ""

	// ErrorKindBreakerOpen means the circuit breaker rejected the call
	// before any network I/O.
	ErrorKindBreakerOpen ErrorKind = "breaker-open"

	// ErrorKindTimeout means the call exceeded its deadline.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindUnreachable means the backend refused or never accepted
	// the connection.
	ErrorKindUnreachable ErrorKind = "backend-unreachable"

	// ErrorKindUnknown covers every other transport failure.
	ErrorKindUnknown ErrorKind = "unknown"
)

// HTTPStatus returns the client-facing status code for the error kind.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case ErrorKindBreakerOpen:
		return http.StatusServiceUnavailable
	case ErrorKindTimeout:
		return http.StatusGatewayTimeout
	case ErrorKindUnreachable, ErrorKindUnknown:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

// Message returns a client-facing description of the error kind.
func (k ErrorKind) Message() string {
	switch k {
	case ErrorKindBreakerOpen:
		return "service temporarily unavailable"
	case ErrorKindTimeout:
		return "backend request timed out"
	case ErrorKindUnreachable:
		return "backend unreachable"
	case ErrorKindUnknown:
		return "proxy request failed"
	default:
		return ""
	}
}

// Outcome is the result of one forwarding attempt.
type Outcome struct {
	// StatusCode is the backend status passed through to the client, or
	// zero when no response was written.
	StatusCode int

	// Kind classifies the failure, if any.
	Kind ErrorKind

	// Err is the underlying transport error, if any.
	Err error

	// Duration is the time the attempt took.
	Duration time.Duration
}

// BackendFailure reports whether the outcome counts against the backend's
// circuit breaker: any transport error or 5xx response. Client errors
// (4xx) are not backend failures.
func (o Outcome) BackendFailure() bool {
	return o.Kind != ErrorKindNone || o.StatusCode >= 500
}

// ResponseWritten reports whether a response (or at least its headers)
// reached the client, in which case the router must not write an error
// body on top.
func (o Outcome) ResponseWritten() bool {
	return o.StatusCode != 0
}

// Classify maps a transport error to its ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrorKindUnreachable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return ErrorKindUnreachable
	}
	return ErrorKindUnknown
}
