package completion

import (
	"fmt"
	"net/http"

	"github.com/teranos/ldschema/errors"
)

// ErrorClass groups completion failures by how callers should react
type ErrorClass string

const (
	ClassAuth      ErrorClass = "auth"       // no key, 401, 403: never retried
	ClassRateLimit ErrorClass = "rate_limit" // 429
	ClassServer    ErrorClass = "server"     // 5xx
	ClassClient    ErrorClass = "client"     // other 4xx and malformed responses
	ClassTransport ErrorClass = "transport"  // dial, reset, timeout
)

// ServiceError is a failed call to the completion service
type ServiceError struct {
	Class      ErrorClass
	StatusCode int    // 0 for transport failures
	Code       string // provider error code, e.g. "no_api_key", "invalid_api_key"
	Message    string
	cause      error
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("completion %s error (status %d, code %q): %s", e.Class, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("completion %s error (code %q): %s", e.Class, e.Code, e.Message)
}

// Unwrap maps the class onto the shared sentinels so errors.Is works across packages
func (e *ServiceError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	switch e.Class {
	case ClassAuth:
		if e.Code == "no_api_key" {
			return errors.ErrNoAPIKey
		}
		return errors.ErrUnauthorized
	case ClassRateLimit:
		return errors.ErrRateLimited
	case ClassServer:
		return errors.ErrServiceUnavailable
	case ClassClient:
		return errors.ErrInvalidRequest
	}
	return nil
}

// Retryable reports whether another attempt could succeed
func (e *ServiceError) Retryable() bool {
	switch e.Class {
	case ClassRateLimit, ClassServer, ClassTransport:
		return true
	}
	return false
}

// classifyStatus maps a non-200 HTTP status to an error class
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ClassAuth
	case status == http.StatusTooManyRequests:
		return ClassRateLimit
	case status >= 500:
		return ClassServer
	default:
		return ClassClient
	}
}

// transportError wraps a failure below HTTP. Timeouts keep ErrTimeout in the chain.
func transportError(err error, timedOut bool) *ServiceError {
	cause := errors.Wrap(errors.ErrServiceUnavailable, err.Error())
	if timedOut {
		cause = errors.Wrap(errors.ErrTimeout, err.Error())
	}
	return &ServiceError{
		Class:   ClassTransport,
		Code:    "transport",
		Message: err.Error(),
		cause:   cause,
	}
}

// ClassOf returns the class of err, or "" if err is not a ServiceError
func ClassOf(err error) ErrorClass {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Class
	}
	return ""
}
