// Package errors provides error handling for ldschema.
//
// It re-exports github.com/cockroachdb/errors so every package gets stack
// traces, wrapping, hints and details from one import, and it defines the
// sentinels that callers branch on.
//
// Only the repair path and the completion request layer return errors that
// callers must inspect. Validation and registration never return errors;
// they report through jsonld.Report and the registry's blocked list.
//
// Usage:
//
//	if err := client.Complete(ctx, req); err != nil {
//	    if errors.Is(err, errors.ErrRateLimited) {
//	        // back off
//	    }
//	    return errors.Wrap(err, "repair attempt")
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Sentinels shared across packages. Wrap them to add context; check them
// with Is.
var (
	// ErrNotFound indicates the requested content, review entry or version does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrUnauthorized indicates the completion service rejected our credentials
	ErrUnauthorized = New("unauthorized")

	// ErrNoAPIKey indicates no completion API key is configured
	ErrNoAPIKey = New("no_api_key")

	// ErrRateLimited indicates the completion service answered 429
	ErrRateLimited = New("rate limited")

	// ErrServiceUnavailable indicates the completion service failed with a 5xx
	// or could not be reached
	ErrServiceUnavailable = New("service unavailable")

	// ErrTimeout indicates an outbound call timed out
	ErrTimeout = New("operation timed out")

	// ErrAIResponseParse indicates the completion service returned text that
	// could not be turned into JSON, even after normalization
	ErrAIResponseParse = New("unparsable AI response")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsRetryable reports whether a transport-level failure is worth another
// attempt: rate limits, server faults and timeouts are; auth failures and
// unparsable responses never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsAny(err, ErrUnauthorized, ErrNoAPIKey, ErrAIResponseParse, ErrInvalidRequest) {
		return false
	}
	return IsAny(err, ErrRateLimited, ErrServiceUnavailable, ErrTimeout)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
