package server

import (
	"context"
	"net/http"

	"github.com/teranos/ldschema/ai/completion"
	"github.com/teranos/ldschema/errors"
)

// ErrForbidden indicates the caller lacks the capability for a view
var ErrForbidden = errors.New("forbidden")

// statusFor maps an error onto an HTTP status. Completion failures are the
// upstream's fault, so they surface as 502 even when classified as client
// errors, except rate limits which pass through as 429.
func statusFor(err error) int {
	var svcErr *completion.ServiceError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.As(err, &svcErr):
		return http.StatusBadGateway
	case errors.IsAny(err, errors.ErrUnauthorized, errors.ErrNoAPIKey, errors.ErrServiceUnavailable, errors.ErrAIResponseParse):
		return http.StatusBadGateway
	case errors.IsAny(err, errors.ErrTimeout, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.IsInvalidRequestError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
