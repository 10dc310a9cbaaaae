// Package transport holds helpers shared by the HTTP and WebSocket transports.
package transport

import (
	"errors"
	"net/http"
	"strings"

	"github.com/xiaot623/gogo/consult/internal/domain"
)

// Credential extracts the caller token from the Authorization header or,
// failing that, from the named session cookie. It returns "" when the
// request carries no credential.
func Credential(r *http.Request, cookieName string) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			return strings.TrimSpace(auth[7:])
		}
		return ""
	}
	if cookieName == "" {
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// StatusCode maps an error kind to its HTTP status.
func StatusCode(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrorKindInvalidInput:
		return http.StatusBadRequest
	case domain.ErrorKindUnauthenticated:
		return http.StatusUnauthorized
	case domain.ErrorKindForbidden:
		return http.StatusForbidden
	case domain.ErrorKindNotFound:
		return http.StatusNotFound
	case domain.ErrorKindRateLimited:
		return http.StatusTooManyRequests
	case domain.ErrorKindCancelled:
		return 499
	case domain.ErrorKindReasoningUnavailable:
		return http.StatusServiceUnavailable
	case domain.ErrorKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"requestId"`
}

// ErrorDetail describes a failure without internal details.
type ErrorDetail struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// NewErrorBody builds the response body for err. Errors that are not
// consultation errors are reported as Unknown with a generic message.
func NewErrorBody(err error, requestID string) (int, ErrorBody) {
	var ce *domain.ConsultError
	if !errors.As(err, &ce) || ce == nil {
		return http.StatusInternalServerError, ErrorBody{
			Error:     ErrorDetail{Kind: domain.ErrorKindUnknown, Message: "internal error"},
			RequestID: requestID,
		}
	}
	if ce.RequestID != "" {
		requestID = ce.RequestID
	}
	message := ce.Message
	if message == "" {
		message = string(ce.Kind)
	}
	return StatusCode(ce.Kind), ErrorBody{
		Error:     ErrorDetail{Kind: ce.Kind, Message: message},
		RequestID: requestID,
	}
}
