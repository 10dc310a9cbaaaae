// Package domain defines the core domain models for the consultation service.
package domain

// Role represents the role of a caller.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ConsultState represents the state of a consultation request.
type ConsultState string

const (
	ConsultStateReceived       ConsultState = "RECEIVED"
	ConsultStateAuthenticating ConsultState = "AUTHENTICATING"
	ConsultStateContextLoaded  ConsultState = "CONTEXT_LOADED"
	ConsultStateReasoning      ConsultState = "REASONING"
	ConsultStateFormatting     ConsultState = "FORMATTING"
	ConsultStateResponded      ConsultState = "RESPONDED"
	ConsultStateFailed         ConsultState = "FAILED"
)

// ErrorKind classifies a failed consultation.
type ErrorKind string

const (
	ErrorKindInvalidInput         ErrorKind = "InvalidInput"
	ErrorKindUnauthenticated      ErrorKind = "Unauthenticated"
	ErrorKindForbidden            ErrorKind = "Forbidden"
	ErrorKindNotFound             ErrorKind = "NotFound"
	ErrorKindRateLimited          ErrorKind = "RateLimited"
	ErrorKindReasoningUnavailable ErrorKind = "ReasoningUnavailable"
	ErrorKindTimeout              ErrorKind = "Timeout"
	ErrorKindCancelled            ErrorKind = "Cancelled"
	ErrorKindMalformedCandidate   ErrorKind = "MalformedCandidate"
	ErrorKindUnknown              ErrorKind = "Unknown"
)

// EventType represents the type of an audit event.
type EventType string

const (
	EventTypeConsultReceived  EventType = "consult_received"
	EventTypeStateChanged     EventType = "state_changed"
	EventTypeReasoningStarted EventType = "reasoning_started"
	EventTypeReasoningDone    EventType = "reasoning_done"
	EventTypeConsultResponded EventType = "consult_responded"
	EventTypeConsultFailed    EventType = "consult_failed"
)
