package ws

import (
	"github.com/xiaot623/gogo/consult/internal/domain"
	"github.com/xiaot623/gogo/consult/internal/transport"
)

// Message types from client to server
const (
	TypeConsult = "consult"
)

// Message types from server to client
const (
	TypeResult = "result"
	TypeError  = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
}

// ConsultMessage asks for a consultation.
type ConsultMessage struct {
	BaseMessage
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

// ResultMessage carries a consultation response.
type ResultMessage struct {
	BaseMessage
	Response *domain.ConsultationResponse `json:"response"`
}

// ErrorMessage reports a failed frame.
type ErrorMessage struct {
	BaseMessage
	Status int                   `json:"status"`
	Error  transport.ErrorDetail `json:"error"`
}
