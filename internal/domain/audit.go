package domain

import (
	"encoding/json"
	"time"
)

// Consultation is the audit record of a single gateway request.
type Consultation struct {
	RequestID string       `json:"request_id"`
	UserID    string       `json:"user_id,omitempty"`
	Anonymous bool         `json:"anonymous"`
	Status    ConsultState `json:"status"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
	ErrorKind ErrorKind    `json:"error_kind,omitempty"`
}

// Event is a trace event of a consultation.
type Event struct {
	EventID   string          `json:"event_id"`
	RequestID string          `json:"request_id"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
