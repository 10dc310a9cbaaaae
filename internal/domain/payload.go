package domain

// StateChangedPayload is the payload of a state_changed event.
type StateChangedPayload struct {
	From ConsultState `json:"from"`
	To   ConsultState `json:"to"`
}

// ReasoningDonePayload is the payload of a reasoning_done event.
type ReasoningDonePayload struct {
	Candidates int   `json:"candidates"`
	LatencyMs  int64 `json:"latency_ms"`
}

// ConsultFailedPayload is the payload of a consult_failed event.
type ConsultFailedPayload struct {
	Kind    ErrorKind    `json:"kind"`
	State   ConsultState `json:"state"`
	Message string       `json:"message"`
}
