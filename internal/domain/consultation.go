package domain

import "time"

// Turn is one completed exchange. It is immutable once written.
type Turn struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
}

// ConversationContext holds the most recent turns of a user, oldest first.
type ConversationContext []Turn

// Messages returns the caller messages of the context in chronological order.
func (c ConversationContext) Messages() []string {
	out := make([]string, 0, len(c))
	for _, t := range c {
		out = append(out, t.Message)
	}
	return out
}

// SymptomRequest is the transient input of the reasoner.
type SymptomRequest struct {
	UserID  string
	Message string
	Context ConversationContext
}

// MedicationRef names a recommended medication.
type MedicationRef string

// DiagnosisCandidate is one possible diagnosis.
type DiagnosisCandidate struct {
	Condition              string          `json:"condition"`
	Confidence             float64         `json:"confidence"`
	RecommendedMedications []MedicationRef `json:"recommendedMedications"`
}

// ConsultationResponse is returned to the caller and never mutated afterwards.
type ConsultationResponse struct {
	Candidates    []DiagnosisCandidate `json:"candidates"`
	Disclaimer    string               `json:"disclaimer"`
	RequestID     string               `json:"requestId"`
	LowConfidence bool                 `json:"lowConfidence,omitempty"`
}

// ConsultBody is the JSON body accepted by the consultation endpoints.
type ConsultBody struct {
	Message string `json:"message"`
	UserID  string `json:"userId,omitempty"`
}
