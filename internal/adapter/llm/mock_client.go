package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// MockClient answers without a network round trip. Unless Reply or Err is
// set, the answer is a candidates document built from keywords of the last
// user message.
type MockClient struct {
	// Delay is waited, or interrupted by ctx, before answering.
	Delay time.Duration
	Err   error
	Reply string
}

// NewMockClient creates a new mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

type mockCandidate struct {
	Condition   string   `json:"condition"`
	Confidence  float64  `json:"confidence"`
	Medications []string `json:"medications"`
}

var mockKeywords = []struct {
	keyword   string
	candidate mockCandidate
}{
	{"cough", mockCandidate{"Acute bronchitis", 0.55, []string{"Dextromethorphan", "Guaifenesin"}}},
	{"fever", mockCandidate{"Influenza", 0.45, []string{"Paracetamol", "Ibuprofen"}}},
	{"headache", mockCandidate{"Tension headache", 0.5, []string{"Ibuprofen"}}},
	{"sneez", mockCandidate{"Allergic rhinitis", 0.5, []string{"Cetirizine", "Loratadine"}}},
	{"heartburn", mockCandidate{"Acid reflux", 0.6, []string{"Omeprazole", "Calcium carbonate"}}},
}

// Complete implements Completer.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}

	content := m.Reply
	if content == "" {
		content = keywordAnswer(lastUserMessage(req.Messages))
	}
	return &Completion{Model: req.Model, Content: content, FinishReason: "stop"}, nil
}

func lastUserMessage(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

func keywordAnswer(message string) string {
	message = strings.ToLower(message)
	candidates := []mockCandidate{}
	for _, kw := range mockKeywords {
		if strings.Contains(message, kw.keyword) {
			candidates = append(candidates, kw.candidate)
		}
	}
	out, _ := json.Marshal(map[string]interface{}{"candidates": candidates})
	return string(out)
}
