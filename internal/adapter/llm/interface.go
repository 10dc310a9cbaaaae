// Package llm talks to OpenAI-compatible chat completion endpoints.
package llm

import "context"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest asks for a single non-streaming completion.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	// JSON asks the endpoint to answer with a JSON object.
	JSON bool
}

// Completion is the first choice of a completion.
type Completion struct {
	Model        string
	Content      string
	FinishReason string
}

// Completer produces completions.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

var (
	_ Completer = (*Client)(nil)
	_ Completer = (*MockClient)(nil)
)
