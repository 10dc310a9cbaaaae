package llm

import (
	"log/slog"
	"os"
	"time"
)

const (
	// EnvMode selects the completion backend.
	EnvMode = "GOGO_MODE"
	// ModeMock answers from the keyword table instead of the network.
	ModeMock = "MOCK"
)

// NewCompleter returns a MockClient when GOGO_MODE=MOCK and a Client otherwise.
func NewCompleter(baseURL, apiKey string, timeout time.Duration) Completer {
	if os.Getenv(EnvMode) == ModeMock {
		slog.Info("mock completion mode enabled", "env", EnvMode)
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, timeout)
}
