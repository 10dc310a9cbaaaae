package reasoner

import (
	"fmt"

	"github.com/xiaot623/gogo/consult/internal/adapter/llm"
	"github.com/xiaot623/gogo/consult/internal/config"
)

const (
	BackendRules = "rules"
	BackendLLM   = "llm"
)

// FromConfig builds the reasoner selected by cfg.ReasonerBackend.
func FromConfig(cfg *config.Config) (Reasoner, error) {
	switch cfg.ReasonerBackend {
	case BackendRules, "":
		catalog, err := LoadCatalog(cfg.ReasonerCatalog)
		if err != nil {
			return nil, err
		}
		return NewRuleReasoner(catalog,
			WithMinConfidence(cfg.MinConfidence),
			WithMaxMessageLength(cfg.MaxMessageLength),
		), nil
	case BackendLLM:
		client := llm.NewCompleter(cfg.LiteLLMURL, cfg.LiteLLMAPIKey, cfg.LLMTimeout)
		return NewLLMReasoner(client, cfg.LLMModel, cfg.MinConfidence, cfg.MaxMessageLength), nil
	default:
		return nil, fmt.Errorf("unknown reasoner backend %q", cfg.ReasonerBackend)
	}
}
