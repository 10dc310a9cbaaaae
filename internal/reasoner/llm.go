package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/xiaot623/gogo/consult/internal/adapter/llm"
	"github.com/xiaot623/gogo/consult/internal/domain"
)

const systemPrompt = `You are a pharmacy triage assistant. Given the patient's description of symptoms, list possible conditions with a confidence between 0 and 1 and over-the-counter medications a pharmacist could recommend.
Answer with JSON only, in the form:
{"candidates":[{"condition":"<name>","confidence":<0..1>,"medications":["<name>"]}]}
Return an empty candidates list if the description is not enough to suggest anything.`

// LLMReasoner asks an OpenAI-compatible chat completion endpoint.
type LLMReasoner struct {
	client        llm.Completer
	model         string
	minConfidence float64
	maxLen        int
}

// NewLLMReasoner creates a reasoner backed by client.
func NewLLMReasoner(client llm.Completer, model string, minConfidence float64, maxLen int) *LLMReasoner {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	return &LLMReasoner{
		client:        client,
		model:         model,
		minConfidence: minConfidence,
		maxLen:        maxLen,
	}
}

type llmCandidate struct {
	Condition   string   `json:"condition"`
	Confidence  *float64 `json:"confidence"`
	Medications []string `json:"medications"`
}

type llmAnswer struct {
	Candidates []llmCandidate `json:"candidates"`
}

// Diagnose implements Reasoner.
func (r *LLMReasoner) Diagnose(ctx context.Context, req domain.SymptomRequest) ([]domain.DiagnosisCandidate, error) {
	if err := ValidateMessage(req.Message, r.maxLen); err != nil {
		return nil, err
	}

	resp, err := r.client.Complete(ctx, llm.CompletionRequest{
		Model:    r.model,
		Messages: buildMessages(req),
		JSON:     true,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	content := resp.Content
	if content == "" {
		return nil, fmt.Errorf("%w: empty completion", ErrMalformedOutput)
	}
	candidates, err := parseAnswer(content)
	if err != nil {
		return nil, err
	}
	return Rank(candidates, r.minConfidence), nil
}

func buildMessages(req domain.SymptomRequest) []llm.Message {
	messages := make([]llm.Message, 0, 2+2*len(req.Context))
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	for _, t := range req.Context {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: t.Message},
			llm.Message{Role: llm.RoleAssistant, Content: t.Response},
		)
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})
}

// parseAnswer decodes the model answer. Code fences around the JSON are
// tolerated; anything else that is not a candidates document is malformed.
func parseAnswer(content string) ([]domain.DiagnosisCandidate, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var answer llmAnswer
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &answer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	out := make([]domain.DiagnosisCandidate, 0, len(answer.Candidates))
	for i, c := range answer.Candidates {
		name := strings.TrimSpace(c.Condition)
		if name == "" {
			return nil, fmt.Errorf("%w: candidate %d has no condition", ErrMalformedOutput, i)
		}
		if c.Confidence == nil || math.IsNaN(*c.Confidence) || *c.Confidence < 0 || *c.Confidence > 1 {
			return nil, fmt.Errorf("%w: candidate %q has invalid confidence", ErrMalformedOutput, name)
		}
		meds := make([]domain.MedicationRef, 0, len(c.Medications))
		for _, m := range c.Medications {
			if m = strings.TrimSpace(m); m != "" {
				meds = append(meds, domain.MedicationRef(m))
			}
		}
		out = append(out, domain.DiagnosisCandidate{
			Condition:              name,
			Confidence:             *c.Confidence,
			RecommendedMedications: meds,
		})
	}
	return out, nil
}
