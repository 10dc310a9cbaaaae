package reasoner

import (
	"context"
	"math"

	"github.com/xiaot623/gogo/consult/internal/domain"
)

// DefaultContextWeight scales symptoms found only in earlier turns.
const DefaultContextWeight = 0.5

// RuleReasoner scores catalog conditions against the message and context.
type RuleReasoner struct {
	catalog       *Catalog
	minConfidence float64
	maxLen        int
	contextWeight float64
}

// RuleOption configures a RuleReasoner.
type RuleOption func(*RuleReasoner)

// WithMinConfidence overrides DefaultMinConfidence.
func WithMinConfidence(v float64) RuleOption {
	return func(r *RuleReasoner) { r.minConfidence = v }
}

// WithMaxMessageLength overrides DefaultMaxMessageLength.
func WithMaxMessageLength(n int) RuleOption {
	return func(r *RuleReasoner) { r.maxLen = n }
}

// WithContextWeight overrides DefaultContextWeight.
func WithContextWeight(w float64) RuleOption {
	return func(r *RuleReasoner) { r.contextWeight = w }
}

// NewRuleReasoner creates a rule reasoner over catalog.
func NewRuleReasoner(catalog *Catalog, opts ...RuleOption) *RuleReasoner {
	r := &RuleReasoner{
		catalog:       catalog,
		minConfidence: DefaultMinConfidence,
		maxLen:        DefaultMaxMessageLength,
		contextWeight: DefaultContextWeight,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Diagnose implements Reasoner.
func (r *RuleReasoner) Diagnose(ctx context.Context, req domain.SymptomRequest) ([]domain.DiagnosisCandidate, error) {
	if err := ValidateMessage(req.Message, r.maxLen); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := tokenize(req.Message)
	history := make([][]string, 0, len(req.Context))
	for _, m := range req.Context.Messages() {
		history = append(history, tokenize(m))
	}

	candidates := make([]domain.DiagnosisCandidate, 0, len(r.catalog.Conditions))
	for i := range r.catalog.Conditions {
		cond := &r.catalog.Conditions[i]
		confidence := r.score(cond, text, history)
		if confidence <= 0 {
			continue
		}
		meds := make([]domain.MedicationRef, 0, len(cond.Medications))
		for _, m := range cond.Medications {
			meds = append(meds, domain.MedicationRef(m))
		}
		candidates = append(candidates, domain.DiagnosisCandidate{
			Condition:              cond.Name,
			Confidence:             confidence,
			RecommendedMedications: meds,
		})
	}
	return Rank(candidates, r.minConfidence), nil
}

func (r *RuleReasoner) score(cond *Condition, text []string, history [][]string) float64 {
	total := cond.TotalWeight()
	if total <= 0 {
		return 0
	}
	var evidence float64
	for i := range cond.Symptoms {
		sym := &cond.Symptoms[i]
		if sym.matchesAny(text) {
			evidence += sym.Weight
			continue
		}
		for _, h := range history {
			if sym.matchesAny(h) {
				evidence += sym.Weight * r.contextWeight
				break
			}
		}
	}
	confidence := math.Round(evidence/total*1000) / 1000
	return math.Min(confidence, 1)
}
