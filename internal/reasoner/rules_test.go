package reasoner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/consult/internal/domain"
)

func newRuleReasoner(t *testing.T, opts ...RuleOption) *RuleReasoner {
	t.Helper()
	cat, err := DefaultCatalog()
	require.NoError(t, err)
	return NewRuleReasoner(cat, opts...)
}

func confidenceOf(cands []domain.DiagnosisCandidate, condition string) float64 {
	for _, c := range cands {
		if c.Condition == condition {
			return c.Confidence
		}
	}
	return 0
}

func TestRuleReasonerDryCough(t *testing.T) {
	r := newRuleReasoner(t)
	cands, err := r.Diagnose(context.Background(), domain.SymptomRequest{
		UserID:  "u1",
		Message: "I have a persistent dry cough and mild fever for 3 days",
	})
	require.NoError(t, err)
	require.NotEmpty(t, cands)

	assert.Equal(t, "Acute bronchitis", cands[0].Condition)
	assert.Greater(t, cands[0].Confidence, 0.15)
	assert.Contains(t, cands[0].RecommendedMedications, domain.MedicationRef("Dextromethorphan"))

	for i := 1; i < len(cands); i++ {
		assert.GreaterOrEqual(t, cands[i-1].Confidence, cands[i].Confidence)
	}
	for _, c := range cands {
		assert.GreaterOrEqual(t, c.Confidence, DefaultMinConfidence)
		assert.LessOrEqual(t, c.Confidence, 1.0)
	}
}

func TestRuleReasonerNoMatch(t *testing.T) {
	r := newRuleReasoner(t)
	cands, err := r.Diagnose(context.Background(), domain.SymptomRequest{Message: "hello there"})
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestRuleReasonerRejectsInvalidInput(t *testing.T) {
	r := newRuleReasoner(t, WithMaxMessageLength(10))

	_, err := r.Diagnose(context.Background(), domain.SymptomRequest{Message: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = r.Diagnose(context.Background(), domain.SymptomRequest{Message: "cough cough cough"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRuleReasonerMonotonic(t *testing.T) {
	r := newRuleReasoner(t, WithMinConfidence(0))
	ctx := context.Background()

	base, err := r.Diagnose(ctx, domain.SymptomRequest{Message: "I have a cough"})
	require.NoError(t, err)
	more, err := r.Diagnose(ctx, domain.SymptomRequest{Message: "I have a cough with wheezing and chest pain"})
	require.NoError(t, err)

	for _, c := range base {
		assert.GreaterOrEqual(t, confidenceOf(more, c.Condition), c.Confidence, c.Condition)
	}
	assert.Greater(t, confidenceOf(more, "Acute bronchitis"), confidenceOf(base, "Acute bronchitis"))
}

func TestRuleReasonerUsesContext(t *testing.T) {
	r := newRuleReasoner(t, WithMinConfidence(0))
	ctx := context.Background()

	without, err := r.Diagnose(ctx, domain.SymptomRequest{Message: "now I also have wheezing"})
	require.NoError(t, err)
	with, err := r.Diagnose(ctx, domain.SymptomRequest{
		Message: "now I also have wheezing",
		Context: domain.ConversationContext{
			{UserID: "u1", Timestamp: time.Now(), Message: "I have a bad cough", Response: "..."},
		},
	})
	require.NoError(t, err)

	// cough (3) at half weight on top of wheezing (1), out of 10.
	assert.InDelta(t, 0.1, confidenceOf(without, "Acute bronchitis"), 1e-9)
	assert.InDelta(t, 0.25, confidenceOf(with, "Acute bronchitis"), 1e-9)
}

func TestRuleReasonerNegation(t *testing.T) {
	r := newRuleReasoner(t, WithMinConfidence(0))
	cands, err := r.Diagnose(context.Background(), domain.SymptomRequest{Message: "diarrhea but no fever"})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, confidenceOf(cands, "Gastroenteritis"), 1e-9)
}

func TestRuleReasonerWordBoundaries(t *testing.T) {
	r := newRuleReasoner(t, WithMinConfidence(0))
	cands, err := r.Diagnose(context.Background(), domain.SymptomRequest{Message: "my coughdrops taste odd"})
	require.NoError(t, err)
	assert.Zero(t, confidenceOf(cands, "Acute bronchitis"))
}

func TestRuleReasonerCancelledContext(t *testing.T) {
	r := newRuleReasoner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Diagnose(ctx, domain.SymptomRequest{Message: "cough"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseCatalogValidation(t *testing.T) {
	_, err := ParseCatalog([]byte(`conditions: []`))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte(`
conditions:
  - name: X
    symptoms:
      - name: s
        phrases: [a]
        weight: 0
`))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte(`
conditions:
  - name: X
    symptoms:
      - name: s
        phrases: ["  "]
        weight: 1
`))
	assert.Error(t, err)

	cat, err := ParseCatalog([]byte(`
conditions:
  - name: X
    symptoms:
      - name: s
        phrases: [itchy skin]
        weight: 2
    medications: [Hydrocortisone]
`))
	require.NoError(t, err)
	assert.Equal(t, 2.0, cat.Conditions[0].TotalWeight())
}
