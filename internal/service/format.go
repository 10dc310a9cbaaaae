package service

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/xiaot623/gogo/consult/internal/domain"
)

// Disclaimer is attached to every consultation response.
const Disclaimer = "This is not medical advice. The suggestions above are informational only; consult a pharmacist or physician before taking any medication, and seek urgent care if symptoms are severe or worsening."

// ErrMalformedCandidate is returned by Format for unusable candidates.
var ErrMalformedCandidate = errors.New("malformed candidate")

// Format builds the response for candidates. It does not modify its input and
// the response shares no slices with it.
func Format(candidates []domain.DiagnosisCandidate, requestID string) (domain.ConsultationResponse, error) {
	out := make([]domain.DiagnosisCandidate, 0, len(candidates))
	for i, c := range candidates {
		if strings.TrimSpace(c.Condition) == "" {
			return domain.ConsultationResponse{}, fmt.Errorf("%w: candidate %d has no condition", ErrMalformedCandidate, i)
		}
		if math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1 {
			return domain.ConsultationResponse{}, fmt.Errorf("%w: candidate %q confidence %v", ErrMalformedCandidate, c.Condition, c.Confidence)
		}

		meds := make([]domain.MedicationRef, 0, len(c.RecommendedMedications))
		seen := make(map[domain.MedicationRef]bool, len(c.RecommendedMedications))
		for _, m := range c.RecommendedMedications {
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			meds = append(meds, m)
		}
		out = append(out, domain.DiagnosisCandidate{
			Condition:              c.Condition,
			Confidence:             c.Confidence,
			RecommendedMedications: meds,
		})
	}

	return domain.ConsultationResponse{
		Candidates:    out,
		Disclaimer:    Disclaimer,
		RequestID:     requestID,
		LowConfidence: len(out) == 0,
	}, nil
}

// summarize renders a response as the text stored in a turn.
func summarize(resp domain.ConsultationResponse) string {
	if len(resp.Candidates) == 0 {
		return "No confident match; please describe your symptoms in more detail."
	}
	parts := make([]string, 0, len(resp.Candidates))
	for _, c := range resp.Candidates {
		part := fmt.Sprintf("%s (%.0f%%)", c.Condition, c.Confidence*100)
		if len(c.RecommendedMedications) > 0 {
			meds := make([]string, 0, len(c.RecommendedMedications))
			for _, m := range c.RecommendedMedications {
				meds = append(meds, string(m))
			}
			part += ": " + strings.Join(meds, ", ")
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "; ")
}
