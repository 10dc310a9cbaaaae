// Package reasoner turns a symptom description into ranked diagnosis
// candidates. Backends are selected by configuration.
package reasoner

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/xiaot623/gogo/consult/internal/domain"
)

const (
	// DefaultMaxMessageLength is the largest accepted message, in characters.
	DefaultMaxMessageLength = 4000
	// DefaultMinConfidence is the threshold below which candidates are dropped.
	DefaultMinConfidence = 0.15
)

var (
	// ErrInvalidInput is returned for empty or oversized messages.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnavailable is returned when the inference backend cannot be reached.
	ErrUnavailable = errors.New("reasoning unavailable")
	// ErrMalformedOutput is returned when the backend answer cannot be used.
	ErrMalformedOutput = errors.New("malformed reasoner output")
)

// Reasoner produces diagnosis candidates sorted by non-increasing confidence.
// An empty result means low confidence, not an error.
type Reasoner interface {
	Diagnose(ctx context.Context, req domain.SymptomRequest) ([]domain.DiagnosisCandidate, error)
}

// ValidateMessage rejects empty, whitespace-only and oversized messages.
// Oversized messages are never truncated.
func ValidateMessage(msg string, maxLen int) error {
	if strings.TrimSpace(msg) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	if n := utf8.RuneCountInString(msg); n > maxLen {
		return fmt.Errorf("%w: message has %d characters, limit is %d", ErrInvalidInput, n, maxLen)
	}
	return nil
}

// Rank drops candidates below minConfidence and sorts the rest by
// non-increasing confidence. Equal confidences keep their input order.
// The input slice is not modified.
func Rank(candidates []domain.DiagnosisCandidate, minConfidence float64) []domain.DiagnosisCandidate {
	out := make([]domain.DiagnosisCandidate, 0, len(candidates))
	for _, c := range candidates {
		if math.IsNaN(c.Confidence) || c.Confidence < minConfidence {
			continue
		}
		out = append(out, c)
	}
	slices.SortStableFunc(out, func(a, b domain.DiagnosisCandidate) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	return out
}
