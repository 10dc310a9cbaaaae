package reasoner

import (
	"strings"
	"unicode"
)

var negations = map[string]bool{
	"no":      true,
	"not":     true,
	"without": true,
	"denies":  true,
	"never":   true,
}

// tokenize lowercases s and splits it into letter/digit words.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matches reports whether phrase occurs in text on word boundaries and is not
// directly preceded by a negation ("no fever").
func matches(text, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(text) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(text); i++ {
		for j, w := range phrase {
			if text[i+j] != w {
				continue outer
			}
		}
		if i > 0 && negations[text[i-1]] {
			continue
		}
		return true
	}
	return false
}

// matchesAny reports whether any of the symptom's phrases matches text.
func (s *Symptom) matchesAny(text []string) bool {
	for _, p := range s.tokens {
		if matches(text, p) {
			return true
		}
	}
	return false
}
