package reasoner

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the symptom knowledge used by RuleReasoner.
type Catalog struct {
	Conditions []Condition `yaml:"conditions"`
}

// Condition is a diagnosable condition with its weighted symptoms.
type Condition struct {
	Name        string    `yaml:"name"`
	Symptoms    []Symptom `yaml:"symptoms"`
	Medications []string  `yaml:"medications"`
}

// Symptom is matched when any of its phrases occurs in the text.
type Symptom struct {
	Name    string   `yaml:"name"`
	Phrases []string `yaml:"phrases"`
	Weight  float64  `yaml:"weight"`

	tokens [][]string
}

// TotalWeight returns the sum of the symptom weights of c.
func (c *Condition) TotalWeight() float64 {
	var total float64
	for _, s := range c.Symptoms {
		total += s.Weight
	}
	return total
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog from path. An empty path yields the default.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(cat.Conditions) == 0 {
		return nil, fmt.Errorf("catalog has no conditions")
	}

	seen := make(map[string]bool, len(cat.Conditions))
	for i := range cat.Conditions {
		cond := &cat.Conditions[i]
		cond.Name = strings.TrimSpace(cond.Name)
		if cond.Name == "" {
			return nil, fmt.Errorf("condition %d has no name", i)
		}
		if seen[cond.Name] {
			return nil, fmt.Errorf("duplicate condition %q", cond.Name)
		}
		seen[cond.Name] = true
		if len(cond.Symptoms) == 0 {
			return nil, fmt.Errorf("condition %q has no symptoms", cond.Name)
		}
		for j := range cond.Symptoms {
			sym := &cond.Symptoms[j]
			if sym.Weight <= 0 {
				return nil, fmt.Errorf("condition %q symptom %q: weight must be positive", cond.Name, sym.Name)
			}
			for _, p := range sym.Phrases {
				if toks := tokenize(p); len(toks) > 0 {
					sym.tokens = append(sym.tokens, toks)
				}
			}
			if len(sym.tokens) == 0 {
				return nil, fmt.Errorf("condition %q symptom %q has no phrases", cond.Name, sym.Name)
			}
		}
	}
	return &cat, nil
}
