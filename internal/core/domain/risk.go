package domain

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

// Taxonomy maps classifier labels to risk levels for the review dashboard.
type Taxonomy struct {
	Labels     []string            `yaml:"labels"`
	RiskLevels map[string][]string `yaml:"risk_levels"`
}

func DefaultTaxonomy() Taxonomy {
	tax, err := parseTaxonomy(defaultTaxonomy)
	if err != nil {
		// The embedded file is validated by tests; reaching here means a
		// broken build, not bad runtime input.
		panic(fmt.Sprintf("embedded taxonomy: %v", err))
	}
	return tax
}

// LoadTaxonomy reads a taxonomy override from path, falling back to the
// embedded default when path is empty.
func LoadTaxonomy(path string) (Taxonomy, error) {
	if path == "" {
		return DefaultTaxonomy(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Taxonomy{}, fmt.Errorf("read taxonomy file: %w", err)
	}
	return parseTaxonomy(raw)
}

func parseTaxonomy(raw []byte) (Taxonomy, error) {
	var tax Taxonomy
	if err := yaml.Unmarshal(raw, &tax); err != nil {
		return Taxonomy{}, fmt.Errorf("parse taxonomy yaml: %w", err)
	}
	if len(tax.Labels) == 0 {
		return Taxonomy{}, fmt.Errorf("taxonomy defines no labels")
	}
	known := make(map[string]struct{}, len(tax.Labels))
	for _, label := range tax.Labels {
		known[label] = struct{}{}
	}
	for level, labels := range tax.RiskLevels {
		for _, label := range labels {
			if _, ok := known[label]; !ok {
				return Taxonomy{}, fmt.Errorf("risk level %q references unknown label %q", level, label)
			}
		}
	}
	return tax, nil
}

// RiskLevelFor resolves a predicted label to its risk bucket.
func (t Taxonomy) RiskLevelFor(label string) string {
	for level, labels := range t.RiskLevels {
		for _, l := range labels {
			if l == label {
				return level
			}
		}
	}
	return "unknown"
}

func (t Taxonomy) KnownLabel(label string) bool {
	for _, l := range t.Labels {
		if l == label {
			return true
		}
	}
	return false
}
