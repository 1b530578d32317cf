package domain

import "testing"

func TestDefaultTaxonomyCoversAllLabels(t *testing.T) {
	tax := DefaultTaxonomy()
	if len(tax.Labels) != 7 {
		t.Fatalf("expected 7 BI-RADS labels, got %d", len(tax.Labels))
	}
	for _, label := range tax.Labels {
		if level := tax.RiskLevelFor(label); level == "unknown" {
			t.Fatalf("label %q has no risk level", label)
		}
	}
}

func TestRiskLevelForBuckets(t *testing.T) {
	tax := DefaultTaxonomy()
	cases := map[string]string{
		"0": "needs_assessment",
		"1": "low",
		"2": "low",
		"3": "medium",
		"4": "high",
		"5": "high",
		"6": "high",
	}
	for label, want := range cases {
		if got := tax.RiskLevelFor(label); got != want {
			t.Fatalf("RiskLevelFor(%q) = %q, want %q", label, got, want)
		}
	}
	if got := tax.RiskLevelFor("9"); got != "unknown" {
		t.Fatalf("expected unknown for unmapped label, got %q", got)
	}
}

func TestParseTaxonomyRejectsUnknownLabelReference(t *testing.T) {
	_, err := parseTaxonomy([]byte("labels: [\"1\"]\nrisk_levels:\n  low: [\"2\"]\n"))
	if err == nil {
		t.Fatalf("expected error for risk level referencing unknown label")
	}
}

func TestPredictionValidateBounds(t *testing.T) {
	p := &Prediction{
		Confidence:    0.93,
		Probabilities: map[string]float64{"1": 0.05, "2": 0.93, "3": 0.02},
	}
	if err := p.ValidateBounds(); err != nil {
		t.Fatalf("ValidateBounds() error = %v", err)
	}

	p.Confidence = 1.2
	if err := p.ValidateBounds(); err == nil {
		t.Fatalf("expected error for confidence > 1")
	}

	p.Confidence = 0.5
	p.Probabilities["4"] = -0.1
	if err := p.ValidateBounds(); err == nil {
		t.Fatalf("expected error for negative probability")
	}
}
