package model

import (
	"fmt"
	"sort"
)

// Prediction is one candidate category with its raw model probability.
type Prediction struct {
	Category    string
	Probability float64
	ClassIndex  int // Position in the trained model's class ordering
}

// Predictions is an ordered list of candidate categories.
type Predictions []Prediction

// Sort orders predictions by probability descending. Equal probabilities
// keep the original class-index order (stable tie-break).
func (p Predictions) Sort() {
	sort.SliceStable(p, func(i, j int) bool {
		return p[i].Probability > p[j].Probability
	})
}

// TopK returns the K highest-probability predictions.
func (p Predictions) TopK(k int) Predictions {
	if k <= 0 {
		return Predictions{}
	}
	p.Sort()
	if k > len(p) {
		k = len(p)
	}
	result := make(Predictions, k)
	copy(result, p[:k])
	return result
}

// Validate ensures every probability is in range and categories are unique.
func (p Predictions) Validate() error {
	seen := make(map[string]bool)
	for i, pred := range p {
		if pred.Category == "" {
			return fmt.Errorf("prediction at index %d has empty category", i)
		}
		if pred.Probability < 0.0 || pred.Probability > 1.0 {
			return fmt.Errorf("probability must be between 0.0 and 1.0, got %.4f", pred.Probability)
		}
		if seen[pred.Category] {
			return fmt.Errorf("duplicate category %q in predictions", pred.Category)
		}
		seen[pred.Category] = true
	}
	return nil
}

// ConfidenceLevel buckets a calibrated confidence score.
type ConfidenceLevel string

const (
	// ConfidenceHigh is a calibrated confidence of 0.8 or above.
	ConfidenceHigh ConfidenceLevel = "high"
	// ConfidenceMedium is a calibrated confidence of 0.6 or above.
	ConfidenceMedium ConfidenceLevel = "medium"
	// ConfidenceLow is anything below 0.6.
	ConfidenceLow ConfidenceLevel = "low"
)

// LevelForConfidence maps a confidence score to its level bucket.
func LevelForConfidence(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 0.8:
		return ConfidenceHigh
	case confidence >= 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Factor is one human-readable contributor to a prediction.
type Factor struct {
	Name        string  `json:"factor"`
	Description string  `json:"description"`
	Importance  float64 `json:"importance"`
}

// CalibratedPrediction enriches a raw prediction with calibrated confidence
// and explanation material.
type CalibratedPrediction struct {
	Category            string          `json:"category"`
	ConfidenceLevel     ConfidenceLevel `json:"confidence_level"`
	Explanation         string          `json:"explanation"`
	DetailedExplanation string          `json:"detailed_explanation,omitempty"`
	ContributingFactors []Factor        `json:"contributing_factors,omitempty"`
	Confidence          float64         `json:"confidence"`
	ConfidencePct       float64         `json:"confidence_pct"`
}
