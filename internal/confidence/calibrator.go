// Package confidence blends raw classifier probabilities with feature
// quality and historical per-category accuracy into calibrated, explainable
// confidence scores.
package confidence

import (
	"fmt"
	"math"
	"sync"

	"github.com/spendworth/sift/internal/features"
	"github.com/spendworth/sift/internal/model"
)

// Blend weights. Raw probability carries most of the signal; feature quality
// and historical accuracy nudge it.
const (
	featureQualityWeight     = 0.2
	historicalAccuracyWeight = 0.15
	emaSmoothing             = 0.2
)

// Score is the calibrated output for one prediction.
type Score struct {
	Explanation        string
	Level              model.ConfidenceLevel
	Confidence         float64
	ConfidencePct      float64
	RawProbability     float64
	FeatureQuality     float64
	HistoricalAccuracy *float64
}

// Calibrator holds per-category historical accuracy as an explicit keyed
// EMA accumulator.
type Calibrator struct {
	historicalAccuracy map[string]float64
	userID             string
	mu                 sync.RWMutex
}

// NewCalibrator creates a calibrator for a user.
func NewCalibrator(userID string) *Calibrator {
	return &Calibrator{
		userID:             userID,
		historicalAccuracy: make(map[string]float64),
	}
}

// Score calibrates one raw probability. The raw probability blends 80/20
// with feature quality, then 85/15 with the category's historical accuracy
// when one has been recorded. The result is clamped to [0,1].
func (c *Calibrator) Score(rawProbability, featureQuality float64, category string) Score {
	confidence := rawProbability*(1-featureQualityWeight) + featureQuality*featureQualityWeight

	var histAccuracy *float64
	c.mu.RLock()
	if h, ok := c.historicalAccuracy[category]; ok {
		histAccuracy = &h
		confidence = confidence*(1-historicalAccuracyWeight) + h*historicalAccuracyWeight
	}
	c.mu.RUnlock()

	confidence = clamp01(confidence)
	level := model.LevelForConfidence(confidence)

	return Score{
		Confidence:         confidence,
		ConfidencePct:      confidence * 100,
		Level:              level,
		Explanation:        c.explain(confidence, rawProbability, featureQuality, category, level, histAccuracy),
		RawProbability:     rawProbability,
		FeatureQuality:     featureQuality,
		HistoricalAccuracy: histAccuracy,
	}
}

// AssessFeatureQuality scores a feature batch: 70% weight on the fraction of
// non-missing values, 30% on the fraction of features with non-zero variance
// across the batch. An empty batch scores 0.
func AssessFeatureQuality(vectors []features.Vector) float64 {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return 0.0
	}

	width := len(vectors[0])
	total := len(vectors) * width
	missing := 0
	for _, v := range vectors {
		for _, x := range v {
			if math.IsNaN(x) {
				missing++
			}
		}
	}
	completeness := 1.0 - float64(missing)/float64(total)

	// Variance is undefined for a single-row batch; no feature counts as
	// zero-variance there.
	zeroVariance := 0
	if len(vectors) > 1 {
		for j := 0; j < width; j++ {
			first := vectors[0][j]
			varies := false
			for _, v := range vectors[1:] {
				if v[j] != first {
					varies = true
					break
				}
			}
			if !varies {
				zeroVariance++
			}
		}
	}
	diversity := 1.0 - float64(zeroVariance)/float64(width)

	return clamp01(0.7*completeness + 0.3*diversity)
}

// UpdateHistoricalAccuracy folds a newly observed accuracy for a category
// into its exponential moving average. The first observation seeds the
// estimate directly.
func (c *Calibrator) UpdateHistoricalAccuracy(category string, observed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prior, ok := c.historicalAccuracy[category]; ok {
		c.historicalAccuracy[category] = emaSmoothing*observed + (1-emaSmoothing)*prior
	} else {
		c.historicalAccuracy[category] = observed
	}
}

// HistoricalAccuracy returns the current estimate for a category, if any.
func (c *Calibrator) HistoricalAccuracy(category string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.historicalAccuracy[category]
	return h, ok
}

// explain composes the generated confidence text. The wording reflects which
// factor most plausibly explains the level; nothing downstream branches on
// it.
func (c *Calibrator) explain(confidence, rawProbability, featureQuality float64, category string, level model.ConfidenceLevel, histAccuracy *float64) string {
	pct := int(confidence * 100)

	switch level {
	case model.ConfidenceHigh:
		reason := "based on strong prediction signals"
		switch {
		case rawProbability > 0.85:
			reason = "the model is very certain about this prediction"
		case featureQuality > 0.9:
			reason = "the input data quality is excellent"
		case histAccuracy != nil:
			reason = fmt.Sprintf("historically correct %d%% of the time for this category", int(*histAccuracy*100))
		}
		return fmt.Sprintf("%d%% confident - %s", pct, reason)

	case model.ConfidenceMedium:
		reason := "with reasonable certainty"
		switch {
		case featureQuality < 0.7:
			reason = "but some expense details are missing"
		case rawProbability < 0.7:
			reason = "but this prediction has moderate uncertainty"
		}
		return fmt.Sprintf("%d%% confident - %s", pct, reason)

	default:
		reason := "limited historical data for this pattern"
		switch {
		case featureQuality < 0.5:
			reason = "due to incomplete expense information"
		case rawProbability < 0.5:
			reason = "because this expense is ambiguous"
		}
		return fmt.Sprintf("Only %d%% confident - %s", pct, reason)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
