package engine

import (
	"sort"
	"strings"

	"github.com/spendworth/sift/internal/model"
)

// coldStartRule maps merchant keywords to a category suggestion.
type coldStartRule struct {
	category   string
	keywords   []string
	confidence float64
}

var coldStartRules = []coldStartRule{
	{
		category:   "Food & Dining",
		keywords:   []string{"restaurant", "cafe", "coffee", "pizza", "burger", "grill"},
		confidence: 0.75,
	},
	{
		category:   "Groceries",
		keywords:   []string{"grocery", "market", "supermarket", "whole foods"},
		confidence: 0.80,
	},
	{
		category:   "Transportation",
		keywords:   []string{"uber", "lyft", "taxi", "parking", "gas", "fuel"},
		confidence: 0.75,
	},
	{
		category:   "Shopping",
		keywords:   []string{"amazon", "store", "shop"},
		confidence: 0.65,
	},
}

// defaultColdStartPredictions serve when no keyword rule matches.
var defaultColdStartPredictions = []model.Prediction{
	{Category: "Miscellaneous", Probability: 0.50},
	{Category: "Shopping", Probability: 0.30},
	{Category: "Food & Dining", Probability: 0.20},
}

// backfillCategories pad cold-start results out to the requested top_k.
var backfillCategories = []string{"Groceries", "Transportation", "Entertainment", "Utilities"}

const backfillConfidence = 0.20

// coldStartPredict produces rule-based suggestions when no trained model is
// available. Explanations state that the suggestion is pattern based, not
// personalized.
func (o *Orchestrator) coldStartPredict(userID, merchant string, topK int) []model.CalibratedPrediction {
	merchantLower := strings.ToLower(merchant)

	var matched []model.Prediction
	for _, rule := range coldStartRules {
		for _, kw := range rule.keywords {
			if strings.Contains(merchantLower, kw) {
				matched = append(matched, model.Prediction{
					Category:    rule.category,
					Probability: rule.confidence,
				})
				break
			}
		}
	}
	if len(matched) == 0 {
		matched = append(matched, defaultColdStartPredictions...)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Probability > matched[j].Probability
	})
	if len(matched) > topK {
		matched = matched[:topK]
	}

	for len(matched) < topK {
		added := false
		for _, cat := range backfillCategories {
			if containsCategory(matched, cat) {
				continue
			}
			matched = append(matched, model.Prediction{
				Category:    cat,
				Probability: backfillConfidence,
			})
			added = true
			break
		}
		if !added {
			break
		}
	}

	explainer := o.explainer(userID)
	results := make([]model.CalibratedPrediction, 0, len(matched))
	for _, pred := range matched {
		expl := explainer.ExplainColdStart(pred.Category, merchant)
		level := model.ConfidenceLow
		if pred.Probability >= 0.6 {
			level = model.ConfidenceMedium
		}
		results = append(results, model.CalibratedPrediction{
			Category:            pred.Category,
			Confidence:          pred.Probability,
			ConfidencePct:       pred.Probability * 100,
			ConfidenceLevel:     level,
			Explanation:         expl.Short,
			DetailedExplanation: expl.Detailed,
			ContributingFactors: expl.Factors,
		})
	}
	return results
}

func containsCategory(preds []model.Prediction, category string) bool {
	for _, p := range preds {
		if p.Category == category {
			return true
		}
	}
	return false
}
