// Package explain generates human-readable contributing factors and
// natural-language explanations for category predictions.
package explain

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spendworth/sift/internal/model"
)

// merchantPattern remembers how a user has historically categorized a
// merchant, for inclusion in detailed explanations.
type merchantPattern struct {
	Category  string
	Frequency int
}

// Explainer composes explanations for one user's predictions.
type Explainer struct {
	merchantPatterns map[string]merchantPattern
	userID           string
	mu               sync.RWMutex
}

// NewExplainer creates an explainer for a user.
func NewExplainer(userID string) *Explainer {
	return &Explainer{
		userID:           userID,
		merchantPatterns: make(map[string]merchantPattern),
	}
}

// Explanation is the generated material for one prediction.
type Explanation struct {
	Short    string
	Detailed string
	Factors  []model.Factor
}

// Explain derives up to three contributing factors from the raw inputs,
// ranked by fixed importance weights, and composes short and detailed
// explanation text.
func (e *Explainer) Explain(category string, confidence float64, merchant string, amount float64, date time.Time) Explanation {
	factors := identifyFactors(merchant, amount, date)

	short := e.shortExplanation(category, confidence, factors)
	detailed := e.detailedExplanation(category, confidence, factors, merchant)

	return Explanation{
		Short:    short,
		Detailed: detailed,
		Factors:  factors,
	}
}

// ExplainColdStart produces the explanation for rule-based predictions,
// which must state that the suggestion is pattern-based rather than
// personalized.
func (e *Explainer) ExplainColdStart(category, merchant string) Explanation {
	return Explanation{
		Short: fmt.Sprintf("Based on merchant pattern: %s", merchant),
		Detailed: "This suggestion is based on merchant patterns, not your " +
			"personal history. As you categorize more expenses, " +
			"our predictions will improve and become personalized to " +
			"your spending habits.",
		Factors: []model.Factor{
			{
				Name:        "merchant",
				Description: fmt.Sprintf("Merchant name: %s", merchant),
				Importance:  1.0,
			},
		},
	}
}

// AddMerchantPattern records a user's dominant category for a merchant so
// detailed explanations can reference it.
func (e *Explainer) AddMerchantPattern(merchant, category string, frequency int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.merchantPatterns[strings.ToLower(merchant)] = merchantPattern{
		Category:  category,
		Frequency: frequency,
	}
}

func identifyFactors(merchant string, amount float64, date time.Time) []model.Factor {
	var factors []model.Factor

	if merchant != "" {
		merchantLower := strings.ToLower(merchant)
		switch {
		case containsAny(merchantLower, "restaurant", "cafe", "coffee"):
			factors = append(factors, model.Factor{
				Name:        "merchant_type",
				Description: fmt.Sprintf("'%s' is a dining establishment", merchant),
				Importance:  0.4,
			})
		case containsAny(merchantLower, "grocery", "market"):
			factors = append(factors, model.Factor{
				Name:        "merchant_type",
				Description: fmt.Sprintf("'%s' is a grocery store", merchant),
				Importance:  0.4,
			})
		case containsAny(merchantLower, "uber", "lyft", "taxi"):
			factors = append(factors, model.Factor{
				Name:        "merchant_type",
				Description: fmt.Sprintf("'%s' is a transportation service", merchant),
				Importance:  0.4,
			})
		default:
			factors = append(factors, model.Factor{
				Name:        "merchant",
				Description: fmt.Sprintf("Based on merchant name: %s", merchant),
				Importance:  0.3,
			})
		}
	}

	if amount > 0 {
		var amountDesc string
		switch {
		case amount < 20:
			amountDesc = "small purchase (under $20)"
		case amount < 100:
			amountDesc = "moderate purchase ($20-$100)"
		default:
			amountDesc = "large purchase (over $100)"
		}
		factors = append(factors, model.Factor{
			Name:        "amount",
			Description: fmt.Sprintf("$%.2f is a %s", amount, amountDesc),
			Importance:  0.25,
		})
	}

	if !date.IsZero() {
		var timeDesc string
		switch hour := date.Hour(); {
		case hour >= 6 && hour < 12:
			timeDesc = "morning purchase"
		case hour >= 12 && hour < 18:
			timeDesc = "afternoon purchase"
		case hour >= 18 && hour < 22:
			timeDesc = "evening purchase"
		default:
			timeDesc = "late night purchase"
		}

		timeContext := fmt.Sprintf("%s %s", date.Weekday(), timeDesc)
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			timeContext += " (weekend)"
		}
		factors = append(factors, model.Factor{
			Name:        "timing",
			Description: timeContext,
			Importance:  0.20,
		})
	}

	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Importance > factors[j].Importance
	})
	if len(factors) > 3 {
		factors = factors[:3]
	}
	return factors
}

func (e *Explainer) shortExplanation(category string, confidence float64, factors []model.Factor) string {
	pct := int(confidence * 100)
	if len(factors) == 0 {
		return fmt.Sprintf("%d%% confident this is %s", pct, category)
	}
	return fmt.Sprintf("%d%% confident this is %s based on %s", pct, category, factors[0].Description)
}

func (e *Explainer) detailedExplanation(category string, confidence float64, factors []model.Factor, merchant string) string {
	pct := int(confidence * 100)
	parts := []string{fmt.Sprintf("This expense is categorized as %s.", category)}

	switch {
	case confidence >= 0.8:
		parts = append(parts, fmt.Sprintf("We are %d%% confident in this prediction.", pct))
	case confidence >= 0.6:
		parts = append(parts, fmt.Sprintf("We are moderately confident (%d%%) in this prediction.", pct))
	default:
		parts = append(parts, fmt.Sprintf("This prediction has lower confidence (%d%%).", pct))
	}

	if len(factors) == 1 {
		parts = append(parts, fmt.Sprintf("The main factor is that %s.", strings.ToLower(factors[0].Description)))
	} else if len(factors) >= 2 {
		parts = append(parts, fmt.Sprintf("Key factors include: %s, and %s.",
			strings.ToLower(factors[0].Description),
			strings.ToLower(factors[1].Description)))
	}

	e.mu.RLock()
	pattern, ok := e.merchantPatterns[strings.ToLower(merchant)]
	e.mu.RUnlock()
	if ok {
		parts = append(parts, fmt.Sprintf("You typically categorize %s as %s (%d times before).",
			merchant, pattern.Category, pattern.Frequency))
	}

	return strings.Join(parts, " ")
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
