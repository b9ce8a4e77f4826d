// Package detect implements rule-based validation of expense submissions:
// amount outliers, likely duplicates, missing-data risk, and unusual timing.
// Detection is independent of the classifier and stateless per call.
package detect

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spendworth/sift/internal/model"
)

// Detection thresholds.
const (
	minOutlierSamples   = 3
	outlierStdDevs      = 2.0
	outlierMedianFactor = 3.0
	duplicateWindowDays = 7
	duplicateSimilarity = 0.8
	duplicateAmountTol  = 0.1
	receiptThreshold    = 100.0
	notesThreshold      = 50.0
	largeNightAmount    = 500.0
)

// Input is one expense submission under inspection.
type Input struct {
	Date            time.Time
	Merchant        string
	Category        string
	Notes           string
	Amount          float64
	ReceiptAttached bool
}

// Detector runs the error-detection rules.
type Detector struct{}

// New creates a detector.
func New() *Detector {
	return &Detector{}
}

// Detect runs all four checks independently against the expense and the
// user's history. Results are concatenated, not deduplicated or prioritized.
func (d *Detector) Detect(in Input, history []model.ExpenseRecord) []model.Warning {
	var warnings []model.Warning

	if in.Category != "" && len(history) > 0 {
		if w := d.detectAmountOutlier(in, history); w != nil {
			warnings = append(warnings, *w)
		}
	}

	if len(history) > 0 {
		if w := d.detectDuplicate(in, history); w != nil {
			warnings = append(warnings, *w)
		}
	}

	warnings = append(warnings, d.detectMissingData(in)...)
	warnings = append(warnings, d.detectUnusualPatterns(in)...)

	return warnings
}

// detectAmountOutlier flags amounts far outside the user's historical range
// for the chosen category. Needs at least three prior samples.
func (d *Detector) detectAmountOutlier(in Input, history []model.ExpenseRecord) *model.Warning {
	var amounts []float64
	for _, h := range history {
		if h.Category == in.Category {
			amounts = append(amounts, h.Amount)
		}
	}
	if len(amounts) < minOutlierSamples {
		return nil
	}

	mean, std := meanStd(amounts)
	median := median(amounts)

	isOutlier := false
	if std > 0 && math.Abs(in.Amount-mean) > outlierStdDevs*std {
		isOutlier = true
	} else if in.Amount > outlierMedianFactor*median {
		isOutlier = true
	}
	if !isOutlier {
		return nil
	}

	return &model.Warning{
		Type:     model.WarningAmountOutlier,
		Severity: model.SeverityWarning,
		Message: fmt.Sprintf("This amount ($%.2f) is unusually high for %s",
			in.Amount, in.Category),
		Suggestion: fmt.Sprintf("Your average %s expense is $%.2f. Please verify the amount.",
			in.Category, mean),
		Metadata: map[string]any{
			"user_average":   mean,
			"user_median":    median,
			"current_amount": in.Amount,
		},
	}
}

// detectDuplicate looks for a similar expense within the trailing seven
// days: merchant fuzzy-similarity above 0.8 and amount within 10%.
func (d *Detector) detectDuplicate(in Input, history []model.ExpenseRecord) *model.Warning {
	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}
	cutoff := date.AddDate(0, 0, -duplicateWindowDays)

	for _, h := range history {
		if h.Date.Before(cutoff) || h.Date.After(date) {
			continue
		}

		similarity := FuzzySimilarity(strings.ToLower(in.Merchant), strings.ToLower(h.Merchant))
		if similarity <= duplicateSimilarity {
			continue
		}

		larger := math.Max(in.Amount, h.Amount)
		if larger == 0 {
			continue
		}
		if math.Abs(in.Amount-h.Amount)/larger >= duplicateAmountTol {
			continue
		}

		return &model.Warning{
			Type:     model.WarningDuplicate,
			Severity: model.SeverityWarning,
			Message: fmt.Sprintf("Similar expense found: $%.2f at %s",
				h.Amount, h.Merchant),
			Suggestion: "This might be a duplicate. Please verify.",
			Metadata: map[string]any{
				"similar_date":     h.Date.Format(time.RFC3339),
				"similar_amount":   h.Amount,
				"similar_merchant": h.Merchant,
			},
		}
	}
	return nil
}

func (d *Detector) detectMissingData(in Input) []model.Warning {
	var warnings []model.Warning

	if in.Amount > receiptThreshold && !in.ReceiptAttached {
		warnings = append(warnings, model.Warning{
			Type:       model.WarningMissingReceipt,
			Severity:   model.SeverityInfo,
			Message:    "Receipt recommended for expenses over $100",
			Suggestion: "Consider attaching a receipt.",
		})
	}

	if in.Notes == "" && in.Amount > notesThreshold {
		warnings = append(warnings, model.Warning{
			Type:       model.WarningMissingNotes,
			Severity:   model.SeverityInfo,
			Message:    "Notes can help clarify this expense",
			Suggestion: "Add notes to explain this purchase.",
		})
	}

	return warnings
}

func (d *Detector) detectUnusualPatterns(in Input) []model.Warning {
	if in.Date.IsZero() {
		return nil
	}

	var warnings []model.Warning
	hour := in.Date.Hour()

	if in.Category == "Food & Dining" && (hour < 6 || hour > 23) {
		warnings = append(warnings, model.Warning{
			Type:       model.WarningUnusualTime,
			Severity:   model.SeverityInfo,
			Message:    fmt.Sprintf("Unusual time for dining (%d:00)", hour),
			Suggestion: "Please verify the date and time.",
		})
	}

	if in.Amount > largeNightAmount && hour >= 0 && hour < 6 {
		warnings = append(warnings, model.Warning{
			Type:     model.WarningUnusualTime,
			Severity: model.SeverityWarning,
			Message: fmt.Sprintf("Large transaction ($%.2f) at unusual hour (%d:00)",
				in.Amount, hour),
			Suggestion: "Please verify this is correct.",
		})
	}

	return warnings
}

// FuzzySimilarity scores merchant name similarity: exact match 1.0,
// substring containment 0.9, otherwise Jaccard similarity over character
// sets.
func FuzzySimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.9
	}

	setA := make(map[rune]bool)
	for _, r := range a {
		setA[r] = true
	}
	setB := make(map[rune]bool)
	for _, r := range b {
		setB[r] = true
	}

	intersection := 0
	for r := range setA {
		if setB[r] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func meanStd(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
