// Package features turns raw expense records into fixed-width numeric
// feature vectors. A deriver is fitted once per user on a training batch and
// then reused identically at training and inference time.
package features

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spendworth/sift/internal/common"
	"github.com/spendworth/sift/internal/model"
)

// maxVocabTerms caps the merchant term vocabulary.
const maxVocabTerms = 100

// Vector is one fixed-width feature vector. Field order matches the
// deriver's FeatureNames.
type Vector []float64

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]`)

// NormalizeMerchant lower-cases, strips non-alphanumeric characters, and
// collapses whitespace so the same merchant always produces the same tokens.
func NormalizeMerchant(merchant string) string {
	merchant = strings.ToLower(merchant)
	merchant = nonAlnum.ReplaceAllString(merchant, "")
	return strings.Join(strings.Fields(merchant), " ")
}

// Deriver is the stateful feature transformer for one user.
type Deriver struct {
	state  *FittedState
	userID string
}

// NewDeriver creates an unfitted deriver for a user.
func NewDeriver(userID string) *Deriver {
	return &Deriver{userID: userID}
}

// Fitted reports whether Fit has run.
func (d *Deriver) Fitted() bool {
	return d.state != nil
}

// State returns the fitted state, or nil before Fit.
func (d *Deriver) State() *FittedState {
	return d.state
}

// Restore installs a previously fitted state, e.g. one loaded from the
// model store alongside its artifact.
func (d *Deriver) Restore(state *FittedState) {
	d.state = state
}

// Fit computes and freezes the fitted state from a batch of records.
// Label-dependent fields (merchant category map, category priors) are only
// populated when records carry category labels.
func (d *Deriver) Fit(records []model.ExpenseRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("fit: %w", common.ErrEmptyBatch)
	}

	state := &FittedState{
		MerchantFrequency: make(map[string]int),
		MerchantCategory:  make(map[string]string),
		CategoryPriors:    make(map[string]float64),
	}

	normalized := make([]string, len(records))
	for i, r := range records {
		normalized[i] = NormalizeMerchant(r.Merchant)
		state.MerchantFrequency[normalized[i]]++
	}

	state.Vocabulary, state.IDF = fitVocabulary(normalized)

	// Amount scaler over log1p amounts.
	logAmounts := make([]float64, len(records))
	for i, r := range records {
		logAmounts[i] = math.Log1p(r.Amount)
	}
	state.ScalerMean, state.ScalerStd = meanStd(logAmounts)
	if state.ScalerStd == 0 {
		state.ScalerStd = 1
	}

	// Label-dependent statistics.
	labeled := false
	merchantCats := make(map[string]map[string]int)
	categoryCounts := make(map[string]int)
	for i, r := range records {
		if r.Category == "" {
			continue
		}
		labeled = true
		categoryCounts[r.Category]++
		m := normalized[i]
		if merchantCats[m] == nil {
			merchantCats[m] = make(map[string]int)
		}
		merchantCats[m][r.Category]++
	}
	if labeled {
		for m, cats := range merchantCats {
			state.MerchantCategory[m] = mostCommon(cats)
		}
		total := float64(len(records))
		for cat, n := range categoryCounts {
			state.CategoryPriors[cat] = float64(n) / total
		}
	}

	// Amount quartile boundaries.
	amounts := make([]float64, len(records))
	for i, r := range records {
		amounts[i] = r.Amount
	}
	sort.Float64s(amounts)
	state.AmountQuartiles = [3]float64{
		quantile(amounts, 0.25),
		quantile(amounts, 0.50),
		quantile(amounts, 0.75),
	}

	d.state = state
	return nil
}

// FitTransform fits on the batch and transforms it in one step.
func (d *Deriver) FitTransform(records []model.ExpenseRecord) ([]Vector, error) {
	if err := d.Fit(records); err != nil {
		return nil, err
	}
	return d.Transform(records)
}

// Transform derives one vector per record. It is deterministic, ignores any
// category labels on the records, and fails before Fit has run.
func (d *Deriver) Transform(records []model.ExpenseRecord) ([]Vector, error) {
	return d.TransformWithHistory(records, nil)
}

// TransformWithHistory is Transform plus per-record merchant recency derived
// from the supplied history. History affects only the historical feature
// block; the block itself is present whenever the deriver was fitted with
// labels, zero-filled when history is absent.
func (d *Deriver) TransformWithHistory(records []model.ExpenseRecord, history []model.ExpenseRecord) ([]Vector, error) {
	if d.state == nil {
		return nil, fmt.Errorf("transform: %w", common.ErrNotFitted)
	}

	vectors := make([]Vector, len(records))
	for i, r := range records {
		vectors[i] = d.transformOne(r, history)
	}
	return vectors, nil
}

func (d *Deriver) transformOne(r model.ExpenseRecord, history []model.ExpenseRecord) Vector {
	s := d.state
	normalized := NormalizeMerchant(r.Merchant)

	v := make(Vector, 0, d.FeatureCount())

	// Merchant text features.
	v = append(v, s.tfidfVector(normalized)...)
	freq := s.MerchantFrequency[normalized]
	v = append(v, float64(freq))
	if freq == 0 {
		v = append(v, 1) // never seen before
	} else {
		v = append(v, 0)
	}

	// Temporal features.
	hour := float64(r.Date.Hour())
	weekday := float64(mondayWeekday(r.Date.Weekday()))
	v = append(v,
		hour,
		weekday,
		float64(r.Date.Day()),
		float64(int(r.Date.Month())),
		boolFeature(weekday >= 5),
		float64(timeBin(r.Date.Hour())),
		math.Sin(2*math.Pi*hour/24),
		math.Cos(2*math.Pi*hour/24),
		math.Sin(2*math.Pi*weekday/7),
		math.Cos(2*math.Pi*weekday/7),
	)

	// Amount features.
	logAmount := math.Log1p(r.Amount)
	v = append(v,
		logAmount,
		(logAmount-s.ScalerMean)/s.ScalerStd,
		float64(amountBucket(r.Amount)),
		float64(s.quartileRank(r.Amount)),
	)

	// Historical pattern features, present when fit saw labels.
	if s.hasLabelStats() {
		v = append(v,
			float64(freq),
			merchantRecencyDays(normalized, r, history),
			float64(categoryHash(s.MerchantCategory[normalized])),
			s.priorEntropy(),
		)
	}

	return v
}

// FeatureNames returns the ordered field names for vectors produced by this
// fitted deriver.
func (d *Deriver) FeatureNames() []string {
	if d.state == nil {
		return nil
	}
	s := d.state
	names := make([]string, 0, d.FeatureCount())
	for i := range s.Vocabulary {
		names = append(names, fmt.Sprintf("merchant_tfidf_%d", i))
	}
	names = append(names,
		"merchant_frequency", "merchant_is_new",
		"hour_of_day", "day_of_week", "day_of_month", "month",
		"is_weekend", "time_bin",
		"hour_sin", "hour_cos", "day_sin", "day_cos",
		"amount_log", "amount_normalized", "amount_bucket", "amount_percentile_rank",
	)
	if s.hasLabelStats() {
		names = append(names,
			"historical_merchant_freq", "merchant_recency_days",
			"merchant_common_category_encoded", "category_entropy",
		)
	}
	return names
}

// FeatureCount is the fixed vector width for this fitted deriver.
func (d *Deriver) FeatureCount() int {
	if d.state == nil {
		return 0
	}
	n := len(d.state.Vocabulary) + 2 + 10 + 4
	if d.state.hasLabelStats() {
		n += 4
	}
	return n
}

// mondayWeekday maps Go's Sunday-first weekday to Monday=0..Sunday=6.
func mondayWeekday(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func timeBin(hour int) int {
	switch {
	case hour >= 6 && hour < 12:
		return 0 // morning
	case hour >= 12 && hour < 18:
		return 1 // afternoon
	case hour >= 18 && hour < 22:
		return 2 // evening
	default:
		return 3 // night
	}
}

func amountBucket(amount float64) int {
	switch {
	case amount < 20:
		return 0
	case amount < 100:
		return 1
	default:
		return 2
	}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func merchantRecencyDays(normalized string, r model.ExpenseRecord, history []model.ExpenseRecord) float64 {
	var best float64
	found := false
	for _, h := range history {
		if NormalizeMerchant(h.Merchant) != normalized {
			continue
		}
		if h.Date.After(r.Date) {
			continue
		}
		days := r.Date.Sub(h.Date).Hours() / 24
		if !found || days < best {
			best = days
			found = true
		}
	}
	if !found {
		return 0
	}
	return best
}

func mostCommon(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	// Ties resolve to the lexicographically first category.
	sort.Strings(keys)
	best := ""
	bestCount := -1
	for _, k := range keys {
		if counts[k] > bestCount {
			best = k
			bestCount = counts[k]
		}
	}
	return best
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
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

// quantile computes the p-quantile of sorted values using linear
// interpolation between closest ranks.
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
