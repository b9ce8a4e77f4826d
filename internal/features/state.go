package features

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
)

// FittedState is the frozen output of Deriver.Fit. It is immutable until the
// next Fit and is persisted alongside the model it supports.
type FittedState struct {
	MerchantFrequency map[string]int     `json:"merchant_frequency"`
	MerchantCategory  map[string]string  `json:"merchant_category"`
	CategoryPriors    map[string]float64 `json:"category_priors"`
	Vocabulary        []string           `json:"vocabulary"`
	IDF               []float64          `json:"idf"`
	AmountQuartiles   [3]float64         `json:"amount_quartiles"`
	ScalerMean        float64            `json:"scaler_mean"`
	ScalerStd         float64            `json:"scaler_std"`
}

// Marshal serializes the state for persistence in the model store.
func (s *FittedState) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fitted state: %w", err)
	}
	return data, nil
}

// UnmarshalState reconstructs a fitted state from its persisted form.
func UnmarshalState(data []byte) (*FittedState, error) {
	var s FittedState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fitted state: %w", err)
	}
	if s.MerchantFrequency == nil {
		s.MerchantFrequency = make(map[string]int)
	}
	if s.MerchantCategory == nil {
		s.MerchantCategory = make(map[string]string)
	}
	if s.CategoryPriors == nil {
		s.CategoryPriors = make(map[string]float64)
	}
	return &s, nil
}

func (s *FittedState) hasLabelStats() bool {
	return len(s.CategoryPriors) > 0
}

// tfidfVector produces the fixed-width weighted term representation of one
// normalized merchant name, L2-normalized.
func (s *FittedState) tfidfVector(normalized string) []float64 {
	v := make([]float64, len(s.Vocabulary))
	counts := termCounts(normalized)
	var norm float64
	for i, term := range s.Vocabulary {
		if c, ok := counts[term]; ok {
			v[i] = float64(c) * s.IDF[i]
			norm += v[i] * v[i]
		}
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range v {
			v[i] /= norm
		}
	}
	return v
}

func (s *FittedState) quartileRank(amount float64) int {
	switch {
	case amount < s.AmountQuartiles[0]:
		return 0
	case amount < s.AmountQuartiles[1]:
		return 1
	case amount < s.AmountQuartiles[2]:
		return 2
	default:
		return 3
	}
}

// priorEntropy is the entropy of the fitted category-prior distribution.
func (s *FittedState) priorEntropy() float64 {
	var entropy float64
	for _, p := range s.CategoryPriors {
		entropy -= p * math.Log(p+1e-10)
	}
	return entropy
}

// termCounts extracts 1- and 2-token term occurrence counts from a
// normalized merchant name.
func termCounts(normalized string) map[string]int {
	tokens := strings.Fields(normalized)
	counts := make(map[string]int, len(tokens)*2)
	for i, tok := range tokens {
		counts[tok]++
		if i+1 < len(tokens) {
			counts[tok+" "+tokens[i+1]]++
		}
	}
	return counts
}

// fitVocabulary selects up to maxVocabTerms terms by total occurrence count
// (ties lexicographic), orders the final vocabulary alphabetically, and
// computes smoothed inverse document frequencies.
func fitVocabulary(normalized []string) ([]string, []float64) {
	totalCounts := make(map[string]int)
	docFreq := make(map[string]int)
	for _, m := range normalized {
		counts := termCounts(m)
		for term, c := range counts {
			totalCounts[term] += c
			docFreq[term]++
		}
	}

	terms := make([]string, 0, len(totalCounts))
	for term := range totalCounts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if totalCounts[terms[i]] != totalCounts[terms[j]] {
			return totalCounts[terms[i]] > totalCounts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxVocabTerms {
		terms = terms[:maxVocabTerms]
	}
	sort.Strings(terms)

	n := float64(len(normalized))
	idf := make([]float64, len(terms))
	for i, term := range terms {
		idf[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}
	return terms, idf
}

// categoryHash encodes a category name as a small stable integer feature.
func categoryHash(category string) int {
	if category == "" {
		category = "unknown"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(category))
	return int(h.Sum32() % 1000)
}
