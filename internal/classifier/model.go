// Package classifier implements the per-user multi-class probabilistic
// classifier: training with a stratified validation split, top-K prediction
// with probabilities, and evaluation metrics. Persistence is delegated to the
// model store; this package only marshals artifacts to and from bytes.
package classifier

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/spendworth/sift/internal/features"
	"github.com/spendworth/sift/internal/model"
)

// Model is a trained multinomial logistic regression classifier.
// Weights[c] holds the per-feature weights for class c; the final element is
// the bias term.
type Model struct {
	Classes      []string    `json:"classes"`
	FeatureNames []string    `json:"feature_names"`
	Weights      [][]float64 `json:"weights"`
}

// Marshal serializes the model for the artifact store.
func (m *Model) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal model: %w", err)
	}
	return data, nil
}

// Unmarshal reconstructs a model from its stored artifact bytes.
func Unmarshal(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}
	if len(m.Classes) == 0 || len(m.Weights) != len(m.Classes) {
		return nil, fmt.Errorf("model artifact is malformed")
	}
	return &m, nil
}

// PredictProba returns the class probability distribution for one vector.
func (m *Model) PredictProba(v features.Vector) ([]float64, error) {
	if len(v) != len(m.Weights[0])-1 {
		return nil, fmt.Errorf("feature width %d does not match model width %d",
			len(v), len(m.Weights[0])-1)
	}

	logits := make([]float64, len(m.Classes))
	for c, w := range m.Weights {
		var z float64
		for i, x := range v {
			z += w[i] * x
		}
		z += w[len(w)-1] // bias
		logits[c] = z
	}
	return softmax(logits), nil
}

// Predict returns the top-K categories per input vector, ordered by
// probability descending with ties broken by original class order.
func (m *Model) Predict(vectors []features.Vector, topK int) ([]model.Predictions, error) {
	results := make([]model.Predictions, len(vectors))
	for i, v := range vectors {
		probs, err := m.PredictProba(v)
		if err != nil {
			return nil, err
		}
		preds := make(model.Predictions, len(m.Classes))
		for c, p := range probs {
			preds[c] = model.Prediction{
				Category:    m.Classes[c],
				Probability: p,
				ClassIndex:  c,
			}
		}
		results[i] = preds.TopK(topK)
	}
	return results, nil
}

func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, z := range logits[1:] {
		if z > maxLogit {
			maxLogit = z
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, z := range logits {
		out[i] = math.Exp(z - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
