package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spendworth/sift/internal/features"
	"github.com/spendworth/sift/internal/model"
)

// Training minimums. The initial-training path demands more samples than the
// incremental-retraining path; the split is deliberate policy, not a
// relaxation of the same threshold.
const (
	DefaultMinSamplesInitial = 50
	DefaultMinSamplesRetrain = 20
)

// Config holds classifier training hyperparameters.
type Config struct {
	LearningRate float64
	L2Penalty    float64
	Epochs       int
	MinSamples   int
	Seed         int64
}

// DefaultConfig returns training defaults for the initial-training path.
func DefaultConfig() Config {
	return Config{
		LearningRate: 0.1,
		L2Penalty:    1e-4,
		Epochs:       300,
		MinSamples:   DefaultMinSamplesInitial,
		Seed:         42,
	}
}

// RetrainConfig returns defaults for the incremental-retraining path.
func RetrainConfig() Config {
	cfg := DefaultConfig()
	cfg.MinSamples = DefaultMinSamplesRetrain
	return cfg
}

// Trainer fits models from feature vectors and labels.
type Trainer struct {
	cfg Config
}

// NewTrainer creates a trainer with the given configuration.
func NewTrainer(cfg Config) *Trainer {
	if cfg.Epochs <= 0 {
		cfg.Epochs = 300
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.1
	}
	return &Trainer{cfg: cfg}
}

// Train fits a model on the given vectors and labels, holding out a
// stratified validation split. When the sample count is below the configured
// minimum it reports insufficient_data with no side effect instead of
// training a model nobody should trust. Cancellation is checked between
// epochs so a deadline cuts the run short.
func (t *Trainer) Train(ctx context.Context, vectors []features.Vector, labels []string, featureNames []string, validationFraction float64) (*Model, *model.TrainingResult, error) {
	if len(vectors) != len(labels) {
		return nil, nil, fmt.Errorf("got %d vectors but %d labels", len(vectors), len(labels))
	}
	if len(vectors) < t.cfg.MinSamples {
		slog.Warn("Insufficient training data",
			"samples", len(vectors),
			"min_required", t.cfg.MinSamples)
		return nil, &model.TrainingResult{
			Success:         false,
			Error:           "insufficient_data",
			TrainSamples:    len(vectors),
			SamplesRequired: t.cfg.MinSamples,
		}, nil
	}
	if validationFraction <= 0 || validationFraction >= 1 {
		validationFraction = 0.2
	}

	classes := uniqueSorted(labels)
	if len(classes) < 2 {
		return nil, &model.TrainingResult{
			Success:      false,
			Error:        "insufficient_data",
			TrainSamples: len(vectors),
		}, nil
	}
	classIndex := make(map[string]int, len(classes))
	for i, c := range classes {
		classIndex[c] = i
	}

	trainIdx, valIdx := stratifiedSplit(labels, validationFraction, t.cfg.Seed)

	slog.Info("Training classifier",
		"train_samples", len(trainIdx),
		"validation_samples", len(valIdx),
		"classes", len(classes),
		"features", len(vectors[0]))

	m, err := t.fit(ctx, vectors, labels, trainIdx, classes, classIndex)
	if err != nil {
		return nil, nil, fmt.Errorf("training interrupted: %w", err)
	}
	m.FeatureNames = featureNames

	valVectors := make([]features.Vector, len(valIdx))
	valLabels := make([]string, len(valIdx))
	for i, idx := range valIdx {
		valVectors[i] = vectors[idx]
		valLabels[i] = labels[idx]
	}
	metrics, err := Evaluate(m, valVectors, valLabels)
	if err != nil {
		return nil, nil, fmt.Errorf("validation failed: %w", err)
	}

	return m, &model.TrainingResult{
		Success:           true,
		Metrics:           metrics,
		TrainSamples:      len(trainIdx),
		ValidationSamples: len(valIdx),
	}, nil
}

// fit runs full-batch gradient descent on softmax cross-entropy with L2
// regularization on the weights (not the bias).
func (t *Trainer) fit(ctx context.Context, vectors []features.Vector, labels []string, trainIdx []int, classes []string, classIndex map[string]int) (*Model, error) {
	nFeatures := len(vectors[0])
	weights := make([][]float64, len(classes))
	for c := range weights {
		weights[c] = make([]float64, nFeatures+1)
	}

	n := float64(len(trainIdx))
	grads := make([][]float64, len(classes))
	for c := range grads {
		grads[c] = make([]float64, nFeatures+1)
	}

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for c := range grads {
			for i := range grads[c] {
				grads[c][i] = 0
			}
		}

		for _, idx := range trainIdx {
			x := vectors[idx]
			target := classIndex[labels[idx]]

			logits := make([]float64, len(classes))
			for c, w := range weights {
				var z float64
				for i, xi := range x {
					z += w[i] * xi
				}
				z += w[nFeatures]
				logits[c] = z
			}
			probs := softmax(logits)

			for c := range classes {
				diff := probs[c]
				if c == target {
					diff -= 1
				}
				g := grads[c]
				for i, xi := range x {
					g[i] += diff * xi
				}
				g[nFeatures] += diff
			}
		}

		for c, w := range weights {
			g := grads[c]
			for i := 0; i < nFeatures; i++ {
				w[i] -= t.cfg.LearningRate * (g[i]/n + t.cfg.L2Penalty*w[i])
			}
			w[nFeatures] -= t.cfg.LearningRate * g[nFeatures] / n
		}
	}

	return &Model{Classes: classes, Weights: weights}, nil
}

// Evaluate computes accuracy, macro precision/recall/F1, and top-3 accuracy
// on a labeled set.
func Evaluate(m *Model, vectors []features.Vector, labels []string) (map[string]float64, error) {
	if len(vectors) == 0 {
		return map[string]float64{
			"accuracy": 0, "precision_macro": 0, "recall_macro": 0,
			"f1_macro": 0, "top3_accuracy": 0,
		}, nil
	}

	classIndex := make(map[string]int, len(m.Classes))
	for i, c := range m.Classes {
		classIndex[c] = i
	}

	truePos := make([]int, len(m.Classes))
	falsePos := make([]int, len(m.Classes))
	falseNeg := make([]int, len(m.Classes))
	correct := 0
	top3Correct := 0

	for i, v := range vectors {
		preds, err := m.Predict([]features.Vector{v}, 3)
		if err != nil {
			return nil, err
		}
		top := preds[0]
		predicted := top[0].Category
		actual := labels[i]

		if predicted == actual {
			correct++
			if idx, ok := classIndex[actual]; ok {
				truePos[idx]++
			}
		} else {
			if idx, ok := classIndex[predicted]; ok {
				falsePos[idx]++
			}
			if idx, ok := classIndex[actual]; ok {
				falseNeg[idx]++
			}
		}

		for _, p := range top {
			if p.Category == actual {
				top3Correct++
				break
			}
		}
	}

	var precisionSum, recallSum, f1Sum float64
	for c := range m.Classes {
		var precision, recall float64
		if truePos[c]+falsePos[c] > 0 {
			precision = float64(truePos[c]) / float64(truePos[c]+falsePos[c])
		}
		if truePos[c]+falseNeg[c] > 0 {
			recall = float64(truePos[c]) / float64(truePos[c]+falseNeg[c])
		}
		precisionSum += precision
		recallSum += recall
		if precision+recall > 0 {
			f1Sum += 2 * precision * recall / (precision + recall)
		}
	}

	n := float64(len(vectors))
	k := float64(len(m.Classes))
	return map[string]float64{
		"accuracy":        float64(correct) / n,
		"precision_macro": precisionSum / k,
		"recall_macro":    recallSum / k,
		"f1_macro":        f1Sum / k,
		"top3_accuracy":   float64(top3Correct) / n,
	}, nil
}

func uniqueSorted(labels []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// Hyperparameters reports the trainer's settings for run metadata.
func (t *Trainer) Hyperparameters() map[string]float64 {
	return map[string]float64{
		"learning_rate": t.cfg.LearningRate,
		"l2_penalty":    t.cfg.L2Penalty,
		"epochs":        float64(t.cfg.Epochs),
		"min_samples":   float64(t.cfg.MinSamples),
	}
}
