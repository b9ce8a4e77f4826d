package classifier

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendworth/sift/internal/features"
)

// separable builds an easily separable synthetic set: each class lights up
// its own feature with a small class-dependent offset.
func separable(perClass int) ([]features.Vector, []string) {
	classes := []string{"Food & Dining", "Groceries", "Transportation"}
	var vectors []features.Vector
	var labels []string
	for c, name := range classes {
		for i := 0; i < perClass; i++ {
			v := make(features.Vector, len(classes))
			v[c] = 1.0 + 0.01*float64(i%5)
			vectors = append(vectors, v)
			labels = append(labels, name)
		}
	}
	return vectors, labels
}

func TestTrainer_InsufficientData(t *testing.T) {
	vectors, labels := separable(2)

	trainer := NewTrainer(RetrainConfig())
	m, result, err := trainer.Train(context.Background(), vectors, labels, nil, 0.2)

	require.NoError(t, err)
	assert.Nil(t, m)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, "insufficient_data", result.Error)
	assert.Equal(t, 6, result.TrainSamples)
	assert.Equal(t, DefaultMinSamplesRetrain, result.SamplesRequired)
}

func TestTrainer_SingleClass(t *testing.T) {
	vectors := make([]features.Vector, 25)
	labels := make([]string, 25)
	for i := range vectors {
		vectors[i] = features.Vector{1, 0}
		labels[i] = "Groceries"
	}

	trainer := NewTrainer(RetrainConfig())
	m, result, err := trainer.Train(context.Background(), vectors, labels, nil, 0.2)

	require.NoError(t, err)
	assert.Nil(t, m)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, "insufficient_data", result.Error)
}

func TestTrainer_CanceledContext(t *testing.T) {
	vectors, labels := separable(20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trainer := NewTrainer(RetrainConfig())
	_, _, err := trainer.Train(ctx, vectors, labels, nil, 0.2)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainer_MismatchedInputs(t *testing.T) {
	trainer := NewTrainer(RetrainConfig())
	_, _, err := trainer.Train(context.Background(), []features.Vector{{1}}, []string{"a", "b"}, nil, 0.2)
	assert.Error(t, err)
}

func TestTrainer_SeparableData(t *testing.T) {
	vectors, labels := separable(20)
	names := []string{"f0", "f1", "f2"}

	trainer := NewTrainer(RetrainConfig())
	m, result, err := trainer.Train(context.Background(), vectors, labels, names, 0.2)

	require.NoError(t, err)
	require.NotNil(t, m)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, 48, result.TrainSamples)
	assert.Equal(t, 12, result.ValidationSamples)
	assert.Equal(t, []string{"Food & Dining", "Groceries", "Transportation"}, m.Classes)
	assert.Equal(t, names, m.FeatureNames)
	assert.GreaterOrEqual(t, result.Metrics["accuracy"], 0.9)
	assert.GreaterOrEqual(t, result.Metrics["top3_accuracy"], result.Metrics["accuracy"])
}

func TestTrainer_Deterministic(t *testing.T) {
	vectors, labels := separable(20)

	trainer := NewTrainer(RetrainConfig())
	m1, _, err := trainer.Train(context.Background(), vectors, labels, nil, 0.2)
	require.NoError(t, err)
	m2, _, err := trainer.Train(context.Background(), vectors, labels, nil, 0.2)
	require.NoError(t, err)

	assert.Equal(t, m1.Weights, m2.Weights)
}

func TestModel_PredictProbaSumsToOne(t *testing.T) {
	vectors, labels := separable(20)
	trainer := NewTrainer(RetrainConfig())
	m, _, err := trainer.Train(context.Background(), vectors, labels, nil, 0.2)
	require.NoError(t, err)

	probs, err := m.PredictProba(features.Vector{0.5, 0.2, 0.1})
	require.NoError(t, err)

	var sum float64
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestModel_PredictWidthMismatch(t *testing.T) {
	m := &Model{
		Classes: []string{"a", "b"},
		Weights: [][]float64{{1, 0, 0}, {0, 1, 0}},
	}
	_, err := m.PredictProba(features.Vector{1, 2, 3})
	assert.Error(t, err)
}

func TestModel_TopKTieBreak(t *testing.T) {
	// Zero weights make every class equally likely; the stable sort must
	// keep the original class order.
	m := &Model{
		Classes: []string{"Entertainment", "Groceries", "Shopping"},
		Weights: [][]float64{{0, 0}, {0, 0}, {0, 0}},
	}

	results, err := m.Predict([]features.Vector{{1}}, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0], 2)
	assert.Equal(t, "Entertainment", results[0][0].Category)
	assert.Equal(t, "Groceries", results[0][1].Category)
	assert.InDelta(t, 1.0/3.0, results[0][0].Probability, 1e-9)
}

func TestModel_PredictTopKClamped(t *testing.T) {
	m := &Model{
		Classes: []string{"a", "b"},
		Weights: [][]float64{{1, 0}, {-1, 0}},
	}
	results, err := m.Predict([]features.Vector{{1}}, 10)
	require.NoError(t, err)
	assert.Len(t, results[0], 2)
	assert.Equal(t, "a", results[0][0].Category)
}

func TestUnmarshal_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty classes", `{"classes":[],"weights":[]}`},
		{"weight count mismatch", `{"classes":["a","b"],"weights":[[0,0]]}`},
		{"not json", `{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestModel_MarshalRoundTrip(t *testing.T) {
	m := &Model{
		Classes:      []string{"a", "b"},
		FeatureNames: []string{"x"},
		Weights:      [][]float64{{0.5, -0.25}, {-0.5, 0.25}},
	}
	data, err := m.Marshal()
	require.NoError(t, err)
	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestEvaluate(t *testing.T) {
	m := &Model{
		Classes: []string{"a", "b"},
		Weights: [][]float64{{4, 0, 0}, {0, 4, 0}},
	}
	vectors := []features.Vector{{1, 0}, {1, 0}, {0, 1}, {0, 1}}

	t.Run("perfect", func(t *testing.T) {
		metrics, err := Evaluate(m, vectors, []string{"a", "a", "b", "b"})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, metrics["accuracy"], 1e-9)
		assert.InDelta(t, 1.0, metrics["precision_macro"], 1e-9)
		assert.InDelta(t, 1.0, metrics["recall_macro"], 1e-9)
		assert.InDelta(t, 1.0, metrics["f1_macro"], 1e-9)
		assert.InDelta(t, 1.0, metrics["top3_accuracy"], 1e-9)
	})

	t.Run("one miss", func(t *testing.T) {
		metrics, err := Evaluate(m, vectors, []string{"a", "b", "b", "b"})
		require.NoError(t, err)
		assert.InDelta(t, 0.75, metrics["accuracy"], 1e-9)
		// Both classes stay in the top 3 of a 2-class model.
		assert.InDelta(t, 1.0, metrics["top3_accuracy"], 1e-9)
	})

	t.Run("empty", func(t *testing.T) {
		metrics, err := Evaluate(m, nil, nil)
		require.NoError(t, err)
		for _, key := range []string{"accuracy", "precision_macro", "recall_macro", "f1_macro", "top3_accuracy"} {
			assert.Zero(t, metrics[key], key)
		}
	})
}

func TestStratifiedSplit(t *testing.T) {
	labels := make([]string, 0, 30)
	for i := 0; i < 20; i++ {
		labels = append(labels, "big")
	}
	for i := 0; i < 10; i++ {
		labels = append(labels, "small")
	}

	trainIdx, valIdx := stratifiedSplit(labels, 0.2, 42)

	assert.Len(t, trainIdx, 24)
	assert.Len(t, valIdx, 6)

	seen := make(map[int]bool)
	for _, i := range append(append([]int{}, trainIdx...), valIdx...) {
		assert.False(t, seen[i], "index appears twice")
		seen[i] = true
	}
	assert.Len(t, seen, 30)

	var bigVal, smallVal int
	for _, i := range valIdx {
		if labels[i] == "big" {
			bigVal++
		} else {
			smallVal++
		}
	}
	assert.Equal(t, 4, bigVal)
	assert.Equal(t, 2, smallVal)
}

func TestStratifiedSplit_TinyClassStaysInTrain(t *testing.T) {
	labels := []string{"solo", "other", "other", "other", "other", "other"}
	trainIdx, valIdx := stratifiedSplit(labels, 0.2, 42)

	for _, i := range valIdx {
		assert.NotEqual(t, "solo", labels[i])
	}
	found := false
	for _, i := range trainIdx {
		if labels[i] == "solo" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestStratifiedSplit_Reproducible(t *testing.T) {
	labels := make([]string, 40)
	for i := range labels {
		if i%2 == 0 {
			labels[i] = "a"
		} else {
			labels[i] = "b"
		}
	}
	t1, v1 := stratifiedSplit(labels, 0.25, 7)
	t2, v2 := stratifiedSplit(labels, 0.25, 7)
	assert.Equal(t, t1, t2)
	assert.Equal(t, v1, v2)
}

func TestSoftmax_NumericalStability(t *testing.T) {
	out := softmax([]float64{1000, 1001, 999})
	var sum float64
	for _, p := range out {
		assert.False(t, math.IsNaN(p))
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, out[1], out[0])
}
