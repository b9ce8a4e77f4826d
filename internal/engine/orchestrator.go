// Package engine composes feature derivation, classification, confidence
// calibration, error detection, and explanation into one inference cycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/spendworth/sift/internal/classifier"
	"github.com/spendworth/sift/internal/common"
	"github.com/spendworth/sift/internal/confidence"
	"github.com/spendworth/sift/internal/detect"
	"github.com/spendworth/sift/internal/explain"
	"github.com/spendworth/sift/internal/features"
	"github.com/spendworth/sift/internal/model"
	"github.com/spendworth/sift/internal/service"
)

// coldStartFeatureQuality is reported when the rule path serves a request.
const coldStartFeatureQuality = 0.5

// LoadedModel bundles a trained classifier with the feature deriver fitted
// alongside it.
type LoadedModel struct {
	Info    *model.ModelInfo
	Model   *classifier.Model
	Deriver *features.Deriver
}

// Orchestrator serves predictions, falling back to rule-based cold-start
// suggestions when no trained model exists or the model path faults.
type Orchestrator struct {
	store       service.ModelStore
	cache       service.TrainingCache
	ledger      service.Ledger
	detector    *detect.Detector
	calibrators map[string]*confidence.Calibrator
	explainers  map[string]*explain.Explainer
	group       singleflight.Group
	mu          sync.Mutex
}

// NewOrchestrator creates an orchestrator over the given services.
func NewOrchestrator(store service.ModelStore, cache service.TrainingCache, ledger service.Ledger) *Orchestrator {
	return &Orchestrator{
		store:       store,
		cache:       cache,
		ledger:      ledger,
		detector:    detect.New(),
		calibrators: make(map[string]*confidence.Calibrator),
		explainers:  make(map[string]*explain.Explainer),
	}
}

// Calibrator returns the user's calibrator, creating it on first use. The
// calibrator accumulates per-category historical accuracy in process.
func (o *Orchestrator) Calibrator(userID string) *confidence.Calibrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.calibrators[userID]
	if !ok {
		c = confidence.NewCalibrator(userID)
		o.calibrators[userID] = c
	}
	return c
}

func (o *Orchestrator) explainer(userID string) *explain.Explainer {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.explainers[userID]
	if !ok {
		e = explain.NewExplainer(userID)
		o.explainers[userID] = e
	}
	return e
}

// TryLoad fetches and deserializes a model. The second return is false when
// no model exists (cold start); a non-nil error means a real fault.
// Concurrent loads for the same identifier are deduplicated.
func (o *Orchestrator) TryLoad(ctx context.Context, id model.ArtifactID) (*LoadedModel, bool, error) {
	key := fmt.Sprintf("%s|%s|%d", id.UserID, id.Stage, id.Version)
	v, err, _ := o.group.Do(key, func() (any, error) {
		info, artifact, state, err := o.store.LoadArtifact(ctx, id)
		if err != nil {
			return nil, err
		}

		m, err := classifier.Unmarshal(artifact)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal model: %w", err)
		}
		fitted, err := features.UnmarshalState(state)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal feature state: %w", err)
		}
		deriver := features.NewDeriver(id.UserID)
		deriver.Restore(fitted)

		return &LoadedModel{Info: info, Model: m, Deriver: deriver}, nil
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v.(*LoadedModel), true, nil
}

// Predict returns top-K calibrated predictions for one expense. A missing
// model or a fault in the model path degrades to the rule-based cold-start
// path rather than failing the request.
func (o *Orchestrator) Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid prediction request: %w", err)
	}

	lm, ok, err := o.TryLoad(ctx, model.ArtifactID{
		UserID:  req.UserID,
		Stage:   req.Stage,
		Version: req.Version,
	})
	if err != nil {
		common.LogError(err, "Model load failed, serving cold-start prediction", common.Fields{
			"user_id": req.UserID,
		})
	}
	if err != nil || !ok {
		return o.coldStartResponse(req, start), nil
	}

	resp, err := o.modelPredict(req, lm, start)
	if err != nil {
		common.LogError(err, "Model prediction failed, serving cold-start prediction", common.Fields{
			"user_id": req.UserID,
		})
		return o.coldStartResponse(req, start), nil
	}
	return resp, nil
}

func (o *Orchestrator) modelPredict(req *PredictRequest, lm *LoadedModel, start time.Time) (*PredictResponse, error) {
	record := model.ExpenseRecord{
		Date:     req.Date,
		Merchant: req.Merchant,
		Notes:    req.Notes,
		Amount:   req.Amount,
	}

	vectors, err := lm.Deriver.Transform([]model.ExpenseRecord{record})
	if err != nil {
		return nil, fmt.Errorf("failed to derive features: %w", err)
	}
	featureQuality := confidence.AssessFeatureQuality(vectors)

	batches, err := lm.Model.Predict(vectors, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	calibrator := o.Calibrator(req.UserID)
	explainer := o.explainer(req.UserID)

	predictions := make([]model.CalibratedPrediction, 0, len(batches[0]))
	for _, pred := range batches[0] {
		score := calibrator.Score(pred.Probability, featureQuality, pred.Category)
		expl := explainer.Explain(pred.Category, score.Confidence, req.Merchant, req.Amount, req.Date)
		predictions = append(predictions, model.CalibratedPrediction{
			Category:            pred.Category,
			Confidence:          score.Confidence,
			ConfidencePct:       score.ConfidencePct,
			ConfidenceLevel:     score.Level,
			Explanation:         expl.Short,
			DetailedExplanation: expl.Detailed,
			ContributingFactors: expl.Factors,
		})
	}

	resp := &PredictResponse{
		UserID:          req.UserID,
		ModelVersion:    fmt.Sprintf("%d", lm.Info.Version),
		Predictions:     predictions,
		FeatureQuality:  featureQuality,
		InferenceTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}

	slog.Info("Prediction completed",
		"user_id", req.UserID,
		"top_category", predictions[0].Category,
		"confidence_pct", fmt.Sprintf("%.1f", predictions[0].ConfidencePct),
		"latency_ms", fmt.Sprintf("%.1f", resp.InferenceTimeMs))
	return resp, nil
}

func (o *Orchestrator) coldStartResponse(req *PredictRequest, start time.Time) *PredictResponse {
	slog.Info("Serving cold-start prediction", "user_id", req.UserID)
	predictions := o.coldStartPredict(req.UserID, req.Merchant, req.TopK)
	return &PredictResponse{
		UserID:          req.UserID,
		Predictions:     predictions,
		ColdStart:       true,
		FeatureQuality:  coldStartFeatureQuality,
		InferenceTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
}

// Recommend runs a prediction and the error-detection rules together. The
// user's cached training set serves as expense history for the detector.
func (o *Orchestrator) Recommend(ctx context.Context, req *RecommendRequest) (*RecommendResponse, error) {
	prediction, err := o.Predict(ctx, &req.PredictRequest)
	if err != nil {
		return nil, err
	}

	history, err := o.cache.LoadTrainingSet(ctx, req.UserID)
	if err != nil {
		common.LogError(err, "Failed to load expense history for error detection", common.Fields{
			"user_id": req.UserID,
		})
		history = nil
	}

	warnings := o.detector.Detect(detect.Input{
		Date:            req.Date,
		Merchant:        req.Merchant,
		Category:        req.Category,
		Notes:           req.Notes,
		Amount:          req.Amount,
		ReceiptAttached: req.ReceiptAttached,
	}, history)
	if warnings == nil {
		warnings = []model.Warning{}
	}

	slog.Info("Recommendation completed",
		"user_id", req.UserID,
		"predictions", len(prediction.Predictions),
		"warnings", len(warnings))

	return &RecommendResponse{
		UserID:          req.UserID,
		ModelVersion:    prediction.ModelVersion,
		Predictions:     prediction.Predictions,
		Errors:          warnings,
		ColdStart:       prediction.ColdStart,
		FeatureQuality:  prediction.FeatureQuality,
		InferenceTimeMs: prediction.InferenceTimeMs,
	}, nil
}

// ModelInfo returns the stored version lineage for a user, newest first.
func (o *Orchestrator) ModelInfo(ctx context.Context, userID string) ([]model.ModelInfo, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	return o.store.ListVersions(ctx, userID)
}
