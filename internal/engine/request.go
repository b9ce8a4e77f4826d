package engine

import (
	"fmt"
	"time"

	"github.com/spendworth/sift/internal/model"
)

const (
	defaultTopK = 3
	maxTopK     = 5
)

// PredictRequest asks for category predictions for one expense.
type PredictRequest struct {
	Date     time.Time   `json:"date,omitempty"`
	UserID   string      `json:"user_id"`
	Merchant string      `json:"merchant"`
	Notes    string      `json:"notes,omitempty"`
	Stage    model.Stage `json:"model_stage,omitempty"`
	Amount   float64     `json:"amount"`
	Version  int         `json:"model_version,omitempty"`
	TopK     int         `json:"top_k,omitempty"`
}

// Validate checks required fields and applies defaults in place.
func (r *PredictRequest) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if r.Merchant == "" {
		return fmt.Errorf("merchant is required")
	}
	if r.Amount <= 0 {
		return fmt.Errorf("amount must be positive, got %.2f", r.Amount)
	}
	if r.TopK == 0 {
		r.TopK = defaultTopK
	}
	if r.TopK < 1 || r.TopK > maxTopK {
		return fmt.Errorf("top_k must be between 1 and %d, got %d", maxTopK, r.TopK)
	}
	if r.Stage == "" {
		r.Stage = model.StageProduction
	}
	if err := r.Stage.Validate(); err != nil {
		return err
	}
	if r.Date.IsZero() {
		r.Date = time.Now()
	}
	return nil
}

// PredictResponse carries calibrated predictions for one expense.
type PredictResponse struct {
	UserID          string                       `json:"user_id"`
	ModelVersion    string                       `json:"model_version,omitempty"`
	Predictions     []model.CalibratedPrediction `json:"predictions"`
	InferenceTimeMs float64                      `json:"inference_time_ms"`
	FeatureQuality  float64                      `json:"feature_quality"`
	ColdStart       bool                         `json:"cold_start"`
}

// RecommendRequest extends prediction with the inputs error detection needs.
type RecommendRequest struct {
	PredictRequest
	Category        string `json:"category,omitempty"`
	ReceiptAttached bool   `json:"receipt_attached,omitempty"`
}

// RecommendResponse is a full recommendation: predictions plus warnings.
type RecommendResponse struct {
	UserID          string                       `json:"user_id"`
	ModelVersion    string                       `json:"model_version,omitempty"`
	Predictions     []model.CalibratedPrediction `json:"predictions"`
	Errors          []model.Warning              `json:"errors"`
	InferenceTimeMs float64                      `json:"inference_time_ms"`
	FeatureQuality  float64                      `json:"feature_quality"`
	ColdStart       bool                         `json:"cold_start"`
}
