package model

import "time"

// PredictionOutcome is one recorded prediction plus what the user did with
// it, as logged by the accuracy monitor.
type PredictionOutcome struct {
	Timestamp         time.Time `json:"timestamp"`
	UserID            string    `json:"user_id"`
	PredictedCategory string    `json:"predicted_category"`
	ActualCategory    string    `json:"actual_category,omitempty"`
	ModelVersion      string    `json:"model_version,omitempty"`
	Confidence        float64   `json:"confidence"`
	IsCorrect         bool      `json:"is_correct"`
	HasFeedback       bool      `json:"has_feedback"`
}
