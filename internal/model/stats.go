package model

import "time"

// CorrectionPair is one (predicted, actual) correction with its count.
type CorrectionPair struct {
	Predicted string `json:"predicted"`
	Actual    string `json:"actual"`
	Count     int    `json:"count"`
}

// WeeklyTrendPoint is one week of acceptance-rate trend data.
type WeeklyTrendPoint struct {
	Week           int     `json:"week"`
	Total          int     `json:"total"`
	Accepted       int     `json:"accepted"`
	AcceptanceRate float64 `json:"acceptance_rate"`
}

// FeedbackStats summarizes a user's feedback ledger.
type FeedbackStats struct {
	UserID                 string             `json:"user_id"`
	MostCorrected          []CorrectionPair   `json:"most_corrected_categories"`
	Trend                  []WeeklyTrendPoint `json:"feedback_trend"`
	TotalPredictions       int                `json:"total_predictions"`
	AcceptedCount          int                `json:"accepted_count"`
	CorrectedCount         int                `json:"corrected_count"`
	RejectedCount          int                `json:"rejected_count"`
	AcceptanceRate         float64            `json:"acceptance_rate"`
	AvgConfidenceAccepted  float64            `json:"avg_confidence_accepted"`
	AvgConfidenceCorrected float64            `json:"avg_confidence_corrected"`
}

// CategoryAccuracy is per-category accuracy within a snapshot window.
type CategoryAccuracy struct {
	Accuracy float64 `json:"accuracy"`
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
}

// CalibrationBin compares stated confidence against realized accuracy for
// one confidence range.
type CalibrationBin struct {
	Range            string  `json:"range"`
	AvgConfidence    float64 `json:"avg_confidence"`
	ActualAccuracy   float64 `json:"actual_accuracy"`
	CalibrationError float64 `json:"calibration_error"`
	Count            int     `json:"count"`
}

// WeeklyAccuracyPoint is one week of accuracy trend data.
type WeeklyAccuracyPoint struct {
	Week     int     `json:"week"`
	Accuracy float64 `json:"accuracy"`
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
}

// VersionAccuracy compares accuracy across model versions.
type VersionAccuracy struct {
	ModelVersion string  `json:"model_version"`
	Accuracy     float64 `json:"accuracy"`
	Total        int     `json:"total"`
	Correct      int     `json:"correct"`
}

// AccuracySnapshot is a derived, on-demand view over recorded prediction
// outcomes within a trailing window.
type AccuracySnapshot struct {
	LastUpdated        time.Time                   `json:"last_updated"`
	UserID             string                      `json:"user_id"`
	CategoryAccuracy   map[string]CategoryAccuracy `json:"category_accuracy"`
	Calibration        []CalibrationBin            `json:"confidence_calibration"`
	Trend              []WeeklyAccuracyPoint       `json:"accuracy_trend"`
	VersionComparison  []VersionAccuracy           `json:"model_version_comparison"`
	PeriodDays         int                         `json:"period_days"`
	TotalPredictions   int                         `json:"total_predictions"`
	CorrectPredictions int                         `json:"correct_predictions"`
	OverallAccuracy    float64                     `json:"overall_accuracy"`
}

// ImprovementReport compares early-period accuracy against recent-period
// accuracy over a user's outcome history.
type ImprovementReport struct {
	Message          string  `json:"message"`
	EarlyAccuracy    float64 `json:"early_accuracy"`
	RecentAccuracy   float64 `json:"recent_accuracy"`
	Improvement      float64 `json:"improvement"`
	ImprovementPct   float64 `json:"improvement_pct"`
	EarlySamples     int     `json:"early_period_samples"`
	RecentSamples    int     `json:"recent_period_samples"`
	SamplesAvailable int     `json:"samples_available"`
	SamplesNeeded    int     `json:"samples_needed,omitempty"`
	HasImprovement   bool    `json:"has_improvement"`
}

// RetrainDecision is a transient evaluation of the retraining triggers.
type RetrainDecision struct {
	LastTrainedAt *time.Time    `json:"last_training_date,omitempty"`
	Reasons       []string      `json:"reasons"`
	Stats         FeedbackStats `json:"stats"`
	ShouldRetrain bool          `json:"should_retrain"`
}

// TrainingResult reports the outcome of one classifier training run.
type TrainingResult struct {
	Error             string             `json:"error,omitempty"`
	ModelVersion      string             `json:"model_version,omitempty"`
	Metrics           map[string]float64 `json:"metrics,omitempty"`
	TrainSamples      int                `json:"train_samples"`
	ValidationSamples int                `json:"validation_samples"`
	SamplesRequired   int                `json:"samples_required,omitempty"`
	Success           bool               `json:"success"`
}
