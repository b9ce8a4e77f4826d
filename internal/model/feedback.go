package model

import (
	"fmt"
	"time"
)

// FeedbackType is the closed set of feedback events a user can submit.
type FeedbackType string

const (
	// FeedbackAccepted means the user kept the predicted category.
	FeedbackAccepted FeedbackType = "accepted"
	// FeedbackCorrected means the user chose a different category.
	FeedbackCorrected FeedbackType = "corrected"
	// FeedbackRejected means the user dismissed the prediction entirely.
	FeedbackRejected FeedbackType = "rejected"
)

// Validate ensures the feedback type is one of the known values.
func (t FeedbackType) Validate() error {
	switch t {
	case FeedbackAccepted, FeedbackCorrected, FeedbackRejected:
		return nil
	default:
		return fmt.Errorf("unknown feedback type %q", string(t))
	}
}

// FeedbackRecord is one immutable entry in a user's feedback ledger.
type FeedbackRecord struct {
	Timestamp         time.Time    `json:"timestamp"`
	Date              time.Time    `json:"date"`
	FeedbackID        string       `json:"feedback_id"`
	UserID            string       `json:"user_id"`
	ExpenseID         string       `json:"expense_id"`
	Merchant          string       `json:"merchant"`
	Notes             string       `json:"notes,omitempty"`
	PredictedCategory string       `json:"predicted_category"`
	ActualCategory    string       `json:"actual_category,omitempty"`
	ModelVersion      string       `json:"model_version,omitempty"`
	FeedbackType      FeedbackType `json:"feedback_type"`
	FeedbackNotes     string       `json:"feedback_notes,omitempty"`
	Amount            float64      `json:"amount"`
	Confidence        float64      `json:"confidence"`
	IsCorrect         bool         `json:"is_correct"`
}

// Validate checks caller-supplied fields before the record reaches the
// ledger. A corrected feedback without an actual category is a caller error,
// never a ledger error.
func (r *FeedbackRecord) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if r.Merchant == "" {
		return fmt.Errorf("merchant is required")
	}
	if r.Amount <= 0 {
		return fmt.Errorf("amount must be positive, got %.2f", r.Amount)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1, got %.2f", r.Confidence)
	}
	if err := r.FeedbackType.Validate(); err != nil {
		return err
	}
	if r.FeedbackType == FeedbackCorrected && r.ActualCategory == "" {
		return fmt.Errorf("corrected feedback requires actual_category")
	}
	return nil
}

// Derive fills the fields the ledger owns: correctness follows purely from
// the feedback type (a correction counts as wrong even if the user picked the
// same category back), and accepted feedback inherits the predicted category
// as its actual category.
func (r *FeedbackRecord) Derive() {
	switch r.FeedbackType {
	case FeedbackAccepted:
		r.IsCorrect = true
		r.ActualCategory = r.PredictedCategory
	case FeedbackCorrected, FeedbackRejected:
		r.IsCorrect = false
	}
}
