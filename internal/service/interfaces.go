// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/spendworth/sift/internal/model"
)

// ModelStore is the versioned registry for trained artifacts and the fitted
// feature state that accompanies them, keyed by user and stage/version.
// Loading a missing artifact returns an error wrapping common.ErrNotFound;
// callers treat that as a cold-start trigger, not a fault.
type ModelStore interface {
	SaveArtifact(ctx context.Context, info model.ModelInfo, artifact []byte, featureState []byte) (int, error)
	LoadArtifact(ctx context.Context, id model.ArtifactID) (*model.ModelInfo, []byte, []byte, error)
	ListVersions(ctx context.Context, userID string) ([]model.ModelInfo, error)
	Promote(ctx context.Context, userID string, version int) error
}

// TrainingCache persists each user's merged training set between retraining
// runs, plus the last-training timestamp the decision engine reads.
type TrainingCache interface {
	LoadTrainingSet(ctx context.Context, userID string) ([]model.ExpenseRecord, error)
	SaveTrainingSet(ctx context.Context, userID string, records []model.ExpenseRecord) error
	LastTrainedAt(ctx context.Context, userID string) (*time.Time, error)
	SetLastTrainedAt(ctx context.Context, userID string, t time.Time) error
}

// Ledger is the durable, append-only record of user feedback.
type Ledger interface {
	Append(ctx context.Context, record *model.FeedbackRecord) (string, error)
	Stats(ctx context.Context, userID string) (*model.FeedbackStats, error)
	History(ctx context.Context, userID string, limit int) ([]model.FeedbackRecord, error)
	ExtractTrainingData(ctx context.Context, userID string, minConfidence float64) ([]model.ExpenseRecord, error)
	Clear(ctx context.Context, userID string) error
	ListUsers(ctx context.Context) ([]string, error)
}

// OutcomeLog records prediction outcomes for accuracy monitoring. It is
// populated from the same feedback events as the ledger but kept independent
// of it.
type OutcomeLog interface {
	Record(ctx context.Context, outcome model.PredictionOutcome) error
	AccuracyMetrics(ctx context.Context, userID string, windowDays int) (*model.AccuracySnapshot, error)
	ImprovementMetrics(ctx context.Context, userID string) (*model.ImprovementReport, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
