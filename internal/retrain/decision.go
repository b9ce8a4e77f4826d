// Package retrain decides when a user's model should be retrained and runs
// the retraining pipeline as background jobs.
package retrain

import (
	"context"
	"fmt"
	"time"

	"github.com/spendworth/sift/internal/model"
	"github.com/spendworth/sift/internal/service"
)

const (
	minFeedbackForAcceptanceCheck = 20
	acceptanceRateThreshold       = 70.0
	minCorrections                = 10
	scheduledIntervalDays         = 7
	minFeedbackForScheduled       = 50
)

// Engine evaluates the retraining triggers against ledger and training
// metadata.
type Engine struct {
	ledger service.Ledger
	cache  service.TrainingCache
}

// NewEngine creates a decision engine.
func NewEngine(ledger service.Ledger, cache service.TrainingCache) *Engine {
	return &Engine{ledger: ledger, cache: cache}
}

// ShouldRetrain evaluates all triggers independently. Any firing trigger sets
// the flag; reasons accumulate.
func (e *Engine) ShouldRetrain(ctx context.Context, userID string) (*model.RetrainDecision, error) {
	stats, err := e.ledger.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback stats: %w", err)
	}
	lastTrained, err := e.cache.LastTrainedAt(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load last training time: %w", err)
	}

	decision := &model.RetrainDecision{
		Stats:         *stats,
		LastTrainedAt: lastTrained,
		Reasons:       []string{},
	}

	if stats.TotalPredictions >= minFeedbackForAcceptanceCheck &&
		stats.AcceptanceRate < acceptanceRateThreshold {
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("Low acceptance rate: %.1f%%", stats.AcceptanceRate))
		decision.ShouldRetrain = true
	}

	if stats.CorrectedCount >= minCorrections {
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("Sufficient corrections: %d", stats.CorrectedCount))
		decision.ShouldRetrain = true
	}

	if lastTrained != nil {
		daysSince := int(time.Since(*lastTrained).Hours() / 24)
		if daysSince >= scheduledIntervalDays && stats.TotalPredictions >= minFeedbackForScheduled {
			decision.Reasons = append(decision.Reasons,
				fmt.Sprintf("Scheduled retraining: %d days since last", daysSince))
			decision.ShouldRetrain = true
		}
	} else if stats.TotalPredictions >= minFeedbackForScheduled {
		decision.Reasons = append(decision.Reasons, "Initial training threshold reached")
		decision.ShouldRetrain = true
	}

	return decision, nil
}

// Schedule is the user-facing view of retraining status.
type Schedule struct {
	LastTrainedAt     *time.Time `json:"last_training_date,omitempty"`
	NextScheduledAt   *time.Time `json:"next_scheduled_date,omitempty"`
	DaysSinceTraining *int       `json:"days_since_training,omitempty"`
	UserID            string     `json:"user_id"`
	Reasons           []string   `json:"retrain_reasons"`
	FeedbackCount     int        `json:"feedback_count"`
	AcceptanceRate    float64    `json:"acceptance_rate"`
	ShouldRetrain     bool       `json:"should_retrain"`
}

// ScheduleFor reports when the user last trained, when the next scheduled
// run is due, and whether a retrain is warranted now.
func (e *Engine) ScheduleFor(ctx context.Context, userID string) (*Schedule, error) {
	decision, err := e.ShouldRetrain(ctx, userID)
	if err != nil {
		return nil, err
	}

	schedule := &Schedule{
		UserID:         userID,
		LastTrainedAt:  decision.LastTrainedAt,
		Reasons:        decision.Reasons,
		FeedbackCount:  decision.Stats.TotalPredictions,
		AcceptanceRate: decision.Stats.AcceptanceRate,
		ShouldRetrain:  decision.ShouldRetrain,
	}
	if decision.LastTrainedAt != nil {
		next := decision.LastTrainedAt.AddDate(0, 0, scheduledIntervalDays)
		schedule.NextScheduledAt = &next
		days := int(time.Since(*decision.LastTrainedAt).Hours() / 24)
		schedule.DaysSinceTraining = &days
	}
	return schedule, nil
}
