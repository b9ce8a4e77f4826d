package engine

import (
	"context"
	"fmt"

	"github.com/spendworth/sift/internal/model"
	"github.com/spendworth/sift/internal/retrain"
	"github.com/spendworth/sift/internal/service"
)

// Dashboard is the combined read model shown to a user: accuracy, feedback,
// improvement, and retraining status in one view.
type Dashboard struct {
	UserID      string                   `json:"user_id"`
	Accuracy    *model.AccuracySnapshot  `json:"accuracy"`
	Feedback    *model.FeedbackStats     `json:"feedback_stats"`
	Improvement *model.ImprovementReport `json:"improvement_metrics"`
	Retraining  *retrain.Schedule        `json:"retraining_status"`
}

// DashboardBuilder assembles dashboards from the monitoring services.
type DashboardBuilder struct {
	ledger   service.Ledger
	outcomes service.OutcomeLog
	engine   *retrain.Engine
}

// NewDashboardBuilder creates a builder over the given services.
func NewDashboardBuilder(ledger service.Ledger, outcomes service.OutcomeLog, engine *retrain.Engine) *DashboardBuilder {
	return &DashboardBuilder{
		ledger:   ledger,
		outcomes: outcomes,
		engine:   engine,
	}
}

// Build computes a dashboard over the trailing window.
func (b *DashboardBuilder) Build(ctx context.Context, userID string, windowDays int) (*Dashboard, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if windowDays <= 0 {
		windowDays = 30
	}

	accuracy, err := b.outcomes.AccuracyMetrics(ctx, userID, windowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to compute accuracy metrics: %w", err)
	}
	stats, err := b.ledger.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute feedback stats: %w", err)
	}
	improvement, err := b.outcomes.ImprovementMetrics(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute improvement metrics: %w", err)
	}
	schedule, err := b.engine.ScheduleFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute retraining schedule: %w", err)
	}

	return &Dashboard{
		UserID:      userID,
		Accuracy:    accuracy,
		Feedback:    stats,
		Improvement: improvement,
		Retraining:  schedule,
	}, nil
}
