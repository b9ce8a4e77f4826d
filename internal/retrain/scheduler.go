package retrain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/spendworth/sift/internal/common"
	"github.com/spendworth/sift/internal/service"
)

// Scheduler periodically evaluates the retraining triggers for every known
// user and submits jobs for those that warrant one. The schedule is a
// standard 5-field cron expression (minute hour day-of-month month
// day-of-week), e.g. "0 3 * * *" for daily at 3am.
type Scheduler struct {
	engine   *Engine
	runner   *Runner
	ledger   service.Ledger
	schedule cron.Schedule
	spec     string
}

// NewScheduler parses the cron spec and prepares a scheduler. An empty spec
// disables scheduling; Start becomes a no-op.
func NewScheduler(spec string, engine *Engine, runner *Runner, ledger service.Ledger) (*Scheduler, error) {
	s := &Scheduler{
		engine: engine,
		runner: runner,
		ledger: ledger,
		spec:   strings.TrimSpace(spec),
	}
	if s.spec == "" {
		return s, nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(s.spec)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid retrain schedule %q: %v", common.ErrInvalidConfig, s.spec, err)
	}
	s.schedule = sched
	return s, nil
}

// Start runs the evaluation loop until the context is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	if s.schedule == nil {
		slog.Info("Scheduled retraining disabled")
		return
	}
	slog.Info("Scheduled retraining enabled", "schedule", s.spec)

	go func() {
		for {
			now := time.Now()
			next := s.schedule.Next(now)
			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			s.EvaluateAll(ctx)
		}
	}()
}

// EvaluateAll checks the triggers for every user with feedback and submits a
// retraining job where warranted. Per-user failures are logged and do not
// stop the sweep.
func (s *Scheduler) EvaluateAll(ctx context.Context) {
	users, err := s.ledger.ListUsers(ctx)
	if err != nil {
		common.LogError(err, "Failed to list users for scheduled retraining", nil)
		return
	}

	for _, userID := range users {
		decision, err := s.engine.ShouldRetrain(ctx, userID)
		if err != nil {
			common.LogError(err, "Failed to evaluate retraining triggers", common.Fields{
				"user_id": userID,
			})
			continue
		}
		if !decision.ShouldRetrain {
			continue
		}

		jobID, err := s.runner.Submit(userID)
		if err != nil {
			if errors.Is(err, common.ErrRetrainInFlight) {
				slog.Debug("Skipping user with retraining already in flight", "user_id", userID)
				continue
			}
			common.LogError(err, "Failed to submit scheduled retraining", common.Fields{
				"user_id": userID,
			})
			continue
		}
		slog.Info("Submitted scheduled retraining",
			"user_id", userID,
			"job_id", jobID,
			"reasons", strings.Join(decision.Reasons, "; "))
	}
}
