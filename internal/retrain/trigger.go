package retrain

import "context"

// Trigger request outcomes.
const (
	TriggerStatusQueued  = "queued"
	TriggerStatusSkipped = "skipped"
)

// TriggerResult reports whether a retraining request was acted on.
type TriggerResult struct {
	UserID    string   `json:"user_id"`
	Status    string   `json:"status"`
	JobID     string   `json:"job_id,omitempty"`
	Reasons   []string `json:"reasons"`
	Triggered bool     `json:"triggered"`
}

// Trigger evaluates the retraining decision for the user and submits a
// background job when a trigger fired or force is set. Without force, a
// negative decision reports skipped and nothing is queued.
func Trigger(ctx context.Context, decisions *Engine, runner *Runner, userID string, force bool) (*TriggerResult, error) {
	decision, err := decisions.ShouldRetrain(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !force && !decision.ShouldRetrain {
		return &TriggerResult{
			UserID:  userID,
			Status:  TriggerStatusSkipped,
			Reasons: decision.Reasons,
		}, nil
	}

	jobID, err := runner.Submit(userID)
	if err != nil {
		return nil, err
	}
	return &TriggerResult{
		UserID:    userID,
		Status:    TriggerStatusQueued,
		JobID:     jobID,
		Reasons:   decision.Reasons,
		Triggered: true,
	}, nil
}
