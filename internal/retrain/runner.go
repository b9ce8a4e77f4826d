package retrain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spendworth/sift/internal/classifier"
	"github.com/spendworth/sift/internal/common"
	"github.com/spendworth/sift/internal/features"
	"github.com/spendworth/sift/internal/model"
	"github.com/spendworth/sift/internal/service"
)

// DefaultJobTimeout bounds one retraining run.
const DefaultJobTimeout = 5 * time.Minute

// DefaultJobRetention bounds how long finished job records stay queryable.
const DefaultJobRetention = time.Hour

const validationFraction = 0.2

// JobState tracks a retraining job through its lifecycle.
type JobState string

const (
	// JobQueued means the job has been accepted but not started.
	JobQueued JobState = "queued"
	// JobRunning means the job is training.
	JobRunning JobState = "running"
	// JobSucceeded means training completed and the new version is stored.
	JobSucceeded JobState = "succeeded"
	// JobFailed means training could not complete.
	JobFailed JobState = "failed"
)

// Job is the status record for one retraining run.
type Job struct {
	CreatedAt  time.Time             `json:"created_at"`
	StartedAt  *time.Time            `json:"started_at,omitempty"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
	Result     *model.TrainingResult `json:"result,omitempty"`
	ID         string                `json:"id"`
	UserID     string                `json:"user_id"`
	State      JobState              `json:"state"`
	Error      string                `json:"error,omitempty"`
}

// Runner executes retraining jobs in the background, one at a time per user.
type Runner struct {
	ledger    service.Ledger
	cache     service.TrainingCache
	store     service.ModelStore
	jobs      map[string]*Job
	inFlight  map[string]bool
	timeout   time.Duration
	retention time.Duration
	mu        sync.Mutex
	wg        sync.WaitGroup
}

// NewRunner creates a runner over the given persistence services.
func NewRunner(ledger service.Ledger, cache service.TrainingCache, store service.ModelStore) *Runner {
	return &Runner{
		ledger:    ledger,
		cache:     cache,
		store:     store,
		jobs:      make(map[string]*Job),
		inFlight:  make(map[string]bool),
		timeout:   DefaultJobTimeout,
		retention: DefaultJobRetention,
	}
}

// SetTimeout overrides the per-job deadline. Intended for tests.
func (r *Runner) SetTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeout = d
}

// SetRetention overrides how long finished job records are kept.
func (r *Runner) SetRetention(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retention = d
}

// Submit queues a retraining job for the user and returns its job ID. A
// second submission while a job for the same user is queued or running is
// rejected with ErrRetrainInFlight.
func (r *Runner) Submit(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user_id is required")
	}

	r.mu.Lock()
	r.pruneLocked(time.Now())
	if r.inFlight[userID] {
		r.mu.Unlock()
		return "", fmt.Errorf("retrain for user %q: %w", userID, common.ErrRetrainInFlight)
	}
	job := &Job{
		ID:        uuid.NewString(),
		UserID:    userID,
		State:     JobQueued,
		CreatedAt: time.Now(),
	}
	r.jobs[job.ID] = job
	r.inFlight[userID] = true
	timeout := r.timeout
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		r.run(ctx, job)
	}()

	slog.Info("Queued retraining job",
		"job_id", job.ID,
		"user_id", userID)
	return job.ID, nil
}

// pruneLocked drops finished job records older than the retention window so
// a long-lived watcher process does not accumulate them forever. Caller
// holds the mutex.
func (r *Runner) pruneLocked(now time.Time) {
	for id, job := range r.jobs {
		if job.FinishedAt != nil && now.Sub(*job.FinishedAt) >= r.retention {
			delete(r.jobs, id)
		}
	}
}

// JobStatus returns a copy of the job record.
func (r *Runner) JobStatus(jobID string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %q: %w", jobID, common.ErrNotFound)
	}
	copied := *job
	return &copied, nil
}

// Wait blocks until all in-flight jobs finish. Intended for shutdown and tests.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, job *Job) {
	r.transition(job, JobRunning, nil, "")

	result, err := r.Retrain(ctx, job.UserID)
	switch {
	case err != nil:
		r.transition(job, JobFailed, result, err.Error())
		common.LogError(err, "Retraining job failed", common.Fields{
			"job_id":  job.ID,
			"user_id": job.UserID,
		})
	case !result.Success:
		r.transition(job, JobFailed, result, result.Error)
		slog.Warn("Retraining job did not produce a model",
			"job_id", job.ID,
			"user_id", job.UserID,
			"reason", result.Error)
	default:
		r.transition(job, JobSucceeded, result, "")
		slog.Info("Retraining job succeeded",
			"job_id", job.ID,
			"user_id", job.UserID,
			"model_version", result.ModelVersion,
			"accuracy", result.Metrics["accuracy"])
	}
}

func (r *Runner) transition(job *Job, state JobState, result *model.TrainingResult, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	switch state {
	case JobRunning:
		job.StartedAt = &now
	case JobSucceeded, JobFailed:
		job.FinishedAt = &now
		delete(r.inFlight, job.UserID)
	case JobQueued:
	}
	job.State = state
	job.Result = result
	job.Error = errMsg
}

// Retrain runs the full pipeline synchronously: extract feedback training
// data, merge with the cached set, refit features, train, store the new
// version, and update the cache and training timestamp. A user who has
// never trained is held to the higher initial-training minimum.
func (r *Runner) Retrain(ctx context.Context, userID string) (*model.TrainingResult, error) {
	newData, err := r.ledger.ExtractTrainingData(ctx, userID, 0.0)
	if err != nil {
		return nil, fmt.Errorf("failed to extract training data: %w", err)
	}
	cached, err := r.cache.LoadTrainingSet(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached training set: %w", err)
	}

	merged := mergeTrainingSets(cached, newData)
	slog.Info("Merged training sets",
		"user_id", userID,
		"cached", len(cached),
		"new", len(newData),
		"merged", len(merged))

	lastTrained, err := r.cache.LastTrainedAt(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load last training time: %w", err)
	}
	cfg := classifier.RetrainConfig()
	if lastTrained == nil {
		cfg = classifier.DefaultConfig()
	}
	if len(merged) < cfg.MinSamples {
		return &model.TrainingResult{
			Success:         false,
			Error:           fmt.Sprintf("insufficient training data: %d samples", len(merged)),
			SamplesRequired: cfg.MinSamples,
			TrainSamples:    len(merged),
		}, nil
	}

	deriver := features.NewDeriver(userID)
	vectors, err := deriver.FitTransform(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to derive features: %w", err)
	}

	labels := make([]string, len(merged))
	for i, rec := range merged {
		labels[i] = rec.Category
	}

	trainer := classifier.NewTrainer(cfg)
	trained, result, err := trainer.Train(ctx, vectors, labels, deriver.FeatureNames(), validationFraction)
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}
	if !result.Success {
		return result, nil
	}

	artifact, err := trained.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal model: %w", err)
	}
	state, err := deriver.State().Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal feature state: %w", err)
	}

	version, err := r.store.SaveArtifact(ctx, model.ModelInfo{
		UserID:          userID,
		Stage:           model.StageProduction,
		Classes:         trained.Classes,
		FeatureNames:    trained.FeatureNames,
		Metrics:         result.Metrics,
		Hyperparameters: trainer.Hyperparameters(),
		CreatedAt:       time.Now(),
	}, artifact, state)
	if err != nil {
		return nil, fmt.Errorf("failed to store model: %w", err)
	}
	result.ModelVersion = fmt.Sprintf("%d", version)

	if err := r.cache.SaveTrainingSet(ctx, userID, merged); err != nil {
		return nil, fmt.Errorf("failed to save training set: %w", err)
	}
	if err := r.cache.SetLastTrainedAt(ctx, userID, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to record training time: %w", err)
	}

	return result, nil
}

// mergeTrainingSets combines the cached set with newly extracted samples,
// deduplicated by merchant+amount+date with the newer sample winning.
func mergeTrainingSets(cached, fresh []model.ExpenseRecord) []model.ExpenseRecord {
	seen := make(map[string]int, len(cached)+len(fresh))
	merged := make([]model.ExpenseRecord, 0, len(cached)+len(fresh))
	for _, rec := range cached {
		key := rec.Key()
		if idx, ok := seen[key]; ok {
			merged[idx] = rec
			continue
		}
		seen[key] = len(merged)
		merged = append(merged, rec)
	}
	for _, rec := range fresh {
		key := rec.Key()
		if idx, ok := seen[key]; ok {
			merged[idx] = rec
			continue
		}
		seen[key] = len(merged)
		merged = append(merged, rec)
	}
	return merged
}
